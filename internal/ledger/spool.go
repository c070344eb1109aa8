package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"binaryengine/internal/domain"
)

type spoolKind string

const (
	spoolKindDecision       spoolKind = "decision"
	spoolKindOutcome        spoolKind = "outcome"
	spoolKindShadowDecision spoolKind = "shadow_decision"
)

// spoolEntry is one write the ledger could not complete, queued for later
// replay, LedgerWriteError class.
type spoolEntry struct {
	Kind           spoolKind                 `msgpack:"kind"`
	Op             string                    `msgpack:"op"`
	Strategy       string                    `msgpack:"strategy,omitempty"`
	Decision       *domain.AggregateDecision `msgpack:"decision,omitempty"`
	Outcome        *domain.Outcome           `msgpack:"outcome,omitempty"`
	ShadowDecision *domain.ShadowDecision    `msgpack:"shadow_decision,omitempty"`
	At             time.Time                `msgpack:"at"`
}

// Spool persists failed ledger writes to a directory as msgpack-encoded
// files, one per entry, named so a replay reads them back in write order.
// Grounded on pkg/journal.Writer file-naming idiom, adapted
// from JSON cycle records to a msgpack failure queue.
type Spool struct {
	dir string
	seq int
}

func NewSpool(dir string) (*Spool, error) {
	if dir == "" {
		dir = "ledger_spool"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create spool dir %s: %w", dir, err)
	}
	return &Spool{dir: dir}, nil
}

// Enqueue writes entry to a new spool file.
func (s *Spool) Enqueue(entry spoolEntry) error {
	s.seq++
	name := fmt.Sprintf("%s_%05d_%s.msgpack", entry.At.UTC().Format("20060102_150405"), s.seq, entry.Kind)
	path := filepath.Join(s.dir, name)

	data, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ledger: marshal spool entry: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("ledger: write spool entry: %w", err)
	}
	return os.Rename(tmp, path)
}

// Pending lists spool files in write order, oldest first.
func (s *Spool) Pending() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Load decodes one spool file by name.
func (s *Spool) Load(name string) (spoolEntry, error) {
	var entry spoolEntry
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return entry, err
	}
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return entry, fmt.Errorf("ledger: decode spool entry %s: %w", name, err)
	}
	return entry, nil
}

// Remove deletes a spool file once its entry has been successfully replayed.
func (s *Spool) Remove(name string) error {
	return os.Remove(filepath.Join(s.dir, name))
}

// Replay loads every pending entry in order and hands it to apply; entries
// that apply successfully are removed from the spool.
func (s *Spool) Replay(apply func(spoolEntry) error) error {
	names, err := s.Pending()
	if err != nil {
		return err
	}
	for _, name := range names {
		entry, loadErr := s.Load(name)
		if loadErr != nil {
			continue
		}
		if applyErr := apply(entry); applyErr != nil {
			return applyErr
		}
		_ = s.Remove(name)
	}
	return nil
}
