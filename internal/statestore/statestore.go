// Package statestore persists the trading state behind a mutex with an
// atomic write-to-temp-then-rename. Grounded on this codebase's
// koshedutech-binance-trading-app AdminSyncService.saveDefaultSettings
// temp-file-then-rename idiom (sibling example, no equivalent in the
// primary reference), combined with this codebase's own mutex-guarded
// in-process state patterns.
package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"binaryengine/internal/domain"
	"binaryengine/internal/engineerr"
)

// Thresholds governs the recovery-mode ladder, per documented percentages.
// The reconciliation bands are fixed in Reconcile, not set here.
type Thresholds struct {
	ConservativeAt float64 // 0.08
	DefensiveAt    float64 // 0.15
	RecoveryAt     float64 // 0.25
	HaltAt         float64 // 0.30
	NormalBelow    float64 // 0.05, checked only at the midnight roll
}

func DefaultThresholds() Thresholds {
	return Thresholds{ConservativeAt: 0.08, DefensiveAt: 0.15, RecoveryAt: 0.25, HaltAt: 0.30, NormalBelow: 0.05}
}

// CashReader reads the venue's current cash balance, used to seed Load when
// no state file exists yet.
type CashReader func() (float64, error)

// Store is the durable, mutex-guarded trading-state singleton.
type Store struct {
	path       string
	thresholds Thresholds

	mu    sync.Mutex
	state domain.TradingState
}

// Open loads or initialises the state file at path.
func Open(path string, thresholds Thresholds, seedCash CashReader) (*Store, error) {
	s := &Store{path: path, thresholds: thresholds}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var loaded domain.TradingState
		if jsonErr := json.Unmarshal(data, &loaded); jsonErr != nil {
			return nil, engineerr.State(jsonErr, "statestore: decode %s", path)
		}
		s.state = loaded
	case os.IsNotExist(err):
		cash, cashErr := seedCash()
		if cashErr != nil {
			return nil, engineerr.DependencyUnavailable("venue-cash-balance", cashErr)
		}
		now := time.Now()
		s.state = domain.TradingState{
			CurrentBalance:    cash,
			PeakBalance:       cash,
			DailyStartBalance: cash,
			Mode:              domain.ModeNormal,
			DayStartAt:        now,
			UpdatedAt:         now,
		}
		if writeErr := s.persistLocked(); writeErr != nil {
			return nil, writeErr
		}
	default:
		return nil, engineerr.State(err, "statestore: read %s", path)
	}
	return s, nil
}

// Snapshot returns a copy of the current state, taken under the lock.
func (s *Store) Snapshot() domain.TradingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update runs fn against the current state under the write lock, persists
// the result atomically, and returns the updated state. The read-modify-
// write-persist sequence holds the lock throughout.
//
// Invariant 1: current_balance must never go negative. Any fn result that
// leaves the balance negative forces an immediate halt here, regardless of
// which caller produced it.
func (s *Store) Update(fn func(domain.TradingState) domain.TradingState) (domain.TradingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.state)
	if next.CurrentBalance < 0 && next.Mode != domain.ModeHalted {
		logx.Errorf("STATE INVARIANT VIOLATION: current balance %.2f is negative, halting", next.CurrentBalance)
		next.Mode = domain.ModeHalted
		next.HaltReason = "negative-balance"
	}
	next.UpdatedAt = time.Now()
	prev := s.state
	s.state = next
	if err := s.persistLocked(); err != nil {
		s.state = prev
		return prev, err
	}
	return s.state, nil
}

// Reconcile compares the stored balance against the venue's reported cash
// balance thresholds. Peak is never raised here. A negative venue-reported
// balance is invariant 1's "negative read": it forces an immediate halt,
// bypassing the drift-band logic entirely.
func (s *Store) Reconcile(venueCash float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if venueCash < 0 {
		logx.Errorf("RECONCILIATION CRITICAL: venue reported negative cash balance %.2f, halting", venueCash)
		next := s.state
		next.CurrentBalance = venueCash
		next.Mode = domain.ModeHalted
		next.HaltReason = "negative-balance"
		next.UpdatedAt = time.Now()
		prev := s.state
		s.state = next
		if err := s.persistLocked(); err != nil {
			s.state = prev
			return err
		}
		return engineerr.Reconciliation("statestore: venue cash balance is negative: %.2f", venueCash)
	}

	if venueCash == 0 {
		return engineerr.Reconciliation("statestore: venue cash balance is zero")
	}
	diff := absf(s.state.CurrentBalance-venueCash) / venueCash

	switch {
	case diff >= 0.10:
		logx.Errorf("RECONCILIATION CRITICAL: state balance %.2f vs venue %.2f (%.1f%% drift)", s.state.CurrentBalance, venueCash, diff*100)
		next := s.state
		next.CurrentBalance = venueCash
		next.UpdatedAt = time.Now()
		prev := s.state
		s.state = next
		if err := s.persistLocked(); err != nil {
			s.state = prev
			return err
		}
	case diff >= 0.02:
		logx.Slowf("RECONCILIATION WARNING: state balance %.2f vs venue %.2f (%.1f%% drift)", s.state.CurrentBalance, venueCash, diff*100)
	}
	return nil
}

// ApplyCashIncrease raises the balance and, per the peak-balance rule,
// raises peak in lockstep — the ONLY path that may raise peak. amount must
// be a confirmed redemption credit, never a marked-to-market estimate.
func (s *Store) ApplyCashIncrease(amount float64) (domain.TradingState, error) {
	return s.Update(func(state domain.TradingState) domain.TradingState {
		state.CurrentBalance += amount
		state.DailyPnL += amount
		if state.CurrentBalance > state.PeakBalance {
			state.PeakBalance = state.CurrentBalance
		}
		return state
	})
}

// ApplyCashDecrease records a realised loss without touching peak.
func (s *Store) ApplyCashDecrease(amount float64) (domain.TradingState, error) {
	return s.Update(func(state domain.TradingState) domain.TradingState {
		state.CurrentBalance -= amount
		state.DailyPnL -= amount
		return state
	})
}

// ResetPeak is the only explicit operator reset path for the monotonic peak
// invariant.
func (s *Store) ResetPeak() (domain.TradingState, error) {
	return s.Update(func(state domain.TradingState) domain.TradingState {
		state.PeakBalance = state.CurrentBalance
		return state
	})
}

// RecordOutcome advances the recovery-mode ladder and streak counters on a
// resolved outcome, and applies the halt rule when a drawdown or
// consecutive-loss veto class fires.
func (s *Store) RecordOutcome(win bool, vetoClass string) (domain.TradingState, error) {
	return s.Update(func(state domain.TradingState) domain.TradingState {
		if win {
			state.ConsecutiveWins++
			state.ConsecutiveLosses = 0
		} else {
			state.ConsecutiveLosses++
			state.ConsecutiveWins = 0
		}

		if vetoClass == "drawdown" || vetoClass == "consecutive-losses" {
			state.Mode = domain.ModeHalted
			state.HaltReason = vetoClass
			return state
		}
		if state.Mode == domain.ModeHalted {
			return state
		}

		dailyLossFrac := 0.0
		if state.DailyStartBalance > 0 {
			dailyLossFrac = -state.DailyPnL / state.DailyStartBalance
		}
		switch {
		case dailyLossFrac >= s.thresholds.HaltAt:
			state.Mode = domain.ModeHalted
			state.HaltReason = "daily-loss-30%"
		case dailyLossFrac >= s.thresholds.RecoveryAt:
			state.Mode = domain.ModeRecovery
		case dailyLossFrac >= s.thresholds.DefensiveAt:
			state.Mode = domain.ModeDefensive
		case dailyLossFrac >= s.thresholds.ConservativeAt:
			state.Mode = domain.ModeConservative
		}
		return state
	})
}

// RollDay applies the midnight roll: resets day-start accounting and
// restores normal mode if the day's loss stayed under the NormalBelow
// threshold.
func (s *Store) RollDay(now time.Time) (domain.TradingState, error) {
	return s.Update(func(state domain.TradingState) domain.TradingState {
		dailyLossFrac := 0.0
		if state.DailyStartBalance > 0 {
			dailyLossFrac = -state.DailyPnL / state.DailyStartBalance
		}
		if state.Mode != domain.ModeHalted && dailyLossFrac < s.thresholds.NormalBelow {
			state.Mode = domain.ModeNormal
		}
		state.DailyStartBalance = state.CurrentBalance
		state.DailyPnL = 0
		state.DayStartAt = now
		return state
	})
}

// Unhalt clears halted mode; callers invoke this only after observing the
// configured sentinel file.
func (s *Store) Unhalt() (domain.TradingState, error) {
	return s.Update(func(state domain.TradingState) domain.TradingState {
		state.Mode = domain.ModeNormal
		state.HaltReason = ""
		return state
	})
}

// persistLocked writes s.state to a sibling temp file and renames it into
// place. Caller must hold s.mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return engineerr.State(err, "statestore: marshal")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".statestore-*.tmp")
	if err != nil {
		return engineerr.State(err, "statestore: create temp file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return engineerr.State(err, "statestore: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return engineerr.State(err, "statestore: fsync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return engineerr.State(err, "statestore: close temp file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return engineerr.State(err, "statestore: rename into place")
	}
	return nil
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
