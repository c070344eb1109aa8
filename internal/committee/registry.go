package committee

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"binaryengine/internal/domain"
	"binaryengine/internal/engineerr"
)

// Factory constructs one agent instance. Registration is an explicit
// name -> Factory map; there is no reflection-based discovery, per the
// "no runtime introspection" design note.
type Factory func() Agent

// Registry is the explicit name -> AgentFactory map the committee is built
// from. Grounded on pkg/executor.ExecutorFactory /
// pkg/manager.Manager provider-map idiom, generalised from "exchange or
// market provider by name" to "agent by name."
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory

	degradeMu  sync.Mutex
	failures   map[string]int
	degraded   map[string]time.Time
	degradeFor time.Duration
}

// NewRegistry constructs an empty registry. degradeFor is the cool-down
// period an agent is skipped for after two consecutive AgentErrors
// (defaults to 5 minutes).
func NewRegistry(degradeFor time.Duration) *Registry {
	if degradeFor <= 0 {
		degradeFor = 5 * time.Minute
	}
	return &Registry{
		factories:  make(map[string]Factory),
		failures:   make(map[string]int),
		degraded:   make(map[string]time.Time),
		degradeFor: degradeFor,
	}
}

// Register adds a named agent factory. Re-registering a name overwrites it.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns every registered agent name in sorted order, the
// deterministic vote ordering.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enabled filters Names() down to the subset not excluded by enabledSet.
// A nil enabledSet means every registered agent is enabled.
func (r *Registry) Enabled(enabledSet map[string]bool) []string {
	all := r.Names()
	if enabledSet == nil {
		return all
	}
	out := make([]string, 0, len(all))
	for _, name := range all {
		if enabledSet[name] {
			out = append(out, name)
		}
	}
	return out
}

// RunAll fans the enabled agents out, gathers every vote, and returns them
// sorted by agent name. An agent that is currently degraded is skipped
// entirely (excluded from the trace, not Skip-voted) without being invoked.
// An agent whose Analyze call errors contributes a Skip vote instead and
// its failure count is tracked; two consecutive failures mark it degraded.
func (r *Registry) RunAll(ctx context.Context, names []string, snapshot domain.MarketSnapshot) []domain.Vote {
	type indexed struct {
		idx  int
		vote domain.Vote
	}
	results := make([]indexed, 0, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, name := range names {
		if r.isDegraded(name) {
			continue
		}
		r.mu.RLock()
		factory, ok := r.factories[name]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		i, name, factory := i, name, factory
		wg.Add(1)
		go func() {
			defer wg.Done()
			agent := factory()
			vote, err := agent.Analyze(ctx, snapshot)
			if err != nil {
				wrapped := engineerr.Agent(name, err)
				logx.WithContext(ctx).Errorf("committee: %v", wrapped)
				r.trackFailure(name)
				vote = domain.Vote{Agent: name, Direction: domain.Skip}
			} else {
				r.resetFailure(name)
				vote.Agent = name
			}
			mu.Lock()
			results = append(results, indexed{idx: i, vote: vote})
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].vote.Agent < results[b].vote.Agent })
	votes := make([]domain.Vote, len(results))
	for i, r := range results {
		votes[i] = r.vote
	}
	return votes
}

func (r *Registry) trackFailure(name string) {
	r.degradeMu.Lock()
	defer r.degradeMu.Unlock()
	r.failures[name]++
	if r.failures[name] >= 2 {
		r.degraded[name] = time.Now().Add(r.degradeFor)
		logx.Slowf("committee: agent %q degraded for %s after %d consecutive errors", name, r.degradeFor, r.failures[name])
	}
}

func (r *Registry) resetFailure(name string) {
	r.degradeMu.Lock()
	defer r.degradeMu.Unlock()
	delete(r.failures, name)
}

func (r *Registry) isDegraded(name string) bool {
	r.degradeMu.Lock()
	defer r.degradeMu.Unlock()
	until, ok := r.degraded[name]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(r.degraded, name)
		delete(r.failures, name)
		return false
	}
	return true
}
