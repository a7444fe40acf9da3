package strategy

import (
	"fmt"
	"sync"
	"time"

	"tradeEngine/internal/ports"
)

// Default tick intervals per strategy family. Scalping strategies tick fast,
// dollar-cost-averaging ticks hourly. A bot config may override its interval.
var defaultIntervals = map[string]time.Duration{
	"scalping": 30 * time.Second,
	"grid":     5 * time.Minute,
	"swing":    15 * time.Minute,
	"dca":      time.Hour,
}

const fallbackInterval = time.Minute

// Registry maps strategy ids to their implementations. Strategies are
// registered once at configuration time and selected by id when a bot starts,
// never re-dispatched per tick.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]ports.Strategy
	intervals  map[string]time.Duration
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	intervals := make(map[string]time.Duration, len(defaultIntervals))
	for k, v := range defaultIntervals {
		intervals[k] = v
	}
	return &Registry{
		strategies: make(map[string]ports.Strategy),
		intervals:  intervals,
	}
}

// Register adds a strategy under the given id, replacing any previous entry.
func (r *Registry) Register(id string, strat ports.Strategy) error {
	if id == "" || strat == nil {
		return fmt.Errorf("strategy id and implementation are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[id] = strat
	return nil
}

// SetInterval overrides the tick interval for a strategy id.
func (r *Registry) SetInterval(id string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intervals[id] = d
}

// Get returns the strategy registered under id.
func (r *Registry) Get(id string) (ports.Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	strat, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", id)
	}
	return strat, nil
}

// Interval returns the tick interval for a strategy id, falling back to the
// category default and finally to one minute.
func (r *Registry) Interval(id string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.intervals[id]; ok {
		return d
	}
	return fallbackInterval
}

// IDs returns the registered strategy ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	return ids
}
