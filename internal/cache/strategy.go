package cache

import (
	"sync"
	"time"

	"github.com/lexdesk/tiercache/pkg/errors"
)

// Strategy decides whether a key/value is cached and with which TTL and
// priority. All three functions must be set.
type Strategy struct {
	Name     string
	Admit    func(key Key, value any) bool
	TTL      func(key Key, value any) time.Duration
	Priority func(key Key, value any) int
}

func (s *Strategy) validate() error {
	if s == nil || s.Name == "" {
		return errors.NewError(errors.ErrCodeInvalidStrategy, "strategy must have a name")
	}
	if s.Admit == nil || s.TTL == nil || s.Priority == nil {
		return errors.NewError(errors.ErrCodeInvalidStrategy, "strategy must define admit, ttl and priority").
			WithContext("strategy", s.Name)
	}
	return nil
}

// Strategy names registered by DefaultStrategies
const (
	StrategyHighFrequency = "high-frequency"
	StrategySearch        = "search"
	StrategyMetadata      = "metadata"
	StrategyUser          = "user"
)

// StrategyDefaults tunes the built-in strategies
type StrategyDefaults struct {
	HighFrequencyMinAccesses int
	HighFrequencyTTL         time.Duration
	SearchTTL                time.Duration
	SearchPriority           int
	MetadataTTL              time.Duration
	MetadataPriority         int
	UserTTL                  time.Duration
	UserPriority             int
}

// DefaultStrategyDefaults returns the stock tuning
func DefaultStrategyDefaults() StrategyDefaults {
	return StrategyDefaults{
		HighFrequencyMinAccesses: 5,
		HighFrequencyTTL:         10 * time.Minute,
		SearchTTL:                5 * time.Minute,
		SearchPriority:           8,
		MetadataTTL:              30 * time.Minute,
		MetadataPriority:         10,
		UserTTL:                  15 * time.Minute,
		UserPriority:             9,
	}
}

// NamespaceStrategy admits any key in one of the given namespaces with a
// fixed TTL and priority.
func NamespaceStrategy(name string, ttl time.Duration, priority int, namespaces ...Namespace) *Strategy {
	allowed := make(map[Namespace]struct{}, len(namespaces))
	for _, ns := range namespaces {
		allowed[ns] = struct{}{}
	}
	return &Strategy{
		Name: name,
		Admit: func(key Key, _ any) bool {
			_, ok := allowed[key.Namespace]
			return ok
		},
		TTL:      func(Key, any) time.Duration { return ttl },
		Priority: func(Key, any) int { return priority },
	}
}

// HighFrequencyStrategy admits keys the tracker has seen at least
// minAccesses times. Priority is the observed access count.
func HighFrequencyStrategy(tracker *AccessTracker, minAccesses int, ttl time.Duration) *Strategy {
	return &Strategy{
		Name: StrategyHighFrequency,
		Admit: func(key Key, _ any) bool {
			return tracker.Count(key) >= minAccesses
		},
		TTL: func(Key, any) time.Duration { return ttl },
		Priority: func(key Key, _ any) int {
			return tracker.Count(key)
		},
	}
}

// DefaultStrategies returns the built-in strategies in evaluation order
func DefaultStrategies(tracker *AccessTracker, d StrategyDefaults) []*Strategy {
	return []*Strategy{
		HighFrequencyStrategy(tracker, d.HighFrequencyMinAccesses, d.HighFrequencyTTL),
		NamespaceStrategy(StrategySearch, d.SearchTTL, d.SearchPriority, NamespaceSearch),
		NamespaceStrategy(StrategyMetadata, d.MetadataTTL, d.MetadataPriority, NamespaceMetadata, NamespaceConfig),
		NamespaceStrategy(StrategyUser, d.UserTTL, d.UserPriority, NamespaceUser),
	}
}

// StrategyRegistry holds strategies in registration order. The first
// strategy that admits a key wins.
type StrategyRegistry struct {
	mu         sync.RWMutex
	strategies []*Strategy
	byName     map[string]struct{}
}

// NewStrategyRegistry creates an empty registry
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{
		byName: make(map[string]struct{}),
	}
}

// Register appends a strategy. Names are unique.
func (r *StrategyRegistry) Register(s *Strategy) error {
	if err := s.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[s.Name]; exists {
		return errors.NewError(errors.ErrCodeStrategyExists, "strategy already registered").
			WithContext("strategy", s.Name)
	}
	r.byName[s.Name] = struct{}{}
	r.strategies = append(r.strategies, s)
	return nil
}

// Resolve returns the first strategy admitting key/value, or nil
func (r *StrategyRegistry) Resolve(key Key, value any) *Strategy {
	r.mu.RLock()
	strategies := r.strategies
	r.mu.RUnlock()

	for _, s := range strategies {
		if s.Admit(key, value) {
			return s
		}
	}
	return nil
}

// Names returns the registered strategy names in evaluation order
func (r *StrategyRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name
	}
	return names
}

// Len returns the number of registered strategies
func (r *StrategyRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}
