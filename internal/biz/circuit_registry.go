package biz

import (
	"sort"
	"sync"

	"ShiftGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// CircuitBreakerRegistry owns the process-wide name -> breaker map. It is
// an explicitly constructed instance (no load-time singleton) so tests can
// build isolated registries and dispose of them deterministically.
type CircuitBreakerRegistry struct {
	// OnBreakerCreated fires when GetOrCreate constructs a new breaker,
	// letting observers attach listeners before any call flows through it.
	OnBreakerCreated *Signal[*CircuitBreaker]

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	configs  map[string]CircuitBreakerConfig
	defaults CircuitBreakerConfig
	logger   log.Logger
	helper   *log.Helper
}

// NewCircuitBreakerRegistry creates an empty registry using defaults for
// names without an explicit config.
func NewCircuitBreakerRegistry(defaults CircuitBreakerConfig, logger log.Logger) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		OnBreakerCreated: NewSignal[*CircuitBreaker](),
		breakers:         make(map[string]*CircuitBreaker),
		configs:          make(map[string]CircuitBreakerConfig),
		defaults:         defaults,
		logger:           logger,
		helper:           log.NewHelper(logger),
	}
}

// Configure sets the config used when the named breaker is first created.
// It has no effect on an already constructed breaker.
func (r *CircuitBreakerRegistry) Configure(name string, cfg CircuitBreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = cfg
}

// GetOrCreate returns the breaker for name, lazily constructing it with
// the per-name config if one was registered, else the registry defaults.
func (r *CircuitBreakerRegistry) GetOrCreate(name string) *CircuitBreaker {
	r.mu.Lock()
	if b, ok := r.breakers[name]; ok {
		r.mu.Unlock()
		return b
	}

	cfg, ok := r.configs[name]
	if !ok {
		cfg = r.defaults
	}
	b := NewCircuitBreaker(name, cfg, r.logger)
	r.breakers[name] = b
	r.helper.Debugw("circuit breaker created", "breaker", name)
	r.mu.Unlock()

	r.OnBreakerCreated.Publish(b)
	return b
}

// Get returns the named breaker, or nil if it was never created.
func (r *CircuitBreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breakers[name]
}

// Status lists a snapshot of every registered breaker, sorted by name.
func (r *CircuitBreakerRegistry) Status() []model.CircuitStatus {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	statuses := make([]model.CircuitStatus, 0, len(breakers))
	for _, b := range breakers {
		statuses = append(statuses, b.Status())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// ResetAll resets every breaker to CLOSED with zeroed counters.
func (r *CircuitBreakerRegistry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	for _, b := range breakers {
		b.Reset()
	}
	r.helper.Infow("all circuit breakers reset", "count", len(breakers))
}

// DestroyAll destroys every breaker and empties the registry.
func (r *CircuitBreakerRegistry) DestroyAll() {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.breakers = make(map[string]*CircuitBreaker)
	r.mu.Unlock()

	for _, b := range breakers {
		b.Destroy()
	}
	r.OnBreakerCreated.DetachAll()
}
