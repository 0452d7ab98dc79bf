package keys

import (
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"arbiter-hq/tollgate/pkg/core"
)

// DefaultCooldown benches a rate-limited key when the provider gave no
// reset hint.
const DefaultCooldown = 60 * time.Second

// ErrNoUsableKey is returned when every key in the pool is cooling down.
var ErrNoUsableKey = errors.New("no usable api key")

// Strategy selects which available key serves the next request.
type Strategy string

const (
	// StrategyRoundRobin cycles through keys in order.
	StrategyRoundRobin Strategy = "round_robin"

	// StrategyLeastUsed picks the key with the most remaining provider
	// capacity, falling back to the fewest requests made.
	StrategyLeastUsed Strategy = "least_used"

	// StrategyRandom picks uniformly among available keys.
	StrategyRandom Strategy = "random"

	// StrategyFailover sticks to the first configured key and moves
	// down the list only when it is benched.
	StrategyFailover Strategy = "failover"
)

// Masked renders a key safe for logs: first four and last four
// characters with the middle elided. Short keys are fully hidden.
func Masked(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// KeyState is the bookkeeping for one key in the pool.
type KeyState struct {
	// Key is the raw key value. Never log it; use Masked.
	Key string

	// RequestsMade counts checkouts of this key.
	RequestsMade int

	// LastUsed is when the key was last handed out.
	LastUsed time.Time

	// CooldownUntil benches the key until this instant. Zero when the
	// key is usable.
	CooldownUntil time.Time

	// Signal is the most recent rate limit metadata seen on this key.
	Signal *core.RateLimitSignal
}

// OnCooldown reports whether the key is benched at the given instant.
func (s *KeyState) OnCooldown(now time.Time) bool {
	return !s.CooldownUntil.IsZero() && now.Before(s.CooldownUntil)
}

// Manager rotates a provider's key pool. Safe for concurrent use.
type Manager struct {
	strategy Strategy
	cooldown time.Duration
	clock    core.Clock
	randIdx  func(n int) int

	mu   sync.Mutex
	keys []*KeyState
	next int
}

// NewManager builds a manager over the given keys. An empty pool is a
// configuration error surfaced to the caller.
func NewManager(keyList []string, strategy Strategy, cooldown time.Duration, clock core.Clock) (*Manager, error) {
	if len(keyList) == 0 {
		return nil, errors.New("at least one api key is required")
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if clock == nil {
		clock = core.RealClock{}
	}
	states := make([]*KeyState, len(keyList))
	for i, k := range keyList {
		states[i] = &KeyState{Key: k}
	}
	return &Manager{
		strategy: strategy,
		cooldown: cooldown,
		clock:    clock,
		randIdx:  rand.Intn,
		keys:     states,
	}, nil
}

// Next checks out a key per the rotation strategy. Returns
// ErrNoUsableKey when every key is benched.
func (m *Manager) Next() (string, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var chosen *KeyState
	switch m.strategy {
	case StrategyLeastUsed:
		chosen = m.leastUsedLocked(now)
	case StrategyRandom:
		chosen = m.randomLocked(now)
	case StrategyFailover:
		chosen = m.firstAvailableLocked(now)
	default:
		chosen = m.roundRobinLocked(now)
	}
	if chosen == nil {
		return "", ErrNoUsableKey
	}

	chosen.LastUsed = now
	chosen.RequestsMade++
	return chosen.Key, nil
}

// ReportSuccess attaches the latest provider signal to a key.
func (m *Manager) ReportSuccess(key string, signal *core.RateLimitSignal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.findLocked(key); s != nil {
		s.Signal = signal
	}
}

// ReportRateLimit benches a key. The cooldown is the provider's
// retry-after if declared, else the time until the declared reset
// (floored at the configured cooldown), else the configured cooldown.
func (m *Manager) ReportRateLimit(key string, signal *core.RateLimitSignal) {
	now := m.clock.Now()

	m.mu.Lock()
	s := m.findLocked(key)
	if s == nil {
		m.mu.Unlock()
		return
	}
	s.Signal = signal

	cd := m.cooldown
	if signal != nil {
		if signal.RetryAfter > 0 {
			cd = signal.RetryAfter
		} else if !signal.ResetAt.IsZero() {
			if until := signal.ResetAt.Sub(now); until > cd {
				cd = until
			}
		}
	}
	s.CooldownUntil = now.Add(cd)
	m.mu.Unlock()

	slog.Info("api key benched after rate limit",
		"key", Masked(key),
		"cooldown", cd,
	)
}

// Reset clears a key's cooldown, typically from an operator action.
func (m *Manager) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.findLocked(key); s != nil {
		s.CooldownUntil = time.Time{}
	}
}

// Available returns how many keys are currently usable.
func (m *Manager) Available() int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.keys {
		if !s.OnCooldown(now) {
			n++
		}
	}
	return n
}

// Total returns the pool size.
func (m *Manager) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// States returns a snapshot of all key states with raw keys masked.
func (m *Manager) States() []KeyState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]KeyState, len(m.keys))
	for i, s := range m.keys {
		out[i] = *s
		out[i].Key = Masked(s.Key)
	}
	return out
}

func (m *Manager) findLocked(key string) *KeyState {
	for _, s := range m.keys {
		if s.Key == key {
			return s
		}
	}
	return nil
}

func (m *Manager) roundRobinLocked(now time.Time) *KeyState {
	for i := 0; i < len(m.keys); i++ {
		idx := (m.next + i) % len(m.keys)
		if !m.keys[idx].OnCooldown(now) {
			m.next = (idx + 1) % len(m.keys)
			return m.keys[idx]
		}
	}
	return nil
}

func (m *Manager) leastUsedLocked(now time.Time) *KeyState {
	// Prefer keys whose provider-reported remaining capacity is known.
	var best *KeyState
	for _, s := range m.keys {
		if s.OnCooldown(now) || s.Signal == nil || s.Signal.RequestsLimit <= 0 {
			continue
		}
		if best == nil || s.Signal.RequestsRemaining > best.Signal.RequestsRemaining {
			best = s
		}
	}
	if best != nil {
		return best
	}

	for _, s := range m.keys {
		if s.OnCooldown(now) {
			continue
		}
		if best == nil || s.RequestsMade < best.RequestsMade {
			best = s
		}
	}
	return best
}

func (m *Manager) randomLocked(now time.Time) *KeyState {
	var avail []*KeyState
	for _, s := range m.keys {
		if !s.OnCooldown(now) {
			avail = append(avail, s)
		}
	}
	if len(avail) == 0 {
		return nil
	}
	return avail[m.randIdx(len(avail))]
}

func (m *Manager) firstAvailableLocked(now time.Time) *KeyState {
	for _, s := range m.keys {
		if !s.OnCooldown(now) {
			return s
		}
	}
	return nil
}
