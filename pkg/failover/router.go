package failover

import (
	"log/slog"
	"sync"
	"time"

	"arbiter-hq/tollgate/pkg/core"
)

// DefaultCooldown is how long a target that reported saturation is
// deprioritized before it is considered fresh again.
const DefaultCooldown = 60 * time.Second

// CapacityProbe answers whether a target could currently absorb a call
// of the given size, without reserving anything.
type CapacityProbe interface {
	HasCapacity(pm core.ProviderModel, estimatedTokens int) bool
}

// Router picks fallback targets for requests whose primary target is
// saturated or failing. Safe for concurrent use.
type Router struct {
	probe    CapacityProbe
	clock    core.Clock
	cooldown time.Duration

	mu           sync.Mutex
	coolingUntil map[string]time.Time
}

// NewRouter creates a router backed by the given capacity probe.
// A non-positive cooldown falls back to DefaultCooldown.
func NewRouter(probe CapacityProbe, cooldown time.Duration, clock core.Clock) *Router {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Router{
		probe:        probe,
		clock:        clock,
		cooldown:     cooldown,
		coolingUntil: make(map[string]time.Time),
	}
}

// SelectFallback returns the first entry in the request's fallback list
// that has not already been tried in this attempt sequence and that has
// nonzero remaining capacity. The second return is false when no
// fallback qualifies.
func (r *Router) SelectFallback(req *core.CallRequest, exhausted map[string]bool) (core.ProviderModel, bool) {
	now := r.clock.Now()
	for _, fb := range req.Fallbacks {
		key := fb.Key()
		if exhausted[key] {
			continue
		}
		if r.inCooldown(key, now) {
			slog.Debug("fallback skipped, cooling down",
				"request_id", req.ID,
				"target", key,
			)
			continue
		}
		if !r.probe.HasCapacity(fb, req.EstimatedTokens) {
			continue
		}
		slog.Debug("fallback selected",
			"request_id", req.ID,
			"target", key,
		)
		return fb, true
	}
	return core.ProviderModel{}, false
}

// Candidates returns the request's primary target followed by its
// fallbacks, with targets currently in cooldown moved to the back. The
// admission path walks this order so a cooling target is still reachable
// as a last resort rather than dropped outright.
func (r *Router) Candidates(req *core.CallRequest) []core.ProviderModel {
	all := make([]core.ProviderModel, 0, 1+len(req.Fallbacks))
	all = append(all, req.Target)
	all = append(all, req.Fallbacks...)

	now := r.clock.Now()
	fresh := make([]core.ProviderModel, 0, len(all))
	var cooling []core.ProviderModel
	for _, pm := range all {
		if r.inCooldown(pm.Key(), now) {
			cooling = append(cooling, pm)
		} else {
			fresh = append(fresh, pm)
		}
	}
	return append(fresh, cooling...)
}

// MarkSaturated records that a target reported saturation. If the
// rate-limit signal carries a reset time the cooldown ends there,
// otherwise the configured cooldown applies.
func (r *Router) MarkSaturated(pm core.ProviderModel, signal *core.RateLimitSignal) {
	now := r.clock.Now()
	until := now.Add(r.cooldown)
	if signal != nil {
		if !signal.ResetAt.IsZero() && signal.ResetAt.After(now) {
			until = signal.ResetAt
		} else if signal.RetryAfter > 0 {
			until = now.Add(signal.RetryAfter)
		}
	}

	r.mu.Lock()
	r.coolingUntil[pm.Key()] = until
	r.mu.Unlock()

	slog.Debug("target marked saturated",
		"target", pm.Key(),
		"until", until,
	)
}

// InCooldown reports whether a target is currently deprioritized.
func (r *Router) InCooldown(pm core.ProviderModel) bool {
	return r.inCooldown(pm.Key(), r.clock.Now())
}

func (r *Router) inCooldown(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.coolingUntil[key]
	if !ok {
		return false
	}
	if !now.Before(until) {
		delete(r.coolingUntil, key)
		return false
	}
	return true
}
