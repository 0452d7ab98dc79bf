package costs

import (
	"sync"
	"time"

	"arbiter-hq/tollgate/pkg/core"
)

// CostFunc computes the spend in USD for a completed call. Providers with
// non-linear pricing supply their own; DefaultCost covers per-1K-token
// pricing.
type CostFunc func(pm core.ProviderModel, inputTokens, outputTokens int) float64

// DefaultCost prices a call from the ProviderModel's per-1K-token rates.
func DefaultCost(pm core.ProviderModel, inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000.0*pm.CostPer1KInput +
		float64(outputTokens)/1000.0*pm.CostPer1KOutput
}

// Config configures the cost ledger.
type Config struct {
	// Limits maps budget periods to limits in USD. Zero or absent means
	// the period is not enforced.
	Limits map[Period]float64

	// Cost computes spend per call. Defaults to DefaultCost.
	Cost CostFunc

	// Location is the timezone for calendar period boundaries.
	// Defaults to UTC.
	Location *time.Location
}

// Alert describes a threshold crossing delivered to a registered callback.
type Alert struct {
	// Period is the budget period whose threshold was crossed.
	Period Period

	// Threshold is the configured fraction (0.0-1.0).
	Threshold float64

	// Spent is the period spend at the moment of crossing.
	Spent float64

	// Limit is the configured budget for the period.
	Limit float64

	// At is when the crossing was recorded.
	At time.Time
}

// Status is the result of a budget introspection for one period.
type Status struct {
	// WithinBudget indicates spend is strictly under the limit.
	WithinBudget bool

	// FractionUsed is spend divided by limit (0 when no limit configured).
	FractionUsed float64

	// Spent is the current period spend in USD.
	Spent float64

	// Limit is the configured budget in USD (0 = not enforced).
	Limit float64

	// ResetAt is when the period rolls over and spend resets.
	ResetAt time.Time
}

// Totals is the per-period spend snapshot returned by RecordSpend.
type Totals struct {
	// Daily, Weekly, and Monthly are the current period spends in USD.
	Daily, Weekly, Monthly float64
}

// Ledger tracks cumulative spend per calendar budget period and enforces
// hard limits and alert thresholds. Spend only increases within a period;
// the only decrease is the reset at period rollover.
type Ledger struct {
	clock  core.Clock
	loc    *time.Location
	cost   CostFunc
	limits map[Period]float64

	mu      sync.Mutex
	periods map[Period]*periodState
	alerts  []*alertReg
}

// periodState is the live accounting for one period. It is replaced, not
// mutated, at rollover.
type periodState struct {
	start   time.Time
	spent   float64
	byModel map[string]float64
}

// alertReg is one registered (period, threshold) alert callback.
type alertReg struct {
	period    Period
	threshold float64
	fn        func(Alert)
	firedFor  time.Time // period start the alert last fired for
}

// NewLedger creates a cost ledger. A nil clock defaults to real time.
func NewLedger(cfg Config, clock core.Clock) *Ledger {
	if clock == nil {
		clock = core.RealClock{}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	cost := cfg.Cost
	if cost == nil {
		cost = DefaultCost
	}
	limits := make(map[Period]float64, len(cfg.Limits))
	for p, v := range cfg.Limits {
		limits[p] = v
	}

	l := &Ledger{
		clock:   clock,
		loc:     loc,
		cost:    cost,
		limits:  limits,
		periods: make(map[Period]*periodState, len(Periods)),
	}

	now := clock.Now().In(loc)
	for _, p := range Periods {
		l.periods[p] = &periodState{start: p.startOf(now), byModel: make(map[string]float64)}
	}
	return l
}

// RegisterAlert registers fn to fire at most once per period when the used
// fraction for the period crosses threshold upward. Multiple registrations
// per period are allowed.
func (l *Ledger) RegisterAlert(p Period, threshold float64, fn func(Alert)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, &alertReg{period: p, threshold: threshold, fn: fn})
}

// RecordSpend records the actual cost of a completed call in every period
// and returns the per-call amount as priced by the ledger's cost function,
// along with the resulting totals. Alert callbacks fire after the ledger
// lock is released.
func (l *Ledger) RecordSpend(pm core.ProviderModel, inputTokens, outputTokens int) (float64, Totals) {
	amount := l.cost(pm, inputTokens, outputTokens)
	return amount, l.AddSpend(l.clock.Now(), pm, amount)
}

// AddSpend records a pre-computed spend amount stamped at a given time.
// Amounts stamped before the current period start are ignored for that
// period; this is how stored usage is replayed on warm start.
func (l *Ledger) AddSpend(at time.Time, pm core.ProviderModel, amount float64) Totals {
	at = at.In(l.loc)
	now := l.clock.Now().In(l.loc)

	l.mu.Lock()
	l.rollLocked(now)

	type firing struct {
		reg   *alertReg
		alert Alert
	}

	key := pm.Key()
	var fire []firing
	for _, p := range Periods {
		state := l.periods[p]
		if at.Before(state.start) {
			continue
		}

		before := state.spent
		state.spent += amount
		state.byModel[key] += amount

		limit := l.limits[p]
		if limit <= 0 {
			continue
		}
		for _, reg := range l.alerts {
			if reg.period != p || reg.firedFor.Equal(state.start) {
				continue
			}
			if before/limit < reg.threshold && state.spent/limit >= reg.threshold {
				reg.firedFor = state.start
				fire = append(fire, firing{reg: reg, alert: Alert{
					Period:    p,
					Threshold: reg.threshold,
					Spent:     state.spent,
					Limit:     limit,
					At:        now,
				}})
			}
		}
	}

	totals := Totals{
		Daily:   l.periods[PeriodDaily].spent,
		Weekly:  l.periods[PeriodWeekly].spent,
		Monthly: l.periods[PeriodMonthly].spent,
	}
	l.mu.Unlock()

	for _, f := range fire {
		f.reg.fn(f.alert)
	}

	return totals
}

// CheckBudget returns the budget status for one period.
func (l *Ledger) CheckBudget(p Period) Status {
	now := l.clock.Now().In(l.loc)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked(now)

	state := l.periods[p]
	limit := l.limits[p]

	st := Status{
		WithinBudget: true,
		Spent:        state.spent,
		Limit:        limit,
		ResetAt:      p.nextStart(state.start),
	}
	if limit > 0 {
		st.FractionUsed = state.spent / limit
		st.WithinBudget = state.spent < limit
	}
	return st
}

// CheckProjected reports whether recording estimatedCost now would breach
// any configured period. Returns nil when all periods have room, or the
// breach for the shortest violated period. The admission decider calls this
// before every reservation; budget breaches are fail-fast and never queued.
func (l *Ledger) CheckProjected(estimatedCost float64) *core.BudgetExceededError {
	now := l.clock.Now().In(l.loc)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked(now)

	for _, p := range Periods {
		limit := l.limits[p]
		if limit <= 0 {
			continue
		}
		state := l.periods[p]
		if state.spent+estimatedCost > limit {
			return &core.BudgetExceededError{
				Period: p.String(),
				Limit:  limit,
				Spent:  state.spent,
			}
		}
	}
	return nil
}

// EstimateCost prices a prospective call with the ledger's cost function,
// treating all estimated tokens as input tokens. Admission uses this for
// projected budget checks.
func (l *Ledger) EstimateCost(pm core.ProviderModel, estimatedTokens int) float64 {
	return l.cost(pm, estimatedTokens, 0)
}

// Breakdown returns the per-provider/model spend within the current period.
func (l *Ledger) Breakdown(p Period) map[string]float64 {
	now := l.clock.Now().In(l.loc)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked(now)

	state := l.periods[p]
	out := make(map[string]float64, len(state.byModel))
	for k, v := range state.byModel {
		out[k] = v
	}
	return out
}

// rollLocked replaces any period whose end has passed with a fresh state.
// Replacement (rather than mutation) keeps rollover atomic for readers.
// Caller must hold the lock.
func (l *Ledger) rollLocked(now time.Time) {
	for _, p := range Periods {
		state := l.periods[p]
		if !now.Before(p.nextStart(state.start)) {
			l.periods[p] = &periodState{start: p.startOf(now), byModel: make(map[string]float64)}
		}
	}
}
