package admission

import (
	"log/slog"
	"time"

	"arbiter-hq/tollgate/pkg/capacity"
	"arbiter-hq/tollgate/pkg/core"
)

// Verdict is the outcome class of an admission decision.
type Verdict int

const (
	// VerdictAdmit means a capacity reservation was granted and the
	// call may execute now.
	VerdictAdmit Verdict = iota
	// VerdictDelay means no candidate has capacity yet; retry
	// admission after Decision.RetryAfter.
	VerdictDelay
	// VerdictReject means the request must not proceed; Decision.Err
	// carries the classified reason.
	VerdictReject
)

// String returns a short name for logging.
func (v Verdict) String() string {
	switch v {
	case VerdictAdmit:
		return "admit"
	case VerdictDelay:
		return "delay"
	case VerdictReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Decision is the result of one admission pass over a request.
type Decision struct {
	Verdict Verdict

	// Target is the provider/model the call was admitted to. Only
	// meaningful for VerdictAdmit.
	Target core.ProviderModel

	// FailedOver is true when Target differs from the request's
	// primary target.
	FailedOver bool

	// Reservation holds the granted capacity. The caller must Release
	// it once the call completes, succeeds or fails.
	Reservation *capacity.Reservation

	// RetryAfter is how long to wait before the next admission pass.
	// Only meaningful for VerdictDelay.
	RetryAfter time.Duration

	// Err is the rejection reason. Only meaningful for VerdictReject.
	Err error
}

// BudgetChecker is the slice of the cost ledger the decider needs.
type BudgetChecker interface {
	EstimateCost(pm core.ProviderModel, estimatedTokens int) float64
	CheckProjected(estimatedCost float64) *core.BudgetExceededError
}

// CandidateSource orders the targets an admission pass should try.
// A router implementation may deprioritize targets in cooldown.
type CandidateSource interface {
	Candidates(req *core.CallRequest) []core.ProviderModel
}

// Decider runs the admission sequence against the shared ledgers.
type Decider struct {
	budget     BudgetChecker
	capacity   *capacity.Ledger
	candidates CandidateSource
	clock      core.Clock
}

// NewDecider wires a decider to its ledgers. budget and candidates may
// be nil: without a budget checker no cost enforcement happens, and
// without a candidate source the request's own primary-then-fallbacks
// order is used.
func NewDecider(budget BudgetChecker, cap *capacity.Ledger, candidates CandidateSource, clock core.Clock) *Decider {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Decider{
		budget:     budget,
		capacity:   cap,
		candidates: candidates,
		clock:      clock,
	}
}

// Decide runs one admission pass. On VerdictAdmit the returned
// reservation is live and must eventually be released.
func (d *Decider) Decide(req *core.CallRequest) Decision {
	if d.budget != nil {
		est := d.budget.EstimateCost(req.Target, req.EstimatedTokens)
		if breach := d.budget.CheckProjected(est); breach != nil {
			slog.Debug("admission rejected on budget",
				"request_id", req.ID,
				"period", breach.Period,
				"spent", breach.Spent,
				"limit", breach.Limit,
			)
			return Decision{Verdict: VerdictReject, Err: breach}
		}
	}

	var minWait time.Duration
	for i, cand := range d.order(req) {
		cd := d.capacity.CheckAndReserve(cand, req.EstimatedTokens)
		if cd.Granted {
			failedOver := cand.Key() != req.Target.Key()
			if failedOver {
				slog.Debug("admission failed over",
					"request_id", req.ID,
					"primary", req.Target.Key(),
					"target", cand.Key(),
				)
			}
			return Decision{
				Verdict:     VerdictAdmit,
				Target:      cand,
				FailedOver:  failedOver,
				Reservation: cd.Reservation,
			}
		}
		if i == 0 || cd.RetryAfter < minWait {
			minWait = cd.RetryAfter
		}
	}

	if remaining, ok := req.Remaining(d.clock.Now()); ok {
		if minWait > remaining {
			return Decision{
				Verdict: VerdictReject,
				Err: &core.DeadlineExceededError{
					RequestID: req.ID,
					Deadline:  req.Deadline,
					Needed:    minWait,
				},
			}
		}
	}

	return Decision{Verdict: VerdictDelay, RetryAfter: minWait}
}

func (d *Decider) order(req *core.CallRequest) []core.ProviderModel {
	if d.candidates != nil {
		return d.candidates.Candidates(req)
	}
	all := make([]core.ProviderModel, 0, 1+len(req.Fallbacks))
	all = append(all, req.Target)
	return append(all, req.Fallbacks...)
}
