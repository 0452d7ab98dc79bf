package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"arbiter-hq/tollgate/pkg/admission"
	"arbiter-hq/tollgate/pkg/backoff"
	"arbiter-hq/tollgate/pkg/capacity"
	"arbiter-hq/tollgate/pkg/core"
	"arbiter-hq/tollgate/pkg/costs"
	"arbiter-hq/tollgate/pkg/failover"
	"arbiter-hq/tollgate/pkg/sched"
	"arbiter-hq/tollgate/pkg/tokens"
)

// Options assembles an engine from its collaborators. Transport is
// required; zero-valued fields take defaults.
type Options struct {
	// Transport executes calls against providers. Required.
	Transport Transport

	// Clock is the time source. Defaults to the real clock.
	Clock core.Clock

	// Capacity is the rate limit ledger. Defaults to a fresh ledger
	// with a one minute window.
	Capacity *capacity.Ledger

	// Costs is the budget ledger. Defaults to a ledger with no limits.
	Costs *costs.Ledger

	// Retry bounds the per-request retry sequence.
	Retry backoff.Policy

	// QueueCapacity bounds the scheduler queue.
	QueueCapacity int

	// FailoverCooldown is how long a saturated target is deprioritized.
	FailoverCooldown time.Duration

	// Estimator estimates tokens for requests that carry prompt text
	// but no explicit estimate. Defaults to a character estimator.
	Estimator tokens.Estimator

	// Logger receives engine logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Engine accepts call requests and drives them to a terminal outcome.
type Engine struct {
	transport Transport
	clock     core.Clock
	capacity  *capacity.Ledger
	costs     *costs.Ledger
	decider   *admission.Decider
	retry     *backoff.Controller
	router    *failover.Router
	queue     *sched.Queue
	estimator tokens.Estimator
	log       *slog.Logger

	mu       sync.Mutex
	waiters  map[string]chan admission.Decision
	inflight map[string]struct{}
	handlers []Handler
	stats    stats

	cancel context.CancelFunc
	done   chan struct{}
}

// New assembles and starts an engine. Close releases its scheduler
// goroutine.
func New(opts Options) (*Engine, error) {
	if opts.Transport == nil {
		return nil, errors.New("engine requires a transport")
	}
	clock := opts.Clock
	if clock == nil {
		clock = core.RealClock{}
	}
	capLedger := opts.Capacity
	if capLedger == nil {
		capLedger = capacity.NewLedger(capacity.Config{Window: time.Minute}, clock)
	}
	costLedger := opts.Costs
	if costLedger == nil {
		costLedger = costs.NewLedger(costs.Config{}, clock)
	}
	estimator := opts.Estimator
	if estimator == nil {
		estimator = &tokens.CharEstimator{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	router := failover.NewRouter(capLedger, opts.FailoverCooldown, clock)
	e := &Engine{
		transport: opts.Transport,
		clock:     clock,
		capacity:  capLedger,
		costs:     costLedger,
		decider:   admission.NewDecider(costLedger, capLedger, router, clock),
		retry:     backoff.NewController(opts.Retry, clock),
		router:    router,
		queue:     sched.NewQueue(opts.QueueCapacity),
		estimator: estimator,
		log:       log,
		waiters:   make(map[string]chan admission.Decision),
		inflight:  make(map[string]struct{}),
		done:      make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.schedule(ctx)
	return e, nil
}

// Close stops the scheduler goroutine. In-flight Submit calls finish on
// their own; new submissions after Close will queue but never release.
func (e *Engine) Close() {
	e.cancel()
	<-e.done
}

// Subscribe registers a handler for lifecycle events. Handlers run
// synchronously and must not block.
func (e *Engine) Subscribe(h Handler) {
	e.mu.Lock()
	e.handlers = append(e.handlers, h)
	e.mu.Unlock()
}

// Submit drives one request to a terminal outcome, blocking the caller
// through queueing and backoff. Cancelling ctx abandons any wait and
// reports the request as cancelled. The returned outcome is never nil.
func (e *Engine) Submit(ctx context.Context, req *core.CallRequest) (*core.Outcome, error) {
	if err := e.prepare(req); err != nil {
		return nil, err
	}
	defer func() {
		e.mu.Lock()
		delete(e.inflight, req.ID)
		e.mu.Unlock()
	}()

	out := e.run(ctx, req)
	e.stats.record(out.Status)
	if out.Err != nil {
		return out, out.Err
	}
	return out, nil
}

// prepare validates the request and fills engine-owned fields.
func (e *Engine) prepare(req *core.CallRequest) error {
	if req == nil {
		return errors.New("nil request")
	}
	if req.Target.IsZero() {
		return fmt.Errorf("request %s has no target", req.ID)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	e.mu.Lock()
	if _, dup := e.inflight[req.ID]; dup {
		e.mu.Unlock()
		return fmt.Errorf("request %s is already in flight", req.ID)
	}
	e.inflight[req.ID] = struct{}{}
	e.mu.Unlock()
	if req.ArrivedAt.IsZero() {
		req.ArrivedAt = e.clock.Now()
	}
	if req.EstimatedTokens <= 0 && req.PromptText != "" {
		req.EstimatedTokens = e.estimator.EstimateText(req.PromptText, req.Target.Model)
	}
	if req.EstimatedTokens < 0 {
		req.EstimatedTokens = 0
	}
	return nil
}

// run is the request lifecycle loop: admission, queueing, execution,
// and retry, until a terminal outcome.
func (e *Engine) run(ctx context.Context, req *core.CallRequest) *core.Outcome {
	var (
		attempts  []core.Attempt
		totalWait time.Duration
	)

	for {
		if err := ctx.Err(); err != nil {
			return e.cancelled(req, attempts, totalWait)
		}
		if remaining, ok := req.Remaining(e.clock.Now()); ok && remaining <= 0 {
			err := &core.DeadlineExceededError{RequestID: req.ID, Deadline: req.Deadline}
			e.emit(Event{Type: EventExpired, RequestID: req.ID, Priority: req.Priority, Err: err, At: e.clock.Now()})
			return terminal(req, core.StatusExpired, attempts, totalWait, err)
		}

		dec := e.admit(req, attempts)
		if dec.Verdict == admission.VerdictDelay {
			var ok bool
			dec, ok = e.await(ctx, req, dec.RetryAfter, &totalWait)
			if !ok {
				return e.cancelled(req, attempts, totalWait)
			}
		}

		switch dec.Verdict {
		case admission.VerdictReject:
			status := core.StatusRejected
			typ := EventRejected
			if errors.Is(dec.Err, core.ErrDeadlineExceeded) && totalWait > 0 {
				status = core.StatusExpired
				typ = EventExpired
			}
			e.emit(Event{Type: typ, RequestID: req.ID, Priority: req.Priority, Err: dec.Err, At: e.clock.Now()})
			return terminal(req, status, attempts, totalWait, dec.Err)

		case admission.VerdictAdmit:
			if outcome := e.execute(ctx, req, dec, &attempts, &totalWait); outcome != nil {
				return outcome
			}
			// Retry: loop back into admission.
		}
	}
}

// admit picks a target for the next attempt. On a retry it first asks
// the router for a fallback that has not been tried this attempt
// sequence; if none qualifies, or for a first attempt, the decider runs
// its full admission pass.
func (e *Engine) admit(req *core.CallRequest, attempts []core.Attempt) admission.Decision {
	if len(attempts) > 0 {
		exhausted := make(map[string]bool, len(attempts))
		for _, a := range attempts {
			exhausted[a.Target.Key()] = true
		}
		if fb, ok := e.router.SelectFallback(req, exhausted); ok {
			est := e.costs.EstimateCost(fb, req.EstimatedTokens)
			if e.costs.CheckProjected(est) == nil {
				if cd := e.capacity.CheckAndReserve(fb, req.EstimatedTokens); cd.Granted {
					e.log.Debug("retry redirected to untried fallback",
						"request_id", req.ID,
						"primary", req.Target.Key(),
						"target", fb.Key(),
					)
					return admission.Decision{
						Verdict:     admission.VerdictAdmit,
						Target:      fb,
						FailedOver:  fb.Key() != req.Target.Key(),
						Reservation: cd.Reservation,
					}
				}
			}
		}
	}
	return e.decider.Decide(req)
}

// execute runs one admitted attempt. Returns a terminal outcome, or nil
// to re-enter admission for a retry.
func (e *Engine) execute(ctx context.Context, req *core.CallRequest, dec admission.Decision, attempts *[]core.Attempt, totalWait *time.Duration) *core.Outcome {
	number := len(*attempts) + 1
	now := e.clock.Now()

	e.emit(Event{Type: EventAdmitted, RequestID: req.ID, Target: dec.Target, Priority: req.Priority, Attempt: number, FailedOver: dec.FailedOver, At: now})
	if dec.FailedOver {
		e.emit(Event{Type: EventFailedOver, RequestID: req.ID, Target: dec.Target, Priority: req.Priority, Attempt: number, FailedOver: true, At: now})
	}

	// The reservation is held, but no lock is: the ledgers are free for
	// concurrent admissions while this call runs.
	res, err := e.transport.Execute(ctx, dec.Target, req.Payload)

	attempt := core.Attempt{
		Number:    number,
		Target:    dec.Target,
		StartedAt: now,
		Outcome:   core.Classify(err),
		Signal:    core.SignalOf(err),
		Err:       err,
	}
	if res != nil && attempt.Signal == nil {
		attempt.Signal = res.Signal
	}

	if attempt.Outcome == core.AttemptSucceeded {
		if res == nil {
			res = &Result{}
		}
		usage := res.Usage
		e.capacity.Release(dec.Reservation, usage.TotalTokens(), 1)
		cost, _ := e.costs.RecordSpend(dec.Target, usage.InputTokens, usage.OutputTokens)

		*attempts = append(*attempts, attempt)
		e.emit(Event{Type: EventSucceeded, RequestID: req.ID, Target: dec.Target, Priority: req.Priority, Attempt: number, At: e.clock.Now()})

		out := terminal(req, core.StatusSucceeded, *attempts, *totalWait, nil)
		out.Target = dec.Target
		out.FailedOver = dec.FailedOver
		out.Usage = usage
		out.Cost = cost
		return out
	}

	e.releaseFailed(dec.Reservation, attempt.Outcome)
	*attempts = append(*attempts, attempt)

	if attempt.Outcome == core.AttemptRateLimited {
		e.router.MarkSaturated(dec.Target, attempt.Signal)
	}

	bd := e.retry.NextAttempt(req, *attempts)
	if bd.Action == backoff.ActionGiveUp {
		e.emit(Event{Type: EventGaveUp, RequestID: req.ID, Target: dec.Target, Priority: req.Priority, Attempt: number, Err: bd.Reason, At: e.clock.Now()})
		out := terminal(req, core.StatusGaveUp, *attempts, *totalWait, bd.Reason)
		out.Target = dec.Target
		return out
	}

	e.emit(Event{Type: EventRetried, RequestID: req.ID, Target: dec.Target, Priority: req.Priority, Attempt: number, Wait: bd.Delay, At: e.clock.Now()})
	(*attempts)[len(*attempts)-1].BackoffApplied = bd.Delay

	select {
	case <-ctx.Done():
		return e.cancelled(req, *attempts, *totalWait)
	case <-e.clock.After(bd.Delay):
		*totalWait += bd.Delay
		return nil
	}
}

// releaseFailed reconciles a reservation for a failed attempt. A rate
// limit or fatal response still consumed a request slot upstream; a
// network-level failure consumed nothing.
func (e *Engine) releaseFailed(res *capacity.Reservation, outcome core.AttemptOutcome) {
	switch outcome {
	case core.AttemptRateLimited, core.AttemptFatal:
		e.capacity.Release(res, 0, 1)
	default:
		e.capacity.Release(res, 0, 0)
	}
}

// await parks the request in the queue until the scheduler re-admits
// it. Returns false when the caller cancelled.
func (e *Engine) await(ctx context.Context, req *core.CallRequest, retryAfter time.Duration, totalWait *time.Duration) (admission.Decision, bool) {
	now := e.clock.Now()
	entry := &sched.Entry{
		Req:        req,
		EnqueuedAt: req.ArrivedAt,
		ReleaseAt:  now.Add(retryAfter),
		ExpiresAt:  req.Deadline,
	}

	grant := make(chan admission.Decision, 1)
	e.mu.Lock()
	e.waiters[req.ID] = grant
	e.mu.Unlock()

	if !e.queue.Push(entry) {
		e.dropWaiter(req.ID)
		err := &core.QueueFullError{Capacity: e.queue.Capacity()}
		return admission.Decision{Verdict: admission.VerdictReject, Err: err}, true
	}

	e.emit(Event{Type: EventDelayed, RequestID: req.ID, Priority: req.Priority, Wait: retryAfter, At: now})
	e.log.Debug("request queued",
		"request_id", req.ID,
		"priority", req.Priority.String(),
		"retry_after", retryAfter,
	)

	select {
	case dec := <-grant:
		*totalWait += e.clock.Now().Sub(now)
		e.dropWaiter(req.ID)
		return dec, true

	case <-ctx.Done():
		*totalWait += e.clock.Now().Sub(now)
		e.dropWaiter(req.ID)
		e.queue.Remove(req.ID)
		// The scheduler may have granted a reservation in the races
		// between cancellation and removal; give it back.
		select {
		case dec := <-grant:
			if dec.Reservation != nil {
				e.capacity.Release(dec.Reservation, 0, 0)
			}
		default:
		}
		return admission.Decision{}, false
	}
}

func (e *Engine) dropWaiter(id string) {
	e.mu.Lock()
	delete(e.waiters, id)
	e.mu.Unlock()
}

// deliver hands a scheduler decision to a waiting Submit goroutine.
// Returns false if the waiter is gone (cancelled).
func (e *Engine) deliver(id string, dec admission.Decision) bool {
	e.mu.Lock()
	grant, ok := e.waiters[id]
	if ok {
		grant <- dec
	}
	e.mu.Unlock()
	return ok
}

func (e *Engine) cancelled(req *core.CallRequest, attempts []core.Attempt, totalWait time.Duration) *core.Outcome {
	err := fmt.Errorf("request %s: %w", req.ID, core.ErrCancelled)
	e.emit(Event{Type: EventCancelled, RequestID: req.ID, Priority: req.Priority, Err: err, At: e.clock.Now()})
	return terminal(req, core.StatusCancelled, attempts, totalWait, err)
}

func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	handlers := e.handlers
	e.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func terminal(req *core.CallRequest, status core.Status, attempts []core.Attempt, totalWait time.Duration, err error) *core.Outcome {
	out := &core.Outcome{
		RequestID: req.ID,
		Status:    status,
		Target:    req.Target,
		Attempts:  len(attempts),
		TotalWait: totalWait,
		Err:       err,
	}
	if n := len(attempts); n > 0 {
		out.Target = attempts[n-1].Target
		out.FailedOver = attempts[n-1].Target.Key() != req.Target.Key()
	}
	return out
}
