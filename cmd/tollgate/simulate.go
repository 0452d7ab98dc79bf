package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"arbiter-hq/tollgate/pkg/cli"
	"arbiter-hq/tollgate/pkg/config"
	"arbiter-hq/tollgate/pkg/core"
	"arbiter-hq/tollgate/pkg/costs"
	"arbiter-hq/tollgate/pkg/engine"
	"arbiter-hq/tollgate/pkg/keys"
	"arbiter-hq/tollgate/pkg/providerhint"
	"arbiter-hq/tollgate/pkg/store"
)

var simulateFlags struct {
	requests    int
	workers     int
	seed        int64
	latency     time.Duration
	failureRate float64
	limitRate   float64
	deadline    time.Duration
	format      string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a synthetic workload through the engine",
	Long: `Drive a synthetic request workload through the full admission
pipeline against a stub provider transport.

Requests are spread across every configured provider/model target with a
mixed priority distribution. The stub transport sleeps for a configurable
latency and fails a configurable fraction of calls with rate-limit and
transient errors, so queueing, backoff, and failover behavior can be
observed without spending real money.

Outcomes are journaled to the configured store backend, so a follow-up
run against the same SQLite file starts with warm budgets.

Examples:
  # 200 requests against the default config
  tollgate simulate

  # Heavier load with synthetic provider failures
  tollgate simulate --requests 2000 --workers 32 --limit-rate 0.1 --failure-rate 0.05

  # Deterministic run with a JSON report
  tollgate simulate --seed 42 --format json`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().IntVar(&simulateFlags.requests, "requests", 200, "number of requests to submit")
	simulateCmd.Flags().IntVar(&simulateFlags.workers, "workers", 8, "concurrent submitters")
	simulateCmd.Flags().Int64Var(&simulateFlags.seed, "seed", 0, "random seed (0 = time-based)")
	simulateCmd.Flags().DurationVar(&simulateFlags.latency, "latency", 20*time.Millisecond, "stub provider latency")
	simulateCmd.Flags().Float64Var(&simulateFlags.failureRate, "failure-rate", 0.0, "fraction of calls failing with a transient error")
	simulateCmd.Flags().Float64Var(&simulateFlags.limitRate, "limit-rate", 0.0, "fraction of calls failing with a provider rate limit")
	simulateCmd.Flags().DurationVar(&simulateFlags.deadline, "deadline", 0, "per-request deadline (0 = none)")
	simulateCmd.Flags().StringVar(&simulateFlags.format, "format", "text", "report format: text, json")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	targets := cfg.Targets()
	if len(targets) == 0 {
		return errors.New("no provider/model targets configured")
	}

	seed := simulateFlags.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	transport := &stubTransport{
		rng:         rand.New(rand.NewSource(seed + 1)),
		latency:     simulateFlags.latency,
		failureRate: simulateFlags.failureRate,
		limitRate:   simulateFlags.limitRate,
	}

	ctx := cli.SetupSignalHandler()
	a, err := buildApp(ctx, cfg, transport)
	if err != nil {
		return err
	}
	defer a.Close()
	transport.keys = a.keys

	// Pre-roll the whole workload so worker goroutines never touch the rng.
	work := make([]*core.CallRequest, simulateFlags.requests)
	for i := range work {
		pm := targets[i%len(targets)]
		req := &core.CallRequest{
			Target:          pm,
			Fallbacks:       cfg.Fallbacks(pm.Provider, pm.Model),
			EstimatedTokens: 200 + rng.Intn(1800),
			Priority:        rollPriority(rng),
		}
		if simulateFlags.deadline > 0 {
			req.Deadline = time.Now().Add(simulateFlags.deadline)
		}
		work[i] = req
	}

	progress := cli.NewProgressReporter(nil)
	progress.Start(int64(len(work)))

	var (
		wg        sync.WaitGroup
		completed atomic.Int64
	)
	jobs := make(chan *core.CallRequest)
	started := time.Now()

	for w := 0; w < simulateFlags.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				out, err := a.engine.Submit(ctx, req)
				if err != nil {
					a.log.Error("submit failed", "error", err)
				} else if err := store.RecordOutcome(ctx, a.journal, out, time.Now()); err != nil {
					a.log.Error("journal append failed", "request_id", out.RequestID, "error", err)
				}
				progress.Update(completed.Add(1))
			}
		}()
	}

feed:
	for _, req := range work {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- req:
		}
	}
	close(jobs)
	wg.Wait()
	progress.Finish()

	report := buildReport(a, seed, time.Since(started))
	fmt.Println()
	return cli.NewFormatter(cli.OutputFormat(simulateFlags.format)).FormatTo(os.Stdout, report)
}

// rollPriority returns a priority with a distribution resembling a mixed
// production workload: mostly normal, some background, a few urgent.
func rollPriority(rng *rand.Rand) core.Priority {
	switch roll := rng.Float64(); {
	case roll < 0.10:
		return core.PriorityBulk
	case roll < 0.30:
		return core.PriorityLow
	case roll < 0.90:
		return core.PriorityNormal
	default:
		return core.PriorityHigh
	}
}

// stubTransport is a synthetic provider. It sleeps for the configured
// latency and fails a configured fraction of calls, rate limits first so
// that --limit-rate and --failure-rate are independent fractions. When a
// key manager is configured for the provider, each call draws a key and
// reports the result back, so rotation and cooldown are observable.
type stubTransport struct {
	mu          sync.Mutex
	rng         *rand.Rand
	latency     time.Duration
	failureRate float64
	limitRate   float64
	keys        map[string]*keys.Manager
}

// Execute implements engine.Transport.
func (t *stubTransport) Execute(ctx context.Context, target core.ProviderModel, payload any) (*engine.Result, error) {
	t.mu.Lock()
	roll := t.rng.Float64()
	in := 200 + t.rng.Intn(1800)
	out := 50 + t.rng.Intn(950)
	t.mu.Unlock()

	var key string
	if mgr := t.keys[target.Provider]; mgr != nil {
		k, err := mgr.Next()
		if err != nil {
			return nil, &core.TransientProviderError{Target: target, Cause: err}
		}
		key = k
	}

	if t.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.latency):
		}
	}

	switch {
	case roll < t.limitRate:
		signal := providerhint.For(target.Provider, nil).ParseSignal(t.rateLimitHeaders(target))
		if mgr := t.keys[target.Provider]; mgr != nil && key != "" {
			mgr.ReportRateLimit(key, signal)
		}
		return nil, &core.RateLimitedError{
			Target:  target,
			Signal:  signal,
			Message: "synthetic rate limit",
		}
	case roll < t.limitRate+t.failureRate:
		return nil, &core.TransientProviderError{
			Target:     target,
			StatusCode: 503,
			Cause:      errors.New("synthetic upstream failure"),
		}
	default:
		if mgr := t.keys[target.Provider]; mgr != nil && key != "" {
			mgr.ReportSuccess(key, nil)
		}
		return &engine.Result{
			Usage: core.Usage{InputTokens: in, OutputTokens: out},
		}, nil
	}
}

// rateLimitHeaders fabricates the 429 response headers a provider would
// send when fully saturated, in that provider's native header family.
func (t *stubTransport) rateLimitHeaders(target core.ProviderModel) http.Header {
	h := http.Header{}
	h.Set("Retry-After", "1")
	switch strings.ToLower(target.Provider) {
	case "openai":
		h.Set("x-ratelimit-remaining-requests", "0")
		h.Set("x-ratelimit-limit-requests", strconv.Itoa(target.RequestsPerMinute))
		h.Set("x-ratelimit-reset-requests", "1s")
	case "anthropic":
		h.Set("anthropic-ratelimit-requests-remaining", "0")
		h.Set("anthropic-ratelimit-requests-limit", strconv.Itoa(target.RequestsPerMinute))
	default:
		h.Set("x-ratelimit-remaining", "0")
		h.Set("x-ratelimit-limit", strconv.Itoa(target.RequestsPerMinute))
	}
	return h
}

// simulateReport is the final run summary, rendered as text or JSON.
type simulateReport struct {
	Seed       int64   `json:"seed"`
	Duration   string  `json:"duration"`
	Throughput float64 `json:"throughput_rps"`

	Submitted int64 `json:"submitted"`
	Succeeded int64 `json:"succeeded"`
	Rejected  int64 `json:"rejected"`
	Expired   int64 `json:"expired"`
	GaveUp    int64 `json:"gave_up"`
	Cancelled int64 `json:"cancelled"`

	DailySpend  float64            `json:"daily_spend_usd"`
	DailyBudget float64            `json:"daily_budget_usd,omitempty"`
	ByTarget    map[string]float64 `json:"spend_by_target"`
}

func buildReport(a *app, seed int64, elapsed time.Duration) *simulateReport {
	st := a.engine.Stats()
	daily := a.costs.CheckBudget(costs.PeriodDaily)

	r := &simulateReport{
		Seed:        seed,
		Duration:    elapsed.Round(time.Millisecond).String(),
		Submitted:   st.Submitted,
		Succeeded:   st.Succeeded,
		Rejected:    st.Rejected,
		Expired:     st.Expired,
		GaveUp:      st.GaveUp,
		Cancelled:   st.Cancelled,
		DailySpend:  daily.Spent,
		DailyBudget: daily.Limit,
		ByTarget:    a.costs.Breakdown(costs.PeriodDaily),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		r.Throughput = float64(st.Succeeded) / secs
	}
	return r
}

// String renders the report for the text formatter.
func (r *simulateReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Simulation complete (seed %d)\n", r.Seed)
	fmt.Fprintf(&b, "Duration:   %s (%.1f req/s)\n", r.Duration, r.Throughput)
	fmt.Fprintf(&b, "Requests:   %d submitted, %d succeeded, %d rejected, %d expired, %d gave up, %d cancelled\n",
		r.Submitted, r.Succeeded, r.Rejected, r.Expired, r.GaveUp, r.Cancelled)
	if r.DailyBudget > 0 {
		fmt.Fprintf(&b, "Spend:      $%.4f of $%.2f daily budget\n", r.DailySpend, r.DailyBudget)
	} else {
		fmt.Fprintf(&b, "Spend:      $%.4f today\n", r.DailySpend)
	}
	if len(r.ByTarget) > 0 {
		b.WriteString("By target:\n")
		names := make([]string, 0, len(r.ByTarget))
		for k := range r.ByTarget {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			fmt.Fprintf(&b, "  %-40s $%.4f\n", k, r.ByTarget[k])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
