package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/signalwatch/internal/agent"
	"github.com/ppiankov/signalwatch/internal/dedupe"
	"github.com/ppiankov/signalwatch/internal/escalation"
	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/store"
	"github.com/ppiankov/signalwatch/internal/worker"
	"github.com/sirupsen/logrus"
)

// ErrUnknownAgent is returned when a named agent is not registered
var ErrUnknownAgent = errors.New("unknown agent")

// Options tune a Runner
type Options struct {
	// Deadline bounds one agent's total work; zero means none
	Deadline time.Duration
	Log      logrus.FieldLogger
	Now      func() time.Time
}

// Runner orchestrates agent runs: fetch, then gate, dedupe, escalate,
// classify and persist each event. One agent's failure never affects another.
type Runner struct {
	store    store.Store
	agents   []agent.Agent
	byName   map[string]agent.Agent
	dedup    *dedupe.Deduplicator
	checker  *escalation.Checker
	deadline time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewRunner creates a runner over agents in registration order
func NewRunner(s store.Store, agents []agent.Agent, checker *escalation.Checker, opts Options) *Runner {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if checker == nil {
		checker = escalation.NewChecker(s, nil, log)
	}

	byName := make(map[string]agent.Agent, len(agents))
	for _, a := range agents {
		byName[a.Name()] = a
	}

	return &Runner{
		store:    s,
		agents:   agents,
		byName:   byName,
		dedup:    dedupe.New(s),
		checker:  checker,
		deadline: opts.Deadline,
		log:      log,
		now:      now,
	}
}

// Agents returns the registered agents in registration order
func (r *Runner) Agents() []agent.Agent {
	return append([]agent.Agent(nil), r.agents...)
}

// RunAgent polls one agent for events since its last successful run
func (r *Runner) RunAgent(ctx context.Context, name string) (model.AgentResult, error) {
	a, ok := r.byName[name]
	if !ok {
		return model.AgentResult{}, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	return r.runAgent(ctx, a), nil
}

func (r *Runner) runAgent(ctx context.Context, a agent.Agent) model.AgentResult {
	started := r.now().UTC()
	result := r.execute(ctx, a, func(ctx context.Context) ([]model.RawEvent, error) {
		since, err := r.store.LastSuccessfulRun(ctx, a.Name())
		if err != nil {
			return nil, fmt.Errorf("load last run: %w", err)
		}
		return a.FetchNew(ctx, since)
	})

	record := model.RunRecord{
		RunID:      uuid.NewString(),
		Agent:      a.Name(),
		StartedAt:  started,
		FinishedAt: r.now().UTC(),
		Result:     result,
	}
	// the run deadline may have expired; the record is still written
	if err := r.store.RecordRun(context.WithoutCancel(ctx), record); err != nil {
		r.log.WithError(err).WithField("agent", a.Name()).Error("failed to record run")
	}
	return result
}

// RunAll runs every agent concurrently and returns results in registration order
func (r *Runner) RunAll(ctx context.Context) []model.AgentResult {
	if len(r.agents) == 0 {
		return nil
	}

	pool := worker.NewPoolContext(ctx, len(r.agents))
	pool.Start()
	for _, a := range r.agents {
		pool.Submit(worker.JobFunc(func(ctx context.Context) worker.Result {
			return agentJobResult{result: r.runAgent(ctx, a)}
		}))
	}

	raw := pool.Wait()
	results := make([]model.AgentResult, len(r.agents))
	for i, a := range r.agents {
		if jr, ok := raw[i].(agentJobResult); ok {
			results[i] = jr.result
			continue
		}
		results[i] = model.AgentResult{
			Agent:  a.Name(),
			Status: model.StatusError,
			Errors: []string{"agent did not run"},
		}
	}
	return results
}

type agentJobResult struct {
	result model.AgentResult
}

// errors are captured in the result itself
func (agentJobResult) GetError() error { return nil }

// Backfill fetches a historical range for one agent through the same per-event
// pipeline. Backfills are not recorded as runs, so they never move the
// agent's incremental poll window.
func (r *Runner) Backfill(ctx context.Context, name string, start, end time.Time) (model.AgentResult, error) {
	a, ok := r.byName[name]
	if !ok {
		return model.AgentResult{}, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	if end.Before(start) {
		return model.AgentResult{}, fmt.Errorf("backfill end %s is before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return r.execute(ctx, a, func(ctx context.Context) ([]model.RawEvent, error) {
		return a.Backfill(ctx, start, end)
	}), nil
}

// execute is the agent-level failure boundary: fetch errors, processing
// errors, panics and deadline overruns all end up in the result as ERROR
func (r *Runner) execute(ctx context.Context, a agent.Agent, fetch func(context.Context) ([]model.RawEvent, error)) (result model.AgentResult) {
	start := time.Now()
	log := r.log.WithField("agent", a.Name())
	result = model.AgentResult{Agent: a.Name(), Errors: []string{}}

	if r.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.deadline)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("panic: %v", p))
		}
		result.Status = statusOf(result)
		agentRuns.WithLabelValues(a.Name(), string(result.Status)).Inc()
		agentRunDuration.WithLabelValues(a.Name()).Observe(time.Since(start).Seconds())

		entry := log.WithFields(logrus.Fields{
			"status":     result.Status,
			"fetched":    result.FetchedCount,
			"processed":  result.ProcessedCount,
			"escalated":  result.EscalationCount,
			"rejected":   result.RejectedCount,
			"duplicates": result.DuplicateCount,
		})
		if result.Status == model.StatusError {
			entry.WithField("errors", result.Errors).Warn("agent run failed")
		} else {
			entry.Info("agent run finished")
		}
	}()

	if err := r.checker.Refresh(ctx); err != nil {
		result.Errors = append(result.Errors, r.describe(ctx, err))
		return result
	}

	events, err := fetch(ctx)
	if err != nil {
		result.Errors = append(result.Errors, r.describe(ctx, err))
		return result
	}
	result.FetchedCount = len(events)

	for _, raw := range events {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, r.describe(ctx, ctx.Err()))
			break
		}

		outcome, escalated, err := r.process(ctx, a, raw)
		eventsTotal.WithLabelValues(a.Name(), outcome).Inc()
		switch outcome {
		case outcomePersisted:
			result.ProcessedCount++
			if escalated {
				result.EscalationCount++
				eventsTotal.WithLabelValues(a.Name(), outcomeEscalated).Inc()
			}
		case outcomeRejected:
			result.RejectedCount++
		case outcomeDuplicate:
			result.DuplicateCount++
		}
		if err != nil {
			log.WithError(err).WithField("url", raw.SourceURL).Warn("event processing failed")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", raw.SourceURL, err))
		}
	}
	return result
}

// describe turns a deadline overrun into an explicit message
func (r *Runner) describe(ctx context.Context, err error) string {
	if r.deadline > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("agent deadline of %s exceeded: %v", r.deadline, err)
	}
	return err.Error()
}

func statusOf(result model.AgentResult) model.RunStatus {
	switch {
	case len(result.Errors) > 0:
		return model.StatusError
	case result.ProcessedCount > 0:
		return model.StatusSuccess
	default:
		return model.StatusNoData
	}
}
