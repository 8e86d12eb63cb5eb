package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"verdict/internal/config"
	"verdict/internal/constants"
	"verdict/internal/evaluation"
	"verdict/internal/fieldtype"
	"verdict/internal/lists"
	"verdict/internal/logger"
	"verdict/internal/outcomes"
	"verdict/internal/rules"
	pkgerrors "verdict/pkg/errors"
	"verdict/pkg/metrics"
	"verdict/pkg/models"
)

// Runner executes backtest jobs on a worker pool sized independently from the
// request path. A job replays recorded production traffic for one rule against
// a candidate source and reports the outcome diff. Jobs either complete with a
// full result or fail with no result at all.
type Runner struct {
	compiler *rules.Compiler
	vocab    *outcomes.VocabularyProvider
	store    evaluation.ResultStore
	registry *fieldtype.Registry
	resolver lists.Resolver
	logger   logger.Logger

	workers     int
	windowLimit int
	queue       chan *Job
	jobs        sync.Map
	wg          sync.WaitGroup
}

func NewRunner(
	compiler *rules.Compiler,
	vocab *outcomes.VocabularyProvider,
	store evaluation.ResultStore,
	registry *fieldtype.Registry,
	resolver lists.Resolver,
	cfg config.BacktestConfig,
	log logger.Logger,
) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = constants.DefaultBacktestWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = constants.DefaultBacktestQueueSize
	}
	windowLimit := cfg.WindowLimit
	if windowLimit <= 0 {
		windowLimit = constants.DefaultBacktestWindowLimit
	}

	return &Runner{
		compiler:    compiler,
		vocab:       vocab,
		store:       store,
		registry:    registry,
		resolver:    resolver,
		logger:      log,
		workers:     workers,
		windowLimit: windowLimit,
		queue:       make(chan *Job, queueSize),
	}
}

// Start launches the worker pool and the finished-job sweeper. It blocks until
// ctx is cancelled and every in-flight job has drained.
func (r *Runner) Start(ctx context.Context) error {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	go r.sweepLoop(ctx)

	<-ctx.Done()
	r.wg.Wait()
	return ctx.Err()
}

func (r *Runner) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(constants.BacktestJobSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepFinishedJobs(time.Now().Add(-constants.BacktestJobRetention))
		}
	}
}

// sweepFinishedJobs drops completed and failed jobs that finished before the
// cutoff. Queued and running jobs are never touched.
func (r *Runner) sweepFinishedJobs(cutoff time.Time) {
	r.jobs.Range(func(key, value interface{}) bool {
		if value.(*Job).finishedBefore(cutoff) {
			r.jobs.Delete(key)
		}
		return true
	})
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.queue:
			metrics.BacktestQueueDepth.Set(float64(len(r.queue)))
			r.run(ctx, job)
		}
	}
}

// Submit validates the window, registers the job and enqueues it. The job id
// returns immediately; compilation and replay happen on the pool.
func (r *Runner) Submit(req SubmitRequest) (*JobView, error) {
	if !req.Window.To.After(req.Window.From) {
		return nil, pkgerrors.ErrValidation.
			WithDetail("message", "backtest window must end after it starts")
	}
	if req.Window.Limit > constants.MaxBacktestWindowLimit {
		return nil, pkgerrors.ErrValidation.
			WithDetail("message", fmt.Sprintf("window limit exceeds maximum %d", constants.MaxBacktestWindowLimit))
	}
	if req.Window.Limit <= 0 {
		req.Window.Limit = r.windowLimit
	}

	job := &Job{
		ID:          uuid.New().String(),
		RuleID:      req.RuleID,
		Source:      req.Source,
		Window:      req.Window,
		Status:      StatusQueued,
		SubmittedAt: time.Now(),
	}

	select {
	case r.queue <- job:
		r.jobs.Store(job.ID, job)
		metrics.BacktestQueueDepth.Set(float64(len(r.queue)))
	default:
		return nil, pkgerrors.ErrServiceUnavailable.
			WithDetail("message", "backtest queue is full")
	}

	view := job.Snapshot()
	return &view, nil
}

// Job returns the snapshot of a registered job, or nil when unknown.
func (r *Runner) Job(id string) *JobView {
	value, ok := r.jobs.Load(id)
	if !ok {
		return nil
	}
	view := value.(*Job).Snapshot()
	return &view
}

func (r *Runner) run(ctx context.Context, job *Job) {
	job.markRunning()
	start := time.Now()

	result, err := r.replay(ctx, job)
	if err != nil {
		job.markFailed(err)
		metrics.BacktestJobsTotal.WithLabelValues(StatusFailed).Inc()
		r.logger.WarnwCtx(ctx, "Backtest job failed",
			"job_id", job.ID,
			"rule_id", job.RuleID,
			"error", err,
		)
		return
	}

	job.markCompleted(result)
	metrics.BacktestJobsTotal.WithLabelValues(StatusCompleted).Inc()
	metrics.ObserveBacktestDuration(time.Since(start))

	r.logger.InfowCtx(ctx, "Backtest job completed",
		"job_id", job.ID,
		"rule_id", job.RuleID,
		"events_replayed", result.EventsReplayed,
		"changed_count", result.ChangedCount,
	)
}

// replay compiles the candidate alone, streams the recorded production window
// for the rule, re-normalizes each stored event with the current field
// configuration, executes the candidate, and diffs against the recorded
// outcome. Any error aborts the job; partial results are never kept.
func (r *Runner) replay(ctx context.Context, job *Job) (*Result, error) {
	vocab, err := r.vocab.Current(ctx)
	if err != nil {
		return nil, pkgerrors.ErrBacktest.WithCause(err)
	}

	candidate, err := r.compiler.Compile(job.RuleID, "", 0, job.Source, vocab)
	if err != nil {
		return nil, err
	}

	window, err := r.store.ProductionWindow(ctx, job.RuleID, job.Window.From, job.Window.To, job.Window.Limit)
	if err != nil {
		return nil, pkgerrors.ErrBacktest.WithCause(err)
	}

	resolved, err := r.resolveLists(ctx, candidate)
	if err != nil {
		return nil, pkgerrors.ErrBacktest.WithCause(err)
	}

	result := &Result{
		Diffs:           make([]Diff, 0, len(window)),
		OldDistribution: make(map[string]int),
		NewDistribution: make(map[string]int),
	}

	for _, stored := range window {
		old, ok := stored.Decisions[job.RuleID]
		if !ok {
			continue
		}

		normalized, err := r.registry.CastEvent(models.Event{
			ID:        stored.EventID,
			Timestamp: stored.Timestamp,
			Fields:    stored.Fields,
		})
		if err != nil {
			return nil, pkgerrors.ErrBacktest.
				WithCause(err).
				WithDetail("event_id", stored.EventID)
		}

		newOutcome, matched, err := candidate.Eval(ctx, normalized.Fields, resolved)
		if err != nil {
			return nil, pkgerrors.ErrBacktest.
				WithCause(err).
				WithDetail("event_id", stored.EventID)
		}
		if !matched {
			newOutcome = ""
		}

		diff := Diff{
			EventID:    stored.EventID,
			OldOutcome: old.Outcome,
			NewOutcome: newOutcome,
			Changed:    old.Outcome != newOutcome,
		}
		result.Diffs = append(result.Diffs, diff)
		result.EventsReplayed++
		if diff.Changed {
			result.ChangedCount++
		}
		if old.Outcome != "" {
			result.OldDistribution[old.Outcome]++
		}
		if newOutcome != "" {
			result.NewDistribution[newOutcome]++
		}
	}

	return result, nil
}

// resolveLists fetches the candidate's lists once per job. A backtest compares
// rule sources, so every replayed event sees the same list membership.
func (r *Runner) resolveLists(ctx context.Context, candidate *rules.CompiledRule) (map[string][]interface{}, error) {
	resolved := make(map[string][]interface{}, len(candidate.Lists))
	for _, name := range candidate.Lists {
		members, err := r.resolver.ResolveList(ctx, name)
		if err != nil {
			return nil, err
		}
		resolved[name] = members
	}
	return resolved, nil
}
