package evaluation

import (
	"context"
	"time"

	"verdict/internal/config"
	"verdict/internal/constants"
	"verdict/internal/engine"
	"verdict/internal/executor"
	"verdict/internal/fieldtype"
	"verdict/internal/logger"
	pkgerrors "verdict/pkg/errors"
	"verdict/pkg/metrics"
	"verdict/pkg/models"
	"verdict/pkg/retry"
)

// Service orchestrates one evaluation request: normalize the event, run the
// production ruleset, persist the result, then shadow-evaluate the same event
// best-effort. Shadow problems never affect the production response.
type Service struct {
	registry *fieldtype.Registry
	cache    *executor.Cache
	engine   *engine.Engine
	store    ResultStore
	logger   logger.Logger

	shadowEnabled bool
	writeTimeout  time.Duration
}

func NewService(
	registry *fieldtype.Registry,
	cache *executor.Cache,
	eng *engine.Engine,
	store ResultStore,
	cfg config.EvaluationConfig,
	log logger.Logger,
) *Service {
	writeTimeout := cfg.ResultWriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = constants.DefaultResultWriteTimeout
	}

	return &Service{
		registry:      registry,
		cache:         cache,
		engine:        eng,
		store:         store,
		logger:        log,
		shadowEnabled: cfg.ShadowEnabled,
		writeTimeout:  writeTimeout,
	}
}

func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResponse, error) {
	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	normalized, err := s.registry.CastEvent(models.Event{
		ID:        req.EventID,
		Timestamp: timestamp,
		Fields:    req.Fields,
	})
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues(constants.GenerationProduction, "cast_error").Inc()
		return nil, err
	}

	rs, err := s.cache.Current(ctx, constants.GenerationProduction)
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues(constants.GenerationProduction, "error").Inc()
		return nil, err
	}

	result, err := s.engine.Evaluate(ctx, rs, normalized)
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues(constants.GenerationProduction, "error").Inc()
		return nil, err
	}
	metrics.EvaluationsTotal.WithLabelValues(constants.GenerationProduction, "success").Inc()

	s.persist(ctx, result, timestamp, normalized.Fields)

	if s.shadowEnabled {
		s.evaluateShadow(ctx, normalized, timestamp)
	}

	return newEvaluateResponse(result), nil
}

// persist writes the production result append-only, retrying transient store
// failures. Exhausted retries are logged but do not fail the request: the
// caller already has a correct decision in hand.
func (s *Service) persist(ctx context.Context, result *engine.EvaluationResult, timestamp time.Time, fields map[string]interface{}) {
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	stored := newStoredResult(result, timestamp, fields)
	err := retry.Retry(writeCtx, retry.DefaultPolicy(), func() error {
		return s.store.Save(writeCtx, stored)
	})
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to persist evaluation result",
			"event_id", result.EventID,
			"generation", result.Generation,
			"error", err,
		)
	}
}

// evaluateShadow runs the shadow ruleset against the already-normalized event.
// Every failure, including panics, is swallowed after logging and counting.
func (s *Service) evaluateShadow(ctx context.Context, event models.NormalizedEvent, timestamp time.Time) {
	defer func() {
		if r := recover(); r != nil {
			err := pkgerrors.RecoverPanic(r)
			metrics.ShadowErrorsTotal.WithLabelValues("panic").Inc()
			s.logger.ErrorwCtx(ctx, "Shadow evaluation panicked",
				"event_id", event.ID,
				"error", err,
			)
		}
	}()

	rs, err := s.cache.Current(ctx, constants.GenerationShadow)
	if err != nil {
		metrics.ShadowErrorsTotal.WithLabelValues("build").Inc()
		s.logger.WarnwCtx(ctx, "Shadow ruleset unavailable",
			"event_id", event.ID,
			"error", err,
		)
		return
	}
	if rs.Len() == 0 {
		return
	}

	result, err := s.engine.Evaluate(ctx, rs, event)
	if err != nil {
		metrics.ShadowErrorsTotal.WithLabelValues("evaluate").Inc()
		metrics.EvaluationsTotal.WithLabelValues(constants.GenerationShadow, "error").Inc()
		s.logger.WarnwCtx(ctx, "Shadow evaluation failed",
			"event_id", event.ID,
			"error", err,
		)
		return
	}
	metrics.EvaluationsTotal.WithLabelValues(constants.GenerationShadow, "success").Inc()

	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	if err := s.store.Save(writeCtx, newStoredResult(result, timestamp, event.Fields)); err != nil {
		metrics.ShadowErrorsTotal.WithLabelValues("persist").Inc()
		s.logger.WarnwCtx(ctx, "Failed to persist shadow result",
			"event_id", event.ID,
			"error", err,
		)
	}
}
