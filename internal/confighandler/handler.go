package confighandler

import (
	"context"

	"verdict/internal/constants"
	"verdict/internal/executor"
	"verdict/internal/fieldtype"
	"verdict/internal/logger"
	"verdict/pkg/models"
)

// Handler reacts to config-update events from the broker. Other instances (or
// the admin plane) announce mutations here; this instance only needs to drop
// the matching caches, the next request rebuilds them from the database.
type Handler struct {
	cache    *executor.Cache
	registry *fieldtype.Registry
	logger   logger.Logger
}

func NewHandler(cache *executor.Cache, registry *fieldtype.Registry, log logger.Logger) *Handler {
	return &Handler{
		cache:    cache,
		registry: registry,
		logger:   log,
	}
}

func (h *Handler) HandleConfigUpdateEvent(ctx context.Context, event models.ConfigUpdateEvent) error {
	h.logger.InfowCtx(ctx, "Received config update event",
		"event_type", event.EventType,
		"generation", event.Generation,
		"rule_id", event.RuleID,
		"action", event.Action,
	)

	switch event.EventType {
	case models.EventTypeRulesetUpdated:
		if event.Generation == "" {
			h.cache.Invalidate(constants.GenerationProduction)
			h.cache.Invalidate(constants.GenerationShadow)
		} else {
			h.cache.Invalidate(event.Generation)
		}
		return nil

	case models.EventTypeFieldTypesUpdated:
		return h.registry.Reload(ctx)

	case models.EventTypeOutcomesUpdated:
		// Vocabulary feeds compilation, so every generation goes stale.
		h.cache.InvalidateAll()
		return nil

	default:
		h.logger.WarnwCtx(ctx, "Ignoring unknown config event type",
			"event_type", event.EventType,
		)
		return nil
	}
}
