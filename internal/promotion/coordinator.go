package promotion

import (
	"context"
	"sync"
	"time"

	"verdict/internal/broker"
	"verdict/internal/constants"
	"verdict/internal/evaluation"
	"verdict/internal/executor"
	"verdict/internal/logger"
	"verdict/internal/outcomes"
	"verdict/internal/rules"
	pkgerrors "verdict/pkg/errors"
	"verdict/pkg/metrics"
	"verdict/pkg/models"
)

// Coordinator moves rules between the shadow and production generations.
// Operations on the same rule id are serialized through a per-rule mutex;
// every database mutation of one operation happens in a single transaction,
// so a failed promotion leaves the prior state exactly intact.
type Coordinator struct {
	repo     rules.Repository
	compiler *rules.Compiler
	vocab    *outcomes.VocabularyProvider
	store    evaluation.ResultStore
	cache    *executor.Cache
	producer broker.Producer
	topic    string
	logger   logger.Logger

	locks sync.Map
}

func NewCoordinator(
	repo rules.Repository,
	compiler *rules.Compiler,
	vocab *outcomes.VocabularyProvider,
	store evaluation.ResultStore,
	cache *executor.Cache,
	producer broker.Producer,
	topic string,
	log logger.Logger,
) *Coordinator {
	return &Coordinator{
		repo:     repo,
		compiler: compiler,
		vocab:    vocab,
		store:    store,
		cache:    cache,
		producer: producer,
		topic:    topic,
		logger:   log,
	}
}

func (c *Coordinator) lock(ruleID string) func() {
	value, _ := c.locks.LoadOrStore(ruleID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CheckRule compile-checks a candidate source against the current outcome
// vocabulary without persisting anything.
func (c *Coordinator) CheckRule(ctx context.Context, ruleID, source string) error {
	vocab, err := c.vocab.Current(ctx)
	if err != nil {
		return err
	}
	return c.compiler.Check(ruleID, source, vocab)
}

// DeployToShadow compile-checks the candidate, upserts it into the shadow
// configuration as an inline draft, clears the rule's accumulated shadow
// results so its observation window restarts, and announces the change.
func (c *Coordinator) DeployToShadow(ctx context.Context, ruleID, name, source, changedBy string) error {
	unlock := c.lock(ruleID)
	defer unlock()

	vocab, err := c.vocab.Current(ctx)
	if err != nil {
		metrics.PromotionsTotal.WithLabelValues("deploy_to_shadow", "error").Inc()
		return err
	}
	if _, err := c.compiler.Compile(ruleID, name, 0, source, vocab); err != nil {
		metrics.PromotionsTotal.WithLabelValues("deploy_to_shadow", "error").Inc()
		return err
	}

	err = c.repo.WithinTx(ctx, func(tx rules.Tx) error {
		cfg, err := tx.GetCurrentConfig(ctx, constants.GenerationShadow)
		if err != nil {
			return err
		}

		entry := rules.ConfigEntry{
			RuleID: ruleID,
			Name:   name,
			Source: source,
		}
		return tx.InsertConfig(ctx, &rules.RulesetConfig{
			Generation: constants.GenerationShadow,
			Entries:    upsertEntry(cfg, entry),
			ChangedBy:  changedBy,
		})
	})
	if err != nil {
		metrics.PromotionsTotal.WithLabelValues("deploy_to_shadow", "error").Inc()
		return pkgerrors.ErrPromotion.WithCause(err).WithDetail("rule_id", ruleID)
	}

	c.purgeShadowHistory(ctx, ruleID)
	c.cache.Invalidate(constants.GenerationShadow)
	c.publish(ctx, models.ConfigUpdateEvent{
		EventType:  models.EventTypeRulesetUpdated,
		Generation: constants.GenerationShadow,
		RuleID:     ruleID,
		Action:     models.ActionDeployToShadow,
		Timestamp:  time.Now(),
		ChangedBy:  changedBy,
	})

	metrics.PromotionsTotal.WithLabelValues("deploy_to_shadow", "success").Inc()
	c.logger.InfowCtx(ctx, "Deployed rule to shadow",
		"rule_id", ruleID,
		"changed_by", changedBy,
	)
	return nil
}

// Promote turns the rule's shadow entry into production configuration in one
// transaction: persist the draft as a new revision (unless the entry already
// pins one), append a production configuration including it, and append a
// shadow configuration without it.
func (c *Coordinator) Promote(ctx context.Context, ruleID, changedBy, reason string) error {
	unlock := c.lock(ruleID)
	defer unlock()

	vocab, err := c.vocab.Current(ctx)
	if err != nil {
		metrics.PromotionsTotal.WithLabelValues("promote", "error").Inc()
		return err
	}

	err = c.repo.WithinTx(ctx, func(tx rules.Tx) error {
		shadowCfg, err := tx.GetCurrentConfig(ctx, constants.GenerationShadow)
		if err != nil {
			return err
		}
		if shadowCfg == nil {
			return pkgerrors.ErrNotFound.WithDetail("message", "no shadow configuration exists")
		}
		entry, ok := shadowCfg.Entry(ruleID)
		if !ok {
			return pkgerrors.ErrNotFound.
				WithDetail("rule_id", ruleID).
				WithDetail("message", "rule is not deployed to shadow")
		}

		revision := entry.Revision
		if entry.IsDraft() {
			// Re-validate against the vocabulary in effect now, it may have
			// changed since the shadow deploy.
			compiled, err := c.compiler.Compile(ruleID, entry.Name, 0, entry.Source, vocab)
			if err != nil {
				return err
			}

			revision, err = tx.NextRevision(ctx, ruleID)
			if err != nil {
				return err
			}
			if err := tx.InsertRevision(ctx, &rules.RuleRevision{
				RuleID:       ruleID,
				Name:         entry.Name,
				Revision:     revision,
				Source:       entry.Source,
				Outcomes:     compiled.Outcomes,
				State:        constants.RuleStateActive,
				ChangedBy:    changedBy,
				ChangeReason: reason,
			}); err != nil {
				return err
			}
		}

		prodCfg, err := tx.GetCurrentConfig(ctx, constants.GenerationProduction)
		if err != nil {
			return err
		}
		if err := tx.InsertConfig(ctx, &rules.RulesetConfig{
			Generation: constants.GenerationProduction,
			Entries: upsertEntry(prodCfg, rules.ConfigEntry{
				RuleID:   ruleID,
				Name:     entry.Name,
				Revision: revision,
			}),
			ChangedBy: changedBy,
		}); err != nil {
			return err
		}

		return tx.InsertConfig(ctx, &rules.RulesetConfig{
			Generation: constants.GenerationShadow,
			Entries:    shadowCfg.WithoutRule(ruleID),
			ChangedBy:  changedBy,
		})
	})
	if err != nil {
		metrics.PromotionsTotal.WithLabelValues("promote", "error").Inc()
		if pkgerrors.IsNotFound(err) || pkgerrors.IsCompileError(err) {
			return err
		}
		return pkgerrors.ErrPromotion.WithCause(err).WithDetail("rule_id", ruleID)
	}

	c.cache.Invalidate(constants.GenerationProduction)
	c.cache.Invalidate(constants.GenerationShadow)
	c.publish(ctx, models.ConfigUpdateEvent{
		EventType: models.EventTypeRulesetUpdated,
		RuleID:    ruleID,
		Action:    models.ActionPromote,
		Timestamp: time.Now(),
		ChangedBy: changedBy,
	})

	metrics.PromotionsTotal.WithLabelValues("promote", "success").Inc()
	c.logger.InfowCtx(ctx, "Promoted rule to production",
		"rule_id", ruleID,
		"changed_by", changedBy,
	)
	return nil
}

// RemoveFromShadow drops the rule's shadow entry and purges its shadow result
// history. Production is untouched.
func (c *Coordinator) RemoveFromShadow(ctx context.Context, ruleID, changedBy string) error {
	unlock := c.lock(ruleID)
	defer unlock()

	err := c.repo.WithinTx(ctx, func(tx rules.Tx) error {
		cfg, err := tx.GetCurrentConfig(ctx, constants.GenerationShadow)
		if err != nil {
			return err
		}
		if cfg == nil {
			return pkgerrors.ErrNotFound.WithDetail("message", "no shadow configuration exists")
		}
		if _, ok := cfg.Entry(ruleID); !ok {
			return pkgerrors.ErrNotFound.
				WithDetail("rule_id", ruleID).
				WithDetail("message", "rule is not deployed to shadow")
		}

		return tx.InsertConfig(ctx, &rules.RulesetConfig{
			Generation: constants.GenerationShadow,
			Entries:    cfg.WithoutRule(ruleID),
			ChangedBy:  changedBy,
		})
	})
	if err != nil {
		metrics.PromotionsTotal.WithLabelValues("remove_from_shadow", "error").Inc()
		if pkgerrors.IsNotFound(err) {
			return err
		}
		return pkgerrors.ErrPromotion.WithCause(err).WithDetail("rule_id", ruleID)
	}

	c.purgeShadowHistory(ctx, ruleID)
	c.cache.Invalidate(constants.GenerationShadow)
	c.publish(ctx, models.ConfigUpdateEvent{
		EventType:  models.EventTypeRulesetUpdated,
		Generation: constants.GenerationShadow,
		RuleID:     ruleID,
		Action:     models.ActionRemoveFromShadow,
		Timestamp:  time.Now(),
		ChangedBy:  changedBy,
	})

	metrics.PromotionsTotal.WithLabelValues("remove_from_shadow", "success").Inc()
	return nil
}

// purgeShadowHistory is best-effort: a stale observation window is preferable
// to failing a committed configuration change.
func (c *Coordinator) purgeShadowHistory(ctx context.Context, ruleID string) {
	if err := c.store.PurgeShadowResults(ctx, ruleID); err != nil {
		c.logger.WarnwCtx(ctx, "Failed to purge shadow result history",
			"rule_id", ruleID,
			"error", err,
		)
	}
}

func (c *Coordinator) publish(ctx context.Context, event models.ConfigUpdateEvent) {
	if c.producer == nil {
		return
	}
	if err := c.producer.Publish(ctx, c.topic, event); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to publish config update event",
			"event_type", event.EventType,
			"action", event.Action,
			"rule_id", event.RuleID,
			"error", err,
		)
	}
}

// upsertEntry replaces the rule's entry in place, or appends it, preserving
// the configuration order.
func upsertEntry(cfg *rules.RulesetConfig, entry rules.ConfigEntry) []rules.ConfigEntry {
	if cfg == nil {
		return []rules.ConfigEntry{entry}
	}

	entries := make([]rules.ConfigEntry, len(cfg.Entries))
	copy(entries, cfg.Entries)
	for i, e := range entries {
		if e.RuleID == entry.RuleID {
			entries[i] = entry
			return entries
		}
	}
	return append(entries, entry)
}
