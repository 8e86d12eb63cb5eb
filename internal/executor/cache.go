package executor

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"verdict/internal/logger"
	"verdict/internal/outcomes"
	"verdict/internal/rules"
	pkgerrors "verdict/pkg/errors"
	"verdict/pkg/metrics"
)

// Cache holds one compiled ruleset per generation and rebuilds it lazily after
// invalidation. Rebuilds are serialized per generation through singleflight so
// a burst of requests after an invalidation triggers exactly one build; the
// old ruleset keeps serving until the new one is fully compiled.
type Cache struct {
	repo     rules.Repository
	vocab    *outcomes.VocabularyProvider
	compiler *rules.Compiler
	logger   logger.Logger

	mu    sync.RWMutex
	slots map[string]*rules.Ruleset

	group singleflight.Group
}

func NewCache(repo rules.Repository, vocab *outcomes.VocabularyProvider, compiler *rules.Compiler, log logger.Logger) *Cache {
	return &Cache{
		repo:     repo,
		vocab:    vocab,
		compiler: compiler,
		logger:   log,
		slots:    make(map[string]*rules.Ruleset),
	}
}

// Current returns the cached ruleset for a generation, building it if the slot
// is empty. A build failure leaves the slot empty and surfaces the error to
// the caller; it is never cached.
func (c *Cache) Current(ctx context.Context, generation string) (*rules.Ruleset, error) {
	c.mu.RLock()
	rs := c.slots[generation]
	c.mu.RUnlock()

	if rs != nil {
		return rs, nil
	}

	built, err, _ := c.group.Do(generation, func() (interface{}, error) {
		// Another caller may have filled the slot while we waited.
		c.mu.RLock()
		cached := c.slots[generation]
		c.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		rs, err := c.build(ctx, generation)
		if err != nil {
			metrics.CacheRebuildsTotal.WithLabelValues(generation, "error").Inc()
			return nil, err
		}

		c.mu.Lock()
		c.slots[generation] = rs
		c.mu.Unlock()

		metrics.CacheRebuildsTotal.WithLabelValues(generation, "success").Inc()
		metrics.SetActiveRules(generation, rs.Len())

		c.logger.InfowCtx(ctx, "Rebuilt ruleset cache",
			"generation", generation,
			"config_version", rs.ConfigVersion,
			"rules_count", rs.Len(),
		)
		return rs, nil
	})
	if err != nil {
		return nil, err
	}

	return built.(*rules.Ruleset), nil
}

// Invalidate empties one generation's slot. The next Current call rebuilds it.
func (c *Cache) Invalidate(generation string) {
	c.mu.Lock()
	delete(c.slots, generation)
	c.mu.Unlock()
}

// InvalidateAll empties every slot, used when the outcome vocabulary or field
// configuration changes underneath all generations.
func (c *Cache) InvalidateAll() {
	c.vocab.Invalidate()
	c.mu.Lock()
	c.slots = make(map[string]*rules.Ruleset)
	c.mu.Unlock()
}

func (c *Cache) build(ctx context.Context, generation string) (*rules.Ruleset, error) {
	cfg, err := c.repo.GetCurrentConfig(ctx, generation)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s config: %w", generation, err)
	}
	if cfg == nil {
		return &rules.Ruleset{Generation: generation}, nil
	}

	vocab, err := c.vocab.Current(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]rules.BuildEntry, 0, len(cfg.Entries))
	for _, entry := range cfg.Entries {
		be, err := c.resolveEntry(ctx, entry)
		if err != nil {
			return nil, err
		}
		entries = append(entries, be)
	}

	return c.compiler.BuildRuleset(generation, cfg.Version, entries, vocab)
}

// resolveEntry materializes a config entry's source: drafts carry it inline,
// everything else references a saved revision.
func (c *Cache) resolveEntry(ctx context.Context, entry rules.ConfigEntry) (rules.BuildEntry, error) {
	if entry.IsDraft() {
		return rules.BuildEntry{
			RuleID: entry.RuleID,
			Name:   entry.Name,
			Source: entry.Source,
		}, nil
	}

	rev, err := c.repo.GetRevision(ctx, entry.RuleID, entry.Revision)
	if err != nil {
		return rules.BuildEntry{}, fmt.Errorf("failed to load revision %d of rule %s: %w", entry.Revision, entry.RuleID, err)
	}
	if rev == nil {
		return rules.BuildEntry{}, pkgerrors.ErrNotFound.
			WithDetail("rule_id", entry.RuleID).
			WithDetail("revision", entry.Revision)
	}

	return rules.BuildEntry{
		RuleID:   rev.RuleID,
		Name:     rev.Name,
		Revision: rev.Revision,
		Source:   rev.Source,
	}, nil
}
