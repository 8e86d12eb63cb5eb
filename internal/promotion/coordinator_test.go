package promotion

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verdict/internal/constants"
	"verdict/internal/evaluation"
	"verdict/internal/executor"
	"verdict/internal/logger"
	"verdict/internal/outcomes"
	"verdict/internal/rules"
	pkgerrors "verdict/pkg/errors"
	"verdict/pkg/models"
)

type fakeOutcomesRepo struct{}

func (f *fakeOutcomesRepo) List(ctx context.Context) ([]outcomes.Outcome, error) {
	return []outcomes.Outcome{{Name: "HOLD"}, {Name: "DENY"}}, nil
}

// memRepo is an in-memory rules.Repository with transactional semantics:
// writes stage on a copy and apply only when the closure succeeds.
type memRepo struct {
	mu        sync.Mutex
	configs   map[string][]*rules.RulesetConfig
	revisions map[string][]*rules.RuleRevision

	failInsertConfigAfter int
}

func newMemRepo() *memRepo {
	return &memRepo{
		configs:   make(map[string][]*rules.RulesetConfig),
		revisions: make(map[string][]*rules.RuleRevision),
	}
}

func (m *memRepo) current(generation string) *rules.RulesetConfig {
	versions := m.configs[generation]
	if len(versions) == 0 {
		return nil
	}
	return versions[len(versions)-1]
}

func (m *memRepo) GetCurrentConfig(ctx context.Context, generation string) (*rules.RulesetConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(generation), nil
}

func (m *memRepo) GetRevision(ctx context.Context, ruleID string, revision int) (*rules.RuleRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rev := range m.revisions[ruleID] {
		if rev.Revision == revision {
			return rev, nil
		}
	}
	return nil, nil
}

func (m *memRepo) GetCurrentRevision(ctx context.Context, ruleID string) (*rules.RuleRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	revs := m.revisions[ruleID]
	if len(revs) == 0 {
		return nil, nil
	}
	return revs[len(revs)-1], nil
}

func (m *memRepo) ListRevisions(ctx context.Context, ruleID string) ([]rules.RuleRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]rules.RuleRevision, 0, len(m.revisions[ruleID]))
	for i := len(m.revisions[ruleID]) - 1; i >= 0; i-- {
		out = append(out, *m.revisions[ruleID][i])
	}
	return out, nil
}

func (m *memRepo) WithinTx(ctx context.Context, fn func(tx rules.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{repo: m}
	if err := fn(tx); err != nil {
		return err
	}

	for generation, cfgs := range tx.stagedConfigs {
		m.configs[generation] = append(m.configs[generation], cfgs...)
	}
	for ruleID, revs := range tx.stagedRevisions {
		m.revisions[ruleID] = append(m.revisions[ruleID], revs...)
	}
	return nil
}

type memTx struct {
	repo            *memRepo
	stagedConfigs   map[string][]*rules.RulesetConfig
	stagedRevisions map[string][]*rules.RuleRevision
	insertedConfigs int
}

func (t *memTx) GetCurrentConfig(ctx context.Context, generation string) (*rules.RulesetConfig, error) {
	if staged := t.stagedConfigs[generation]; len(staged) > 0 {
		return staged[len(staged)-1], nil
	}
	return t.repo.current(generation), nil
}

func (t *memTx) NextRevision(ctx context.Context, ruleID string) (int, error) {
	next := 1
	for _, rev := range t.repo.revisions[ruleID] {
		if rev.Revision >= next {
			next = rev.Revision + 1
		}
	}
	for _, rev := range t.stagedRevisions[ruleID] {
		if rev.Revision >= next {
			next = rev.Revision + 1
		}
	}
	return next, nil
}

func (t *memTx) InsertRevision(ctx context.Context, rev *rules.RuleRevision) error {
	if t.stagedRevisions == nil {
		t.stagedRevisions = make(map[string][]*rules.RuleRevision)
	}
	t.stagedRevisions[rev.RuleID] = append(t.stagedRevisions[rev.RuleID], rev)
	return nil
}

func (t *memTx) InsertConfig(ctx context.Context, cfg *rules.RulesetConfig) error {
	t.insertedConfigs++
	if t.repo.failInsertConfigAfter > 0 && t.insertedConfigs > t.repo.failInsertConfigAfter {
		return fmt.Errorf("insert failed")
	}

	version := 1
	if current, _ := t.GetCurrentConfig(ctx, cfg.Generation); current != nil {
		version = current.Version + 1
	}
	cfg.Version = version

	if t.stagedConfigs == nil {
		t.stagedConfigs = make(map[string][]*rules.RulesetConfig)
	}
	t.stagedConfigs[cfg.Generation] = append(t.stagedConfigs[cfg.Generation], cfg)
	return nil
}

type fakeShadowStore struct {
	mu     sync.Mutex
	purged []string
}

func (f *fakeShadowStore) Save(ctx context.Context, result *evaluation.StoredResult) error {
	return nil
}

func (f *fakeShadowStore) ProductionWindow(ctx context.Context, ruleID string, from, to time.Time, limit int) ([]evaluation.StoredResult, error) {
	return nil, nil
}

func (f *fakeShadowStore) PurgeShadowResults(ctx context.Context, ruleID string) error {
	f.mu.Lock()
	f.purged = append(f.purged, ruleID)
	f.mu.Unlock()
	return nil
}

type fakeProducer struct {
	mu     sync.Mutex
	events []models.ConfigUpdateEvent
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, event models.ConfigUpdateEvent) error {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func newTestCoordinator(t *testing.T, repo *memRepo) (*Coordinator, *fakeShadowStore, *fakeProducer) {
	t.Helper()

	compiler, err := rules.NewCompiler()
	require.NoError(t, err)

	vocab := outcomes.NewVocabularyProvider(&fakeOutcomesRepo{})
	cache := executor.NewCache(repo, vocab, compiler, logger.NopLogger())
	store := &fakeShadowStore{}
	producer := &fakeProducer{}

	return NewCoordinator(repo, compiler, vocab, store, cache, producer, "config-updates", logger.NopLogger()), store, producer
}

func TestCheckRule(t *testing.T) {
	c, _, _ := newTestCoordinator(t, newMemRepo())
	ctx := context.Background()

	assert.NoError(t, c.CheckRule(ctx, "r-1", `event.amount > 100 ? decide("HOLD") : skip()`))

	err := c.CheckRule(ctx, "r-1", `decide("ESCALATE")`)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrUnknownOutcome))
}

func TestDeployToShadowCreatesDraftEntry(t *testing.T) {
	repo := newMemRepo()
	c, store, producer := newTestCoordinator(t, repo)
	ctx := context.Background()

	err := c.DeployToShadow(ctx, "high-amount", "high amount hold",
		`event.amount > 10000 ? decide("HOLD") : skip()`, "alice")
	require.NoError(t, err)

	cfg, err := repo.GetCurrentConfig(ctx, constants.GenerationShadow)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)

	entry, ok := cfg.Entry("high-amount")
	require.True(t, ok)
	assert.True(t, entry.IsDraft())
	assert.NotEmpty(t, entry.Source)

	assert.Equal(t, []string{"high-amount"}, store.purged)
	require.Len(t, producer.events, 1)
	assert.Equal(t, models.ActionDeployToShadow, producer.events[0].Action)
}

func TestDeployToShadowRejectsBadSource(t *testing.T) {
	repo := newMemRepo()
	c, _, producer := newTestCoordinator(t, repo)

	err := c.DeployToShadow(context.Background(), "r-1", "", `decide("NOPE")`, "alice")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrUnknownOutcome))

	cfg, _ := repo.GetCurrentConfig(context.Background(), constants.GenerationShadow)
	assert.Nil(t, cfg)
	assert.Empty(t, producer.events)
}

func TestDeployToShadowReplacesExistingEntry(t *testing.T) {
	repo := newMemRepo()
	c, _, _ := newTestCoordinator(t, repo)
	ctx := context.Background()

	require.NoError(t, c.DeployToShadow(ctx, "r-1", "", `decide("HOLD")`, "alice"))
	require.NoError(t, c.DeployToShadow(ctx, "r-1", "", `decide("DENY")`, "bob"))

	cfg, err := repo.GetCurrentConfig(ctx, constants.GenerationShadow)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Version)
	require.Len(t, cfg.Entries, 1)
	assert.Equal(t, `decide("DENY")`, cfg.Entries[0].Source)
}

func TestPromoteMovesDraftToProduction(t *testing.T) {
	repo := newMemRepo()
	c, _, producer := newTestCoordinator(t, repo)
	ctx := context.Background()

	require.NoError(t, c.DeployToShadow(ctx, "high-amount", "high amount hold",
		`event.amount > 10000 ? decide("HOLD") : skip()`, "alice"))

	err := c.Promote(ctx, "high-amount", "bob", "passed observation window")
	require.NoError(t, err)

	// The draft became revision 1.
	rev, err := repo.GetCurrentRevision(ctx, "high-amount")
	require.NoError(t, err)
	require.NotNil(t, rev)
	assert.Equal(t, 1, rev.Revision)
	assert.Equal(t, constants.RuleStateActive, rev.State)
	assert.Equal(t, []string{"HOLD"}, rev.Outcomes)

	// Production pins the revision, shadow no longer carries the rule.
	prod, err := repo.GetCurrentConfig(ctx, constants.GenerationProduction)
	require.NoError(t, err)
	entry, ok := prod.Entry("high-amount")
	require.True(t, ok)
	assert.Equal(t, 1, entry.Revision)
	assert.False(t, entry.IsDraft())

	shadow, err := repo.GetCurrentConfig(ctx, constants.GenerationShadow)
	require.NoError(t, err)
	_, ok = shadow.Entry("high-amount")
	assert.False(t, ok)

	// deploy + promote
	require.Len(t, producer.events, 2)
	assert.Equal(t, models.ActionPromote, producer.events[1].Action)
	assert.Empty(t, producer.events[1].Generation)
}

func TestPromoteUnknownRule(t *testing.T) {
	repo := newMemRepo()
	c, _, _ := newTestCoordinator(t, repo)

	err := c.Promote(context.Background(), "ghost", "bob", "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestPromoteRollsBackOnFailure(t *testing.T) {
	repo := newMemRepo()
	c, _, _ := newTestCoordinator(t, repo)
	ctx := context.Background()

	require.NoError(t, c.DeployToShadow(ctx, "r-1", "", `decide("HOLD")`, "alice"))

	// The production insert succeeds, the shadow insert fails; nothing of the
	// promotion may survive.
	repo.failInsertConfigAfter = 1

	err := c.Promote(ctx, "r-1", "bob", "")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrPromotion))

	prod, _ := repo.GetCurrentConfig(ctx, constants.GenerationProduction)
	assert.Nil(t, prod)

	shadow, _ := repo.GetCurrentConfig(ctx, constants.GenerationShadow)
	_, ok := shadow.Entry("r-1")
	assert.True(t, ok)

	rev, _ := repo.GetCurrentRevision(ctx, "r-1")
	assert.Nil(t, rev)
}

func TestPromoteRevalidatesDraftAgainstVocabulary(t *testing.T) {
	repo := newMemRepo()

	compiler, err := rules.NewCompiler()
	require.NoError(t, err)

	// Seed a shadow draft that was valid when deployed but whose outcome has
	// since left the vocabulary.
	require.NoError(t, repo.WithinTx(context.Background(), func(tx rules.Tx) error {
		return tx.InsertConfig(context.Background(), &rules.RulesetConfig{
			Generation: constants.GenerationShadow,
			Entries:    []rules.ConfigEntry{{RuleID: "r-1", Source: `decide("RETIRED_OUTCOME")`}},
		})
	}))

	vocab := outcomes.NewVocabularyProvider(&fakeOutcomesRepo{})
	cache := executor.NewCache(repo, vocab, compiler, logger.NopLogger())
	c := NewCoordinator(repo, compiler, vocab, &fakeShadowStore{}, cache, nil, "", logger.NopLogger())

	err = c.Promote(context.Background(), "r-1", "bob", "")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrUnknownOutcome))
}

func TestRemoveFromShadow(t *testing.T) {
	repo := newMemRepo()
	c, store, _ := newTestCoordinator(t, repo)
	ctx := context.Background()

	require.NoError(t, c.DeployToShadow(ctx, "r-1", "", `decide("HOLD")`, "alice"))

	err := c.RemoveFromShadow(ctx, "r-1", "bob")
	require.NoError(t, err)

	cfg, _ := repo.GetCurrentConfig(ctx, constants.GenerationShadow)
	_, ok := cfg.Entry("r-1")
	assert.False(t, ok)

	// Purged once on deploy, once on removal.
	assert.Equal(t, []string{"r-1", "r-1"}, store.purged)
}

func TestRemoveFromShadowUnknownRule(t *testing.T) {
	repo := newMemRepo()
	c, _, _ := newTestCoordinator(t, repo)

	err := c.RemoveFromShadow(context.Background(), "ghost", "bob")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}
