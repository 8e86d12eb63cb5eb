package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists rule revisions and ruleset configurations. Both are
// append-only: revisions are immutable snapshots, configurations are versioned
// rows whose highest version per generation is current.
type Repository interface {
	GetCurrentConfig(ctx context.Context, generation string) (*RulesetConfig, error)
	GetRevision(ctx context.Context, ruleID string, revision int) (*RuleRevision, error)
	GetCurrentRevision(ctx context.Context, ruleID string) (*RuleRevision, error)
	ListRevisions(ctx context.Context, ruleID string) ([]RuleRevision, error)

	// WithinTx runs fn inside a single database transaction. The promotion
	// coordinator relies on this for its all-or-nothing contract.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the write operations available inside a repository transaction.
type Tx interface {
	GetCurrentConfig(ctx context.Context, generation string) (*RulesetConfig, error)
	NextRevision(ctx context.Context, ruleID string) (int, error)
	InsertRevision(ctx context.Context, rev *RuleRevision) error
	InsertConfig(ctx context.Context, cfg *RulesetConfig) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *PostgresRepository) GetCurrentConfig(ctx context.Context, generation string) (*RulesetConfig, error) {
	return getCurrentConfig(ctx, r.db, generation)
}

func getCurrentConfig(ctx context.Context, q querier, generation string) (*RulesetConfig, error) {
	query := `
		SELECT id, generation, version, entries, changed_by, created_at
		FROM ruleset_configs
		WHERE generation = $1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg RulesetConfig
	var entriesJSON []byte
	err := q.QueryRowContext(ctx, query, generation).Scan(
		&cfg.ID, &cfg.Generation, &cfg.Version, &entriesJSON, &cfg.ChangedBy, &cfg.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current %s config: %w", generation, err)
	}

	if err := json.Unmarshal(entriesJSON, &cfg.Entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config entries: %w", err)
	}

	return &cfg, nil
}

func (r *PostgresRepository) GetRevision(ctx context.Context, ruleID string, revision int) (*RuleRevision, error) {
	query := `
		SELECT id, rule_id, name, revision, source, outcomes, state, changed_by, change_reason, created_at
		FROM rule_revisions
		WHERE rule_id = $1 AND revision = $2
	`
	return scanRevision(r.db.QueryRowContext(ctx, query, ruleID, revision))
}

func (r *PostgresRepository) GetCurrentRevision(ctx context.Context, ruleID string) (*RuleRevision, error) {
	query := `
		SELECT id, rule_id, name, revision, source, outcomes, state, changed_by, change_reason, created_at
		FROM rule_revisions
		WHERE rule_id = $1
		ORDER BY revision DESC
		LIMIT 1
	`
	return scanRevision(r.db.QueryRowContext(ctx, query, ruleID))
}

func scanRevision(row *sql.Row) (*RuleRevision, error) {
	var rev RuleRevision
	var outcomesJSON []byte
	err := row.Scan(
		&rev.ID, &rev.RuleID, &rev.Name, &rev.Revision, &rev.Source,
		&outcomesJSON, &rev.State, &rev.ChangedBy, &rev.ChangeReason, &rev.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule revision: %w", err)
	}

	if err := json.Unmarshal(outcomesJSON, &rev.Outcomes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal revision outcomes: %w", err)
	}

	return &rev, nil
}

func (r *PostgresRepository) ListRevisions(ctx context.Context, ruleID string) ([]RuleRevision, error) {
	query := `
		SELECT id, rule_id, name, revision, source, outcomes, state, changed_by, change_reason, created_at
		FROM rule_revisions
		WHERE rule_id = $1
		ORDER BY revision DESC
	`

	rows, err := r.db.QueryContext(ctx, query, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	var revisions []RuleRevision
	for rows.Next() {
		var rev RuleRevision
		var outcomesJSON []byte
		if err := rows.Scan(
			&rev.ID, &rev.RuleID, &rev.Name, &rev.Revision, &rev.Source,
			&outcomesJSON, &rev.State, &rev.ChangedBy, &rev.ChangeReason, &rev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		if err := json.Unmarshal(outcomesJSON, &rev.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal revision outcomes: %w", err)
		}
		revisions = append(revisions, rev)
	}

	return revisions, rows.Err()
}

func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetCurrentConfig(ctx context.Context, generation string) (*RulesetConfig, error) {
	return getCurrentConfig(ctx, t.tx, generation)
}

func (t *pgTx) NextRevision(ctx context.Context, ruleID string) (int, error) {
	query := `SELECT COALESCE(MAX(revision), 0) + 1 FROM rule_revisions WHERE rule_id = $1`

	var revision int
	if err := t.tx.QueryRowContext(ctx, query, ruleID).Scan(&revision); err != nil {
		return 0, fmt.Errorf("failed to get next revision: %w", err)
	}
	return revision, nil
}

func (t *pgTx) InsertRevision(ctx context.Context, rev *RuleRevision) error {
	if rev.ID == "" {
		rev.ID = uuid.New().String()
	}
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now()
	}

	outcomesJSON, err := json.Marshal(rev.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal revision outcomes: %w", err)
	}

	query := `
		INSERT INTO rule_revisions (id, rule_id, name, revision, source, outcomes, state, changed_by, change_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = t.tx.ExecContext(ctx, query,
		rev.ID, rev.RuleID, rev.Name, rev.Revision, rev.Source,
		outcomesJSON, rev.State, rev.ChangedBy, rev.ChangeReason, rev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule revision: %w", err)
	}
	return nil
}

// InsertConfig appends a new configuration version for its generation. The
// version is assigned inside the insert; the unique (generation, version)
// constraint turns concurrent appenders into a visible conflict instead of a
// silent overwrite.
func (t *pgTx) InsertConfig(ctx context.Context, cfg *RulesetConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}
	if cfg.Entries == nil {
		cfg.Entries = []ConfigEntry{}
	}

	entriesJSON, err := json.Marshal(cfg.Entries)
	if err != nil {
		return fmt.Errorf("failed to marshal config entries: %w", err)
	}

	query := `
		INSERT INTO ruleset_configs (id, generation, version, entries, changed_by, created_at)
		VALUES ($1, $2, (SELECT COALESCE(MAX(version), 0) + 1 FROM ruleset_configs WHERE generation = $2), $3, $4, $5)
		RETURNING version
	`

	err = t.tx.QueryRowContext(ctx, query,
		cfg.ID, cfg.Generation, entriesJSON, cfg.ChangedBy, cfg.CreatedAt,
	).Scan(&cfg.Version)
	if err != nil {
		return fmt.Errorf("failed to insert ruleset config: %w", err)
	}
	return nil
}
