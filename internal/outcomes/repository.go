package outcomes

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Outcome is one entry of the allowed-outcome vocabulary. Rules may only yield
// outcomes that exist here at compile time.
type Outcome struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Repository interface {
	List(ctx context.Context) ([]Outcome, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) List(ctx context.Context) ([]Outcome, error) {
	query := `
		SELECT name, description, created_at
		FROM outcomes
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		var description sql.NullString
		if err := rows.Scan(&o.Name, &description, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Description = description.String
		outcomes = append(outcomes, o)
	}

	return outcomes, rows.Err()
}
