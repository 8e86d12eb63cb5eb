package fieldtype

import (
	"context"
	"database/sql"
	"fmt"
)

type Repository interface {
	GetConfiguredTypes(ctx context.Context) ([]FieldType, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetConfiguredTypes(ctx context.Context) ([]FieldType, error) {
	query := `
		SELECT field_name, field_type, COALESCE(format, ''), updated_at
		FROM field_types
		ORDER BY field_name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query field types: %w", err)
	}
	defer rows.Close()

	var types []FieldType
	for rows.Next() {
		var ft FieldType
		if err := rows.Scan(&ft.FieldName, &ft.Kind, &ft.Format, &ft.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan field type: %w", err)
		}
		types = append(types, ft)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return types, nil
}
