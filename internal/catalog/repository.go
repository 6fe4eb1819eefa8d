package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads reference rows from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Load reads statuses and situations and assembles the in-memory catalog.
func Load(ctx context.Context, pool *pgxpool.Pool) (*Catalog, error) {
	repo := NewRepository(pool)
	statuses, err := repo.Statuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: load statuses: %w", err)
	}
	situations, err := repo.Situations(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: load situations: %w", err)
	}
	return New(statuses, situations)
}

// Statuses lists all status rows.
func (r *Repository) Statuses(ctx context.Context) ([]Status, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name FROM statuses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var statuses []Status
	for rows.Next() {
		var st Status
		var code string
		if err := rows.Scan(&st.ID, &code, &st.Name); err != nil {
			return nil, err
		}
		st.Code = StatusCode(code)
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

// Situations lists all situation rows joined to their module code.
func (r *Repository) Situations(ctx context.Context) ([]Situation, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, m.code, s.name, s.status_id
FROM situations s
JOIN modules m ON m.id = s.module_id
ORDER BY s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var situations []Situation
	for rows.Next() {
		var sit Situation
		var module string
		if err := rows.Scan(&sit.ID, &module, &sit.Name, &sit.StatusID); err != nil {
			return nil, err
		}
		sit.Module = Module(module)
		situations = append(situations, sit)
	}
	return situations, rows.Err()
}
