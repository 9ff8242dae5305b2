package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/driver"
)

// Plugin is a published driver configuration.
type Plugin struct {
	Name string `json:"name"`
	driver.Configuration
}

// UpsertPlugin records the configuration a driver published, replacing any
// earlier one under the same name.
func (q *Queries) UpsertPlugin(ctx context.Context, name string, cfg *driver.Configuration) error {
	form := cfg.Form
	if form == nil {
		form = []any{}
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO plugins (name, schema, form, model, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET schema = EXCLUDED.schema, form = EXCLUDED.form, model = EXCLUDED.model, updated_at = now()`,
		name, jsonObject(cfg.Schema), form, jsonObject(cfg.Model),
	)
	if err != nil {
		return fmt.Errorf("upsert plugin %s: %w", name, err)
	}
	return nil
}

// ListPlugins returns the published configurations by name.
func (q *Queries) ListPlugins(ctx context.Context) ([]Plugin, error) {
	rows, err := q.db.Query(ctx, `SELECT name, schema, form, model FROM plugins ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list plugins: %w", err)
	}
	plugins, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Plugin, error) {
		var p Plugin
		err := row.Scan(&p.Name, &p.Schema, &p.Form, &p.Model)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("list plugins: %w", err)
	}
	return plugins, nil
}
