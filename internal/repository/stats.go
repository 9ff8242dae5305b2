package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EnvironmentStats is the usage of one environment.
type EnvironmentStats struct {
	EnvironmentID string `json:"environment_id"`
	Name          string `json:"name"`
	Users         int    `json:"users"`
	Launched      int    `json:"launched_instances"`
	Running       int    `json:"running_instances"`
}

// Stats summarizes usage across environments.
type Stats struct {
	Environments   []EnvironmentStats `json:"blueprints"`
	OverallRunning int                `json:"overall_running_instances"`
}

// Stats counts distinct users, launched instances and live instances per
// environment that has ever had an instance, busiest first.
func (q *Queries) Stats(ctx context.Context) (*Stats, error) {
	rows, err := q.db.Query(ctx, `
		SELECT e.id, e.name,
			count(DISTINCT i.user_id),
			count(i.id),
			count(i.id) FILTER (WHERE i.state <> 'deleted')
		FROM environments e
		JOIN instances i ON i.environment_id = e.id
		GROUP BY e.id, e.name
		ORDER BY count(i.id) DESC, count(DISTINCT i.user_id) DESC, e.id`)
	if err != nil {
		return nil, fmt.Errorf("environment stats: %w", err)
	}
	envs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (EnvironmentStats, error) {
		var s EnvironmentStats
		err := row.Scan(&s.EnvironmentID, &s.Name, &s.Users, &s.Launched, &s.Running)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("environment stats: %w", err)
	}

	out := &Stats{Environments: envs}
	if out.Environments == nil {
		out.Environments = []EnvironmentStats{}
	}
	err = q.db.QueryRow(ctx, `SELECT count(*) FROM instances WHERE state <> 'deleted'`).Scan(&out.OverallRunning)
	if err != nil {
		return nil, fmt.Errorf("count running instances: %w", err)
	}
	return out, nil
}
