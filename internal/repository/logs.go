package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
)

// AppendLog stores a log record. A running record replaces the previous one
// of the same instance in place, keeping its id.
func (q *Queries) AppendLog(ctx context.Context, l *domain.InstanceLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	var err error
	if l.IsSnapshot() {
		err = q.db.QueryRow(ctx, `
			INSERT INTO instance_logs (id, instance_id, log_type, log_level, "timestamp", message)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (instance_id) WHERE log_type = 'running'
			DO UPDATE SET log_level = EXCLUDED.log_level, "timestamp" = EXCLUDED."timestamp", message = EXCLUDED.message
			RETURNING id`,
			l.ID, l.InstanceID, l.LogType, l.LogLevel, l.Timestamp, l.Message,
		).Scan(&l.ID)
	} else {
		_, err = q.db.Exec(ctx, `
			INSERT INTO instance_logs (id, instance_id, log_type, log_level, "timestamp", message)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			l.ID, l.InstanceID, l.LogType, l.LogLevel, l.Timestamp, l.Message,
		)
	}
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// DeleteLogs removes the instance's log records, all of them when logType is
// empty. It returns the number of records removed.
func (q *Queries) DeleteLogs(ctx context.Context, instanceID, logType string) (int64, error) {
	sql := `DELETE FROM instance_logs WHERE instance_id = $1`
	args := []any{instanceID}
	if logType != "" {
		sql += ` AND log_type = $2`
		args = append(args, logType)
	}
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListLogs returns the instance's log records oldest first, optionally of one type.
func (q *Queries) ListLogs(ctx context.Context, instanceID, logType string) ([]*domain.InstanceLog, error) {
	sql := `SELECT id, instance_id, log_type, log_level, "timestamp", message
		FROM instance_logs WHERE instance_id = $1`
	args := []any{instanceID}
	if logType != "" {
		sql += ` AND log_type = $2`
		args = append(args, logType)
	}
	sql += ` ORDER BY "timestamp", id`

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.InstanceLog, error) {
		var l domain.InstanceLog
		err := row.Scan(&l.ID, &l.InstanceID, &l.LogType, &l.LogLevel, &l.Timestamp, &l.Message)
		return &l, err
	})
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return logs, nil
}
