package repository

import (
	"context"
	"fmt"

	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
)

// EnsureUser creates the user row on first sight. Existing rows are kept as is.
func (q *Queries) EnsureUser(ctx context.Context, id string, admin bool) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO users (id, is_admin) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`, id, admin)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// GetUserQuota returns the user's credit quota.
func (q *Queries) GetUserQuota(ctx context.Context, userID string) (float64, error) {
	var quota float64
	err := q.db.QueryRow(ctx, `SELECT credits_quota FROM users WHERE id = $1`, userID).Scan(&quota)
	if isNoRows(err) {
		return 0, userNotFound(userID)
	}
	if err != nil {
		return 0, fmt.Errorf("get user quota: %w", err)
	}
	return quota, nil
}

func (q *Queries) updateQuotas(ctx context.Context, userID string, value float64, relative bool) (int64, error) {
	set := `credits_quota = $1`
	if relative {
		set = `credits_quota = credits_quota + $1`
	}
	sql := `UPDATE users SET ` + set
	args := []any{value}
	if userID != "" {
		sql += ` WHERE id = $2`
		args = append(args, userID)
	}
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("update quotas: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateQuotas applies value to one user, or to every user when userID is
// empty, in a single transaction.
func (s *Store) UpdateQuotas(ctx context.Context, userID string, value float64, relative bool) (int64, error) {
	var n int64
	err := s.WithTx(ctx, func(q *Queries) error {
		var err error
		n, err = q.updateQuotas(ctx, userID, value, relative)
		if err != nil {
			return err
		}
		if userID != "" && n == 0 {
			return userNotFound(userID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func userNotFound(id string) error {
	return apperrors.NotFound(apperrors.CodeUserNotFound, "user not found").
		WithParams(map[string]interface{}{"user_id": id})
}
