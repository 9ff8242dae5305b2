package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
)

const instanceColumns = `i.id, i.name, i.user_id, i.environment_id, i.state, i.to_be_deleted,
	i.log_fetch_pending, i.error_msg, i.errored, i.public_ip, i.client_ip,
	i.instance_data, i.provisioning_config, i.created_at, i.provisioned_at, i.deprovisioned_at`

func scanInstance(row pgx.Row, extra ...any) (*domain.Instance, error) {
	var (
		inst  domain.Instance
		state string
	)
	dest := []any{
		&inst.ID, &inst.Name, &inst.UserID, &inst.EnvironmentID, &state, &inst.ToBeDeleted,
		&inst.LogFetchPending, &inst.ErrorMsg, &inst.Errored, &inst.PublicIP, &inst.ClientIP,
		&inst.InstanceData, &inst.ProvisioningConfig, &inst.CreatedAt, &inst.ProvisionedAt, &inst.DeprovisionedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	inst.State = domain.InstanceState(state)
	return &inst, nil
}

func collectInstances(rows pgx.Rows, err error) ([]*domain.Instance, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// CreateInstance inserts inst. A second live instance for the same user and
// environment is refused as an admission failure; a taken name as a conflict.
func (q *Queries) CreateInstance(ctx context.Context, inst *domain.Instance) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO instances (
			id, name, user_id, environment_id, state, to_be_deleted, log_fetch_pending,
			error_msg, errored, public_ip, client_ip, instance_data, provisioning_config,
			created_at, provisioned_at, deprovisioned_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		inst.ID, inst.Name, inst.UserID, inst.EnvironmentID, string(inst.State), inst.ToBeDeleted,
		inst.LogFetchPending, inst.ErrorMsg, inst.Errored, inst.PublicIP, inst.ClientIP,
		jsonObject(inst.InstanceData), jsonObject(inst.ProvisioningConfig),
		inst.CreatedAt, inst.ProvisionedAt, inst.DeprovisionedAt,
	)
	if err == nil {
		return nil
	}
	switch code, constraint := pgErrorCode(err); {
	case code == pgUniqueViolation && constraint == constraintOneLiveInstance:
		return apperrors.ErrInstanceLimitReached(inst.EnvironmentID)
	case code == pgUniqueViolation && constraint == constraintInstanceName:
		return apperrors.Conflict(apperrors.CodeInstanceNameConflict, "instance name already taken").
			WithParams(map[string]interface{}{"name": inst.Name})
	}
	return fmt.Errorf("insert instance: %w", err)
}

// GetInstance loads one instance.
func (q *Queries) GetInstance(ctx context.Context, id string) (*domain.Instance, error) {
	inst, err := scanInstance(q.db.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM instances i WHERE i.id = $1`, id))
	if isNoRows(err) {
		return nil, apperrors.ErrInstanceNotFoundf(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return inst, nil
}

// GetInstanceForUpdate loads one instance and locks its row until the
// surrounding transaction ends.
func (q *Queries) GetInstanceForUpdate(ctx context.Context, id string) (*domain.Instance, error) {
	inst, err := scanInstance(q.db.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM instances i WHERE i.id = $1 FOR UPDATE`, id))
	if isNoRows(err) {
		return nil, apperrors.ErrInstanceNotFoundf(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get instance for update: %w", err)
	}
	return inst, nil
}

// UpdateInstance writes the mutable fields of inst. Identity, ownership and
// the frozen provisioning config are never rewritten.
func (q *Queries) UpdateInstance(ctx context.Context, inst *domain.Instance) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE instances SET
			state = $2, to_be_deleted = $3, log_fetch_pending = $4, error_msg = $5,
			errored = $6, public_ip = $7, client_ip = $8, instance_data = $9,
			provisioned_at = $10, deprovisioned_at = $11
		WHERE id = $1`,
		inst.ID, string(inst.State), inst.ToBeDeleted, inst.LogFetchPending, inst.ErrorMsg,
		inst.Errored, inst.PublicIP, inst.ClientIP, jsonObject(inst.InstanceData),
		inst.ProvisionedAt, inst.DeprovisionedAt,
	)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgCheckViolation {
			return apperrors.Validation(apperrors.CodeInvalidState, fmt.Sprintf("invalid state %q", inst.State))
		}
		if code, constraint := pgErrorCode(err); code == pgUniqueViolation && constraint == constraintOneLiveInstance {
			return apperrors.ErrInstanceLimitReached(inst.EnvironmentID)
		}
		return fmt.Errorf("update instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrInstanceNotFoundf(inst.ID)
	}
	return nil
}

// InstanceFilter narrows ListInstances. Zero values do not filter.
type InstanceFilter struct {
	InstanceID     string
	UserID         string
	IncludeDeleted bool
	Offset         int
	Limit          int
}

// ListedInstance is an instance with the environment fields listings need.
type ListedInstance struct {
	*domain.Instance
	EnvironmentName string
	WorkspaceID     string
}

// ListInstances returns instances ordered by provisioning time, never
// provisioned ones last.
func (q *Queries) ListInstances(ctx context.Context, f InstanceFilter) ([]ListedInstance, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.InstanceID != "" {
		where = append(where, "i.id = "+arg(f.InstanceID))
	}
	if f.UserID != "" {
		where = append(where, "i.user_id = "+arg(f.UserID))
	}
	if !f.IncludeDeleted {
		where = append(where, "i.state <> 'deleted'")
	}

	sql := `SELECT ` + instanceColumns + `, e.name, e.workspace_id
		FROM instances i JOIN environments e ON e.id = i.environment_id`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY i.provisioned_at NULLS LAST, i.created_at, i.id"
	if f.Limit > 0 {
		sql += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		sql += " OFFSET " + arg(f.Offset)
	}

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []ListedInstance
	for rows.Next() {
		var li ListedInstance
		inst, err := scanInstance(rows, &li.EnvironmentName, &li.WorkspaceID)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		li.Instance = inst
		out = append(out, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return out, nil
}

// ListLiveInstances returns every instance not in state deleted.
func (q *Queries) ListLiveInstances(ctx context.Context) ([]*domain.Instance, error) {
	out, err := collectInstances(q.db.Query(ctx,
		`SELECT `+instanceColumns+` FROM instances i WHERE i.state <> 'deleted'`))
	if err != nil {
		return nil, fmt.Errorf("list live instances: %w", err)
	}
	return out, nil
}

// ListUserInstances returns all instances of userID, deleted ones included.
func (q *Queries) ListUserInstances(ctx context.Context, userID string) ([]*domain.Instance, error) {
	out, err := collectInstances(q.db.Query(ctx,
		`SELECT `+instanceColumns+` FROM instances i WHERE i.user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("list user instances: %w", err)
	}
	return out, nil
}

// CountLiveInstances counts the non-deleted instances userID holds in environmentID.
func (q *Queries) CountLiveInstances(ctx context.Context, userID, environmentID string) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM instances
		WHERE user_id = $1 AND environment_id = $2 AND state <> 'deleted'`,
		userID, environmentID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count live instances: %w", err)
	}
	return n, nil
}

// InstanceNameExists reports whether any instance, deleted or not, uses name.
func (q *Queries) InstanceNameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM instances WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check instance name: %w", err)
	}
	return exists, nil
}

// FlagEnvironmentInstances marks every live, unflagged instance of the
// environment for deletion and returns their ids.
func (q *Queries) FlagEnvironmentInstances(ctx context.Context, environmentID string, at time.Time) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		UPDATE instances SET to_be_deleted = true, deprovisioned_at = $2
		WHERE environment_id = $1 AND state <> 'deleted' AND NOT to_be_deleted
		RETURNING id`,
		environmentID, at,
	)
	if err != nil {
		return nil, fmt.Errorf("flag environment instances: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("flag environment instances: %w", err)
	}
	return ids, nil
}

// DriverNameFor returns the plugin of the template behind the instance's environment.
func (q *Queries) DriverNameFor(ctx context.Context, instanceID string) (string, error) {
	var plugin string
	err := q.db.QueryRow(ctx, `
		SELECT t.plugin
		FROM instances i
		JOIN environments e ON e.id = i.environment_id
		JOIN templates t ON t.id = e.template_id
		WHERE i.id = $1`, instanceID,
	).Scan(&plugin)
	if isNoRows(err) {
		return "", apperrors.ErrInstanceNotFoundf(instanceID)
	}
	if err != nil {
		return "", fmt.Errorf("resolve driver name: %w", err)
	}
	return plugin, nil
}
