package repository

import (
	"context"
	"fmt"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
)

// CreateTemplate inserts tpl.
func (q *Queries) CreateTemplate(ctx context.Context, tpl *domain.Template) error {
	allowed := tpl.AllowedAttrs
	if allowed == nil {
		allowed = []string{}
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO templates (id, name, plugin, base_config, allowed_attrs, is_enabled)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tpl.ID, tpl.Name, tpl.Plugin, jsonObject(tpl.BaseConfig), allowed, tpl.IsEnabled,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetTemplate loads one template.
func (q *Queries) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	var tpl domain.Template
	err := q.db.QueryRow(ctx, `
		SELECT id, name, plugin, base_config, allowed_attrs, is_enabled
		FROM templates WHERE id = $1`, id,
	).Scan(&tpl.ID, &tpl.Name, &tpl.Plugin, &tpl.BaseConfig, &tpl.AllowedAttrs, &tpl.IsEnabled)
	if isNoRows(err) {
		return nil, apperrors.NotFound(apperrors.CodeTemplateNotFound, "template not found").
			WithParams(map[string]interface{}{"template_id": id})
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &tpl, nil
}

// CreateEnvironment inserts env. An empty status is stored as active.
func (q *Queries) CreateEnvironment(ctx context.Context, env *domain.Environment) error {
	status := env.Status
	if status == "" {
		status = domain.EnvironmentActive
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO environments (
			id, name, template_id, workspace_id, config, is_enabled,
			maximum_instances_per_user, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		env.ID, env.Name, env.TemplateID, env.WorkspaceID, jsonObject(env.Config), env.IsEnabled,
		env.MaximumInstancesPerUser, string(status), env.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert environment: %w", err)
	}
	return nil
}

// GetEnvironment loads one environment, whatever its status.
func (q *Queries) GetEnvironment(ctx context.Context, id string) (*domain.Environment, error) {
	var (
		env    domain.Environment
		status string
	)
	err := q.db.QueryRow(ctx, `
		SELECT id, name, template_id, workspace_id, config, is_enabled,
			maximum_instances_per_user, status, created_at
		FROM environments WHERE id = $1`, id,
	).Scan(&env.ID, &env.Name, &env.TemplateID, &env.WorkspaceID, &env.Config, &env.IsEnabled,
		&env.MaximumInstancesPerUser, &status, &env.CreatedAt)
	if isNoRows(err) {
		return nil, apperrors.ErrEnvironmentNotFoundf(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get environment: %w", err)
	}
	env.Status = domain.EnvironmentStatus(status)
	return &env, nil
}

// SetEnvironmentStatus changes the administrative status of an environment.
func (q *Queries) SetEnvironmentStatus(ctx context.Context, id string, status domain.EnvironmentStatus) error {
	tag, err := q.db.Exec(ctx, `UPDATE environments SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgCheckViolation {
			return apperrors.Validation(apperrors.CodeInvalidEnvStatus,
				fmt.Sprintf("invalid environment status %q", status))
		}
		return fmt.Errorf("set environment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrEnvironmentNotFoundf(id)
	}
	return nil
}
