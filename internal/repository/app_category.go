package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"activity-categorizer/internal/models"
)

var (
	appCategoryFields = []string{
		"id", "app_name", "bundle_id", "category", "subcategory", "organization_id",
		"is_global", "created_at", "updated_at",
	}
	appCategoryColumns = strings.Join(appCategoryFields, ", ")
)

// AppCategoryRepository handles database operations for app category rules
type AppCategoryRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewAppCategoryRepository creates a new app category repository
func NewAppCategoryRepository(db *pgxpool.Pool, logger *zap.Logger) *AppCategoryRepository {
	return &AppCategoryRepository{
		db:     db,
		logger: logger,
	}
}

func scanAppCategory(row rowScanner) (*models.AppCategoryRule, error) {
	var rule models.AppCategoryRule
	err := row.Scan(
		&rule.ID, &rule.AppName, &rule.BundleID, &rule.Category, &rule.Subcategory,
		&rule.OrganizationID, &rule.IsGlobal, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// FindForApp returns the organization rule for an app, falling back to the
// global rule. It returns nil when neither exists.
func (r *AppCategoryRepository) FindForApp(ctx context.Context, appName string, orgID *uuid.UUID) (*models.AppCategoryRule, error) {
	start := time.Now()
	defer func() {
		r.logger.Debug("app category lookup completed",
			zap.Duration("duration", time.Since(start)),
			zap.String("app_name", appName))
	}()

	// Organization rows sort before the global row.
	query := `
		SELECT ` + appCategoryColumns + `
		FROM app_categories
		WHERE app_name = $1
		  AND ((organization_id = $2 AND $2 IS NOT NULL) OR (organization_id IS NULL AND is_global = true))
		ORDER BY organization_id NULLS LAST
		LIMIT 1`

	rule, err := scanAppCategory(r.db.QueryRow(ctx, query, appName, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to lookup app category",
			zap.Error(err),
			zap.String("app_name", appName))
		return nil, fmt.Errorf("failed to lookup app category: %w", err)
	}

	return rule, nil
}

// GetByID retrieves an app rule by ID
func (r *AppCategoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AppCategoryRule, error) {
	query := `SELECT ` + appCategoryColumns + ` FROM app_categories WHERE id = $1`

	rule, err := scanAppCategory(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to get app category",
			zap.Error(err),
			zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to get app category: %w", err)
	}

	return rule, nil
}

// ListForOrganization returns global rules plus the organization's own rules
func (r *AppCategoryRepository) ListForOrganization(ctx context.Context, orgID *uuid.UUID) ([]*models.AppCategoryRule, error) {
	scope := squirrel.Or{squirrel.Eq{"is_global": true}}
	if orgID != nil {
		scope = append(scope, squirrel.Eq{"organization_id": *orgID})
	}

	sql, args, err := psql.
		Select(appCategoryFields...).
		From("app_categories").
		Where(scope).
		OrderBy("app_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build app category query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		r.logger.Error("failed to list app categories", zap.Error(err))
		return nil, fmt.Errorf("failed to list app categories: %w", err)
	}
	defer rows.Close()

	var rules []*models.AppCategoryRule
	for rows.Next() {
		rule, err := scanAppCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan app category: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// Upsert creates or replaces the rule for (app_name, organization). The
// unique index is on (app_name, COALESCE(organization_id, nil uuid)).
func (r *AppCategoryRepository) Upsert(ctx context.Context, req *models.SetAppCategoryRequest) (*models.AppCategoryRule, error) {
	now := time.Now()
	query := `
		INSERT INTO app_categories (
			id, app_name, bundle_id, category, subcategory, organization_id,
			is_global, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (app_name, COALESCE(organization_id, '00000000-0000-0000-0000-000000000000'::uuid))
		DO UPDATE SET
			category = EXCLUDED.category,
			subcategory = EXCLUDED.subcategory,
			bundle_id = COALESCE(EXCLUDED.bundle_id, app_categories.bundle_id),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + appCategoryColumns

	rule, err := scanAppCategory(r.db.QueryRow(ctx, query,
		uuid.New(), req.AppName, req.BundleID, req.Category, nullableSubcategory(req.Subcategory),
		req.OrganizationID, req.OrganizationID == nil, now,
	))
	if err != nil {
		r.logger.Error("failed to upsert app category",
			zap.Error(err),
			zap.String("app_name", req.AppName))
		return nil, fmt.Errorf("failed to upsert app category: %w", err)
	}

	return rule, nil
}

// Update changes category fields of an existing rule
func (r *AppCategoryRepository) Update(ctx context.Context, id uuid.UUID, req *models.UpdateAppCategoryRequest) (*models.AppCategoryRule, error) {
	builder := psql.Update("app_categories").
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + appCategoryColumns)

	if req.Category != nil {
		builder = builder.Set("category", *req.Category)
	}
	if req.Subcategory != nil {
		builder = builder.Set("subcategory", nullableSubcategory(req.Subcategory))
	}
	if req.BundleID != nil {
		builder = builder.Set("bundle_id", *req.BundleID)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build app category update: %w", err)
	}

	rule, err := scanAppCategory(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("failed to update app category",
			zap.Error(err),
			zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to update app category: %w", err)
	}

	return rule, nil
}

// Delete removes a rule and returns what was removed
func (r *AppCategoryRepository) Delete(ctx context.Context, id uuid.UUID) (*models.AppCategoryRule, error) {
	query := `DELETE FROM app_categories WHERE id = $1 RETURNING ` + appCategoryColumns

	rule, err := scanAppCategory(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("failed to delete app category",
			zap.Error(err),
			zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to delete app category: %w", err)
	}

	return rule, nil
}

// nullableSubcategory turns an empty subcategory into SQL NULL
func nullableSubcategory(sub *models.Subcategory) interface{} {
	if sub == nil || *sub == "" {
		return nil
	}
	return string(*sub)
}
