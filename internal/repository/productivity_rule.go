package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"activity-categorizer/internal/models"
)

var productivityRuleColumns = strings.Join([]string{
	"id", "organization_id", "app_name", "url_pattern", "window_title_pattern",
	"category", "subcategory", "priority", "created_at", "updated_at",
}, ", ")

// ProductivityRuleRepository handles organization custom rules
type ProductivityRuleRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewProductivityRuleRepository creates a new productivity rule repository
func NewProductivityRuleRepository(db *pgxpool.Pool, logger *zap.Logger) *ProductivityRuleRepository {
	return &ProductivityRuleRepository{
		db:     db,
		logger: logger,
	}
}

func scanProductivityRule(row rowScanner) (*models.ProductivityRule, error) {
	var rule models.ProductivityRule
	err := row.Scan(
		&rule.ID, &rule.OrganizationID, &rule.AppName, &rule.URLPattern,
		&rule.WindowTitlePattern, &rule.Category, &rule.Subcategory, &rule.Priority,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListForOrganization returns rules ordered by priority, newest first on ties
func (r *ProductivityRuleRepository) ListForOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.ProductivityRule, error) {
	query := `
		SELECT ` + productivityRuleColumns + `
		FROM productivity_rules
		WHERE organization_id = $1
		ORDER BY priority DESC, created_at DESC`

	rows, err := r.db.Query(ctx, query, orgID)
	if err != nil {
		r.logger.Error("failed to list productivity rules",
			zap.Error(err),
			zap.String("organization_id", orgID.String()))
		return nil, fmt.Errorf("failed to list productivity rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.ProductivityRule
	for rows.Next() {
		rule, err := scanProductivityRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan productivity rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// Create inserts a new organization rule
func (r *ProductivityRuleRepository) Create(ctx context.Context, req *models.ProductivityRuleRequest) (*models.ProductivityRule, error) {
	now := time.Now()
	query := `
		INSERT INTO productivity_rules (
			id, organization_id, app_name, url_pattern, window_title_pattern,
			category, subcategory, priority, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING ` + productivityRuleColumns

	rule, err := scanProductivityRule(r.db.QueryRow(ctx, query,
		uuid.New(), req.OrganizationID, req.AppName, req.URLPattern, req.WindowTitlePattern,
		req.Category, nullableSubcategory(req.Subcategory), req.Priority, now,
	))
	if err != nil {
		r.logger.Error("failed to create productivity rule",
			zap.Error(err),
			zap.String("organization_id", req.OrganizationID.String()))
		return nil, fmt.Errorf("failed to create productivity rule: %w", err)
	}

	return rule, nil
}

// Update replaces the matcher and category of a rule
func (r *ProductivityRuleRepository) Update(ctx context.Context, id uuid.UUID, req *models.ProductivityRuleRequest) (*models.ProductivityRule, error) {
	query := `
		UPDATE productivity_rules
		SET app_name = $2, url_pattern = $3, window_title_pattern = $4,
		    category = $5, subcategory = $6, priority = $7, updated_at = NOW()
		WHERE id = $1 AND organization_id = $8
		RETURNING ` + productivityRuleColumns

	rule, err := scanProductivityRule(r.db.QueryRow(ctx, query,
		id, req.AppName, req.URLPattern, req.WindowTitlePattern,
		req.Category, nullableSubcategory(req.Subcategory), req.Priority, req.OrganizationID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("failed to update productivity rule",
			zap.Error(err),
			zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to update productivity rule: %w", err)
	}

	return rule, nil
}

// Delete removes a rule
func (r *ProductivityRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM productivity_rules WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("failed to delete productivity rule",
			zap.Error(err),
			zap.String("id", id.String()))
		return fmt.Errorf("failed to delete productivity rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
