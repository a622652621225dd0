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
	websiteCategoryFields = []string{
		"id", "pattern", "category", "subcategory", "name", "description",
		"is_system", "priority", "organization_id", "created_at", "updated_at",
	}
	websiteCategoryColumns = strings.Join(websiteCategoryFields, ", ")
)

// WebsiteCategoryRepository handles database operations for website pattern rules
type WebsiteCategoryRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewWebsiteCategoryRepository creates a new website category repository
func NewWebsiteCategoryRepository(db *pgxpool.Pool, logger *zap.Logger) *WebsiteCategoryRepository {
	return &WebsiteCategoryRepository{
		db:     db,
		logger: logger,
	}
}

func scanWebsiteCategory(row rowScanner) (*models.WebsitePatternRule, error) {
	var rule models.WebsitePatternRule
	err := row.Scan(
		&rule.ID, &rule.Pattern, &rule.Category, &rule.Subcategory, &rule.Name,
		&rule.Description, &rule.IsSystem, &rule.Priority, &rule.OrganizationID,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// findBestMatchQuery selects every pattern contained in the domain. strpos
// keeps "_" and "%" in stored patterns literal.
var findBestMatchQuery = `
	SELECT ` + websiteCategoryColumns + `
	FROM website_categories
	WHERE (strpos($1, pattern) > 0 OR pattern = $1)
	  AND (organization_id IS NULL OR organization_id = $2)
	ORDER BY priority DESC, LENGTH(pattern) DESC`

// FindBestMatch returns the most specific stored pattern matching a domain.
// Organization-scoped patterns only apply to their organization.
func (r *WebsiteCategoryRepository) FindBestMatch(ctx context.Context, domain string, orgID *uuid.UUID) (*models.WebsitePatternRule, error) {
	start := time.Now()
	defer func() {
		r.logger.Debug("website pattern lookup completed",
			zap.Duration("duration", time.Since(start)),
			zap.String("domain", domain))
	}()

	rows, err := r.db.Query(ctx, findBestMatchQuery, domain, orgID)
	if err != nil {
		r.logger.Error("failed to lookup website pattern",
			zap.Error(err),
			zap.String("domain", domain))
		return nil, fmt.Errorf("failed to lookup website pattern: %w", err)
	}
	defer rows.Close()

	var candidates []*models.WebsitePatternRule
	for rows.Next() {
		rule, err := scanWebsiteCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan website pattern: %w", err)
		}
		candidates = append(candidates, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read website patterns: %w", err)
	}

	return pickBestPattern(candidates), nil
}

// pickBestPattern orders matching rules by priority, then pattern length,
// then organization scope over global. Remaining ties go to the lowest id so
// repeated lookups agree.
func pickBestPattern(candidates []*models.WebsitePatternRule) *models.WebsitePatternRule {
	var best *models.WebsitePatternRule
	for _, c := range candidates {
		if best == nil || morePrecise(c, best) {
			best = c
		}
	}
	return best
}

func morePrecise(a, b *models.WebsitePatternRule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if len(a.Pattern) != len(b.Pattern) {
		return len(a.Pattern) > len(b.Pattern)
	}
	if (a.OrganizationID != nil) != (b.OrganizationID != nil) {
		return a.OrganizationID != nil
	}
	return a.ID.String() < b.ID.String()
}

// GetByID retrieves a website rule by ID
func (r *WebsiteCategoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WebsitePatternRule, error) {
	query := `SELECT ` + websiteCategoryColumns + ` FROM website_categories WHERE id = $1`

	rule, err := scanWebsiteCategory(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to get website category",
			zap.Error(err),
			zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to get website category: %w", err)
	}

	return rule, nil
}

// FindByPattern returns the rule stored under exactly this pattern
func (r *WebsiteCategoryRepository) FindByPattern(ctx context.Context, pattern string) (*models.WebsitePatternRule, error) {
	query := `SELECT ` + websiteCategoryColumns + ` FROM website_categories WHERE pattern = $1`

	rule, err := scanWebsiteCategory(r.db.QueryRow(ctx, query, pattern))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to get website pattern",
			zap.Error(err),
			zap.String("pattern", pattern))
		return nil, fmt.Errorf("failed to get website pattern: %w", err)
	}

	return rule, nil
}

// List returns website rules ordered by priority and pattern
func (r *WebsiteCategoryRepository) List(ctx context.Context, q *models.WebsiteCategoryQuery) ([]*models.WebsitePatternRule, error) {
	builder := psql.Select(websiteCategoryFields...).
		From("website_categories").
		OrderBy("priority DESC", "pattern ASC")

	if q.Category != nil {
		builder = builder.Where(squirrel.Eq{"category": *q.Category})
	}
	if q.OrganizationID != nil {
		builder = builder.Where(squirrel.Or{
			squirrel.Eq{"organization_id": nil},
			squirrel.Eq{"organization_id": *q.OrganizationID},
		})
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		builder = builder.Offset(uint64(q.Offset))
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build website category query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		r.logger.Error("failed to list website categories", zap.Error(err))
		return nil, fmt.Errorf("failed to list website categories: %w", err)
	}
	defer rows.Close()

	var rules []*models.WebsitePatternRule
	for rows.Next() {
		rule, err := scanWebsiteCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan website category: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// Create inserts a new user-defined website rule
func (r *WebsiteCategoryRepository) Create(ctx context.Context, req *models.WebsiteCategoryRequest) (*models.WebsitePatternRule, error) {
	priority := 1
	if req.Priority != nil {
		priority = *req.Priority
	}

	now := time.Now()
	query := `
		INSERT INTO website_categories (
			id, pattern, category, subcategory, name, description,
			is_system, priority, organization_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8, $9, $9)
		RETURNING ` + websiteCategoryColumns

	rule, err := scanWebsiteCategory(r.db.QueryRow(ctx, query,
		uuid.New(), strings.ToLower(strings.TrimSpace(req.Pattern)), req.Category,
		nullableSubcategory(req.Subcategory), req.Name, req.Description,
		priority, req.OrganizationID, now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		r.logger.Error("failed to create website category",
			zap.Error(err),
			zap.String("pattern", req.Pattern))
		return nil, fmt.Errorf("failed to create website category: %w", err)
	}

	return rule, nil
}

// Update changes an existing website rule
func (r *WebsiteCategoryRepository) Update(ctx context.Context, id uuid.UUID, req *models.UpdateWebsiteCategoryRequest) (*models.WebsitePatternRule, error) {
	builder := psql.Update("website_categories").
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + websiteCategoryColumns)

	if req.Category != nil {
		builder = builder.Set("category", *req.Category)
	}
	if req.Subcategory != nil {
		builder = builder.Set("subcategory", nullableSubcategory(req.Subcategory))
	}
	if req.Name != nil {
		builder = builder.Set("name", *req.Name)
	}
	if req.Description != nil {
		builder = builder.Set("description", *req.Description)
	}
	if req.Priority != nil {
		builder = builder.Set("priority", *req.Priority)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build website category update: %w", err)
	}

	rule, err := scanWebsiteCategory(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("failed to update website category",
			zap.Error(err),
			zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to update website category: %w", err)
	}

	return rule, nil
}

// Delete removes a website rule
func (r *WebsiteCategoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM website_categories WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("failed to delete website category",
			zap.Error(err),
			zap.String("id", id.String()))
		return fmt.Errorf("failed to delete website category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// upsertPatternTx writes an approved pattern inside an open transaction
func upsertPatternTx(ctx context.Context, tx pgx.Tx, pattern string, category models.Category, sub *models.Subcategory) error {
	now := time.Now()
	query := `
		INSERT INTO website_categories (
			id, pattern, category, subcategory, is_system, priority, created_at, updated_at
		) VALUES ($1, $2, $3, $4, false, 1, $5, $5)
		ON CONFLICT (pattern)
		DO UPDATE SET
			category = EXCLUDED.category,
			subcategory = EXCLUDED.subcategory,
			updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, query, uuid.New(), pattern, category, nullableSubcategory(sub), now)
	return err
}
