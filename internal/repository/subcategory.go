package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"activity-categorizer/internal/models"
)

// SubcategoryRepository reads the subcategory reference table
type SubcategoryRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewSubcategoryRepository creates a new subcategory repository
func NewSubcategoryRepository(db *pgxpool.Pool, logger *zap.Logger) *SubcategoryRepository {
	return &SubcategoryRepository{
		db:     db,
		logger: logger,
	}
}

// List returns all subcategory definitions ordered by sort order
func (r *SubcategoryRepository) List(ctx context.Context) ([]models.SubcategoryDefinition, error) {
	query := `
		SELECT name, parent_category, COALESCE(display_name, name), COALESCE(description, ''), sort_order
		FROM subcategory_definitions
		ORDER BY sort_order ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("failed to list subcategory definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list subcategory definitions: %w", err)
	}
	defer rows.Close()

	var defs []models.SubcategoryDefinition
	for rows.Next() {
		var d models.SubcategoryDefinition
		if err := rows.Scan(&d.Name, &d.ParentCategory, &d.DisplayName, &d.Description, &d.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan subcategory definition: %w", err)
		}
		defs = append(defs, d)
	}

	return defs, rows.Err()
}
