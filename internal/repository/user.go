package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// UserRepository resolves users to their organizations
type UserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// GetOrganizationID returns the organization of a user, or nil when the user
// is unknown or unaffiliated
func (r *UserRepository) GetOrganizationID(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	query := `SELECT organization_id FROM users WHERE id = $1`

	var orgID *uuid.UUID
	err := r.db.QueryRow(ctx, query, userID).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to get user organization",
			zap.Error(err),
			zap.String("user_id", userID.String()))
		return nil, fmt.Errorf("failed to get user organization: %w", err)
	}

	return orgID, nil
}

// ListOrganizationIDs returns every organization that has users
func (r *UserRepository) ListOrganizationIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT organization_id
		FROM users
		WHERE organization_id IS NOT NULL
		ORDER BY organization_id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("failed to list organizations", zap.Error(err))
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan organization id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
