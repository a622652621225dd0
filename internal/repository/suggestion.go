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
	suggestionFields = []string{
		"id", "pattern", "suggested_category", "suggested_subcategory", "confidence",
		"reason", "evidence", "source", "needs_review", "status", "organization_id",
		"reviewed_by", "reviewed_at", "created_at", "updated_at",
	}
	suggestionColumns = strings.Join(suggestionFields, ", ")
)

const insertSuggestionQuery = `
	INSERT INTO ai_categorization_suggestions (
		id, pattern, suggested_category, suggested_subcategory, confidence,
		reason, evidence, source, needs_review, status, organization_id,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10, $11, $11)`

// SuggestionRepository handles categorization suggestions
type SuggestionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewSuggestionRepository creates a new suggestion repository
func NewSuggestionRepository(db *pgxpool.Pool, logger *zap.Logger) *SuggestionRepository {
	return &SuggestionRepository{
		db:     db,
		logger: logger,
	}
}

func scanSuggestion(row rowScanner) (*models.CategorizationSuggestion, error) {
	var s models.CategorizationSuggestion
	err := row.Scan(
		&s.ID, &s.Pattern, &s.SuggestedCategory, &s.SuggestedSubcategory, &s.Confidence,
		&s.Reason, &s.Evidence, &s.Source, &s.NeedsReview, &s.Status, &s.OrganizationID,
		&s.ReviewedBy, &s.ReviewedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func insertSuggestionTx(ctx context.Context, tx pgx.Tx, s *models.CategorizationSuggestion, now time.Time) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Status = models.SuggestionPending
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := tx.Exec(ctx, insertSuggestionQuery,
		s.ID, s.Pattern, s.SuggestedCategory, nullableSubcategory(s.SuggestedSubcategory),
		s.Confidence, s.Reason, s.Evidence, s.Source, s.NeedsReview, s.OrganizationID, now,
	)
	return err
}

// InsertBatch appends pending suggestions without touching existing rows
func (r *SuggestionRepository) InsertBatch(ctx context.Context, suggestions []*models.CategorizationSuggestion) error {
	if len(suggestions) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		r.logger.Debug("suggestion batch insert completed",
			zap.Duration("duration", time.Since(start)),
			zap.Int("count", len(suggestions)))
	}()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	for _, s := range suggestions {
		if err := insertSuggestionTx(ctx, tx, s, now); err != nil {
			r.logger.Error("failed to insert suggestion",
				zap.Error(err),
				zap.String("pattern", s.Pattern))
			return fmt.Errorf("failed to insert suggestion: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit suggestions: %w", err)
	}

	return nil
}

// ReplacePending deletes every pending suggestion of a source and inserts the
// new batch in the same transaction
func (r *SuggestionRepository) ReplacePending(ctx context.Context, source models.SuggestionSource, suggestions []*models.CategorizationSuggestion) error {
	start := time.Now()
	defer func() {
		r.logger.Debug("pending suggestions replaced",
			zap.Duration("duration", time.Since(start)),
			zap.String("source", string(source)),
			zap.Int("count", len(suggestions)))
	}()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM ai_categorization_suggestions WHERE status = 'pending' AND source = $1`,
		source,
	); err != nil {
		r.logger.Error("failed to clear pending suggestions",
			zap.Error(err),
			zap.String("source", string(source)))
		return fmt.Errorf("failed to clear pending suggestions: %w", err)
	}

	now := time.Now()
	for _, s := range suggestions {
		s.Source = source
		if err := insertSuggestionTx(ctx, tx, s, now); err != nil {
			r.logger.Error("failed to insert suggestion",
				zap.Error(err),
				zap.String("pattern", s.Pattern))
			return fmt.Errorf("failed to insert suggestion: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit suggestions: %w", err)
	}

	return nil
}

// List returns suggestions ordered by confidence then recency
func (r *SuggestionRepository) List(ctx context.Context, q *models.SuggestionQuery) ([]*models.CategorizationSuggestion, error) {
	sql, args, err := buildSuggestionListQuery(q)
	if err != nil {
		return nil, fmt.Errorf("failed to build suggestion query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		r.logger.Error("failed to list suggestions", zap.Error(err))
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var out []*models.CategorizationSuggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

func buildSuggestionListQuery(q *models.SuggestionQuery) (string, []interface{}, error) {
	builder := psql.Select(suggestionFields...).
		From("ai_categorization_suggestions").
		OrderBy("confidence DESC", "created_at DESC")

	if q.Status != nil {
		builder = builder.Where(squirrel.Eq{"status": string(*q.Status)})
	}
	if q.Source != nil {
		builder = builder.Where(squirrel.Eq{"source": string(*q.Source)})
	}
	if q.OrganizationID != nil {
		builder = builder.Where(squirrel.Eq{"organization_id": q.OrganizationID.String()})
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		builder = builder.Offset(uint64(q.Offset))
	}

	return builder.ToSql()
}

// Review locks a suggestion, asks decide for the outcome, and applies it in
// one transaction. An approved decision upserts the website pattern rule.
func (r *SuggestionRepository) Review(
	ctx context.Context,
	id uuid.UUID,
	decide func(*models.CategorizationSuggestion) (*models.ReviewDecision, error),
) (*models.CategorizationSuggestion, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanSuggestion(tx.QueryRow(ctx,
		`SELECT `+suggestionColumns+` FROM ai_categorization_suggestions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("failed to lock suggestion",
			zap.Error(err),
			zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to lock suggestion: %w", err)
	}

	decision, err := decide(current)
	if err != nil {
		return nil, err
	}

	if decision.Status == models.SuggestionApproved {
		if err := upsertPatternTx(ctx, tx, current.Pattern, decision.Category, decision.Subcategory); err != nil {
			r.logger.Error("failed to upsert website pattern",
				zap.Error(err),
				zap.String("pattern", current.Pattern))
			return nil, fmt.Errorf("failed to upsert website pattern: %w", err)
		}
	}

	updated, err := scanSuggestion(tx.QueryRow(ctx, `
		UPDATE ai_categorization_suggestions
		SET status = $2, reviewed_by = $3, reviewed_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+suggestionColumns,
		id, decision.Status, decision.ReviewedBy,
	))
	if err != nil {
		r.logger.Error("failed to update suggestion status",
			zap.Error(err),
			zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to update suggestion status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit review: %w", err)
	}

	return updated, nil
}
