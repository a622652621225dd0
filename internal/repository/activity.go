package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"activity-categorizer/internal/models"
)

// domainExpr extracts the lowercased host without a leading www.
const domainExpr = `LOWER(SUBSTRING(url FROM '^(?:[a-zA-Z][a-zA-Z0-9+.-]*://)?(?:www\.)?([^/:?#]+)'))`

// ActivityRepository reads recorded activity for the batch jobs
type ActivityRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *pgxpool.Pool, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
	}
}

// DomainActivity aggregates URL sessions started after q.Since by domain and
// returns the q.Limit most visited domains with at least q.MinVisits visits.
// When q.OrganizationID is set only that organization's users are counted.
func (r *ActivityRepository) DomainActivity(ctx context.Context, q models.UsageQuery) ([]models.DomainActivity, error) {
	start := time.Now()

	timezone := q.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	scope := ""
	args := []interface{}{q.Since, timezone, q.MinVisits}
	if q.OrganizationID != nil {
		args = append(args, *q.OrganizationID)
		scope = fmt.Sprintf(` AND user_id IN (SELECT id FROM users WHERE organization_id = $%d)`, len(args))
	}
	limit := ""
	if q.Limit > 0 {
		args = append(args, q.Limit)
		limit = fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	query := `
		WITH visits AS (
			SELECT ` + domainExpr + ` AS domain,
			       user_id,
			       EXTRACT(EPOCH FROM (end_time - start_time))::float8 AS duration,
			       start_time AT TIME ZONE $2 AS local_start
			FROM activities
			WHERE url IS NOT NULL AND url <> ''
			  AND end_time > start_time
			  AND start_time > $1` + scope + `
		)
		SELECT domain,
		       COUNT(DISTINCT user_id),
		       COUNT(DISTINCT local_start::date),
		       array_agg(duration),
		       array_agg(EXTRACT(HOUR FROM local_start)::float8)
		FROM visits
		WHERE domain IS NOT NULL AND domain <> ''
		GROUP BY domain
		HAVING COUNT(*) >= $3
		ORDER BY COUNT(*) DESC, domain` + limit

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to aggregate domain activity", zap.Error(err))
		return nil, fmt.Errorf("failed to aggregate domain activity: %w", err)
	}
	defer rows.Close()

	var out []models.DomainActivity
	for rows.Next() {
		var a models.DomainActivity
		if err := rows.Scan(&a.Domain, &a.UniqueUsers, &a.DaysVisited, &a.Durations, &a.StartHours); err != nil {
			return nil, fmt.Errorf("failed to scan domain activity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read domain activity: %w", err)
	}

	r.logger.Debug("domain activity aggregated",
		zap.Int("domains", len(out)),
		zap.Duration("duration", time.Since(start)))

	return out, nil
}

const uncategorizedDomainsQuery = `
		WITH visits AS (
			SELECT ` + domainExpr + ` AS domain,
			       EXTRACT(EPOCH FROM (end_time - start_time)) AS duration
			FROM activities
			WHERE url IS NOT NULL AND url <> ''
			  AND start_time > $1
		)
		SELECT v.domain, COUNT(*) AS visit_count, COALESCE(AVG(v.duration), 0) AS avg_duration
		FROM visits v
		WHERE v.domain IS NOT NULL AND v.domain <> ''
		  AND NOT EXISTS (
			SELECT 1 FROM website_categories wc
			WHERE strpos(v.domain, wc.pattern) > 0 OR wc.pattern = v.domain
		  )
		GROUP BY v.domain
		HAVING COUNT(*) >= $2
		ORDER BY visit_count DESC
		LIMIT $3`

// UncategorizedDomains returns the most visited domains since the given time
// that no stored website pattern matches
func (r *ActivityRepository) UncategorizedDomains(ctx context.Context, since time.Time, minVisits, limit int) ([]models.DomainUsage, error) {
	rows, err := r.db.Query(ctx, uncategorizedDomainsQuery, since, minVisits, limit)
	if err != nil {
		r.logger.Error("failed to list uncategorized domains", zap.Error(err))
		return nil, fmt.Errorf("failed to list uncategorized domains: %w", err)
	}
	defer rows.Close()

	var out []models.DomainUsage
	for rows.Next() {
		var d models.DomainUsage
		if err := rows.Scan(&d.Domain, &d.VisitCount, &d.AvgDurationSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan domain usage: %w", err)
		}
		out = append(out, d)
	}

	return out, rows.Err()
}
