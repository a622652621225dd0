package learning

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"activity-categorizer/internal/categorization"
	"activity-categorizer/internal/config"
	"activity-categorizer/internal/metrics"
	"activity-categorizer/internal/models"
)

// session is one recorded URL visit
type session struct {
	UserID    uuid.UUID
	URL       string
	StartTime time.Time
	EndTime   time.Time
}

// fakeActivity groups sessions the way the activity query does
type fakeActivity struct {
	byScope map[string][]session
	err     error
	queries []models.UsageQuery
}

func scopeKey(orgID *uuid.UUID) string {
	if orgID == nil {
		return "global"
	}
	return orgID.String()
}

func (f *fakeActivity) DomainActivity(_ context.Context, q models.UsageQuery) ([]models.DomainActivity, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return aggregate(f.byScope[scopeKey(q.OrganizationID)], q.MinVisits), nil
}

func aggregate(sessions []session, minVisits int) []models.DomainActivity {
	type group struct {
		a     models.DomainActivity
		users map[uuid.UUID]struct{}
		days  map[string]struct{}
	}
	groups := make(map[string]*group)
	var order []string

	for _, s := range sessions {
		if !s.EndTime.After(s.StartTime) {
			continue
		}
		domain := strings.TrimPrefix(categorization.ExtractDomain(s.URL), "www.")
		g, ok := groups[domain]
		if !ok {
			g = &group{
				a:     models.DomainActivity{Domain: domain},
				users: make(map[uuid.UUID]struct{}),
				days:  make(map[string]struct{}),
			}
			groups[domain] = g
			order = append(order, domain)
		}
		g.a.Durations = append(g.a.Durations, s.EndTime.Sub(s.StartTime).Seconds())
		g.a.StartHours = append(g.a.StartHours, float64(s.StartTime.Hour()))
		g.users[s.UserID] = struct{}{}
		g.days[s.StartTime.Format("2006-01-02")] = struct{}{}
	}

	var out []models.DomainActivity
	for _, domain := range order {
		g := groups[domain]
		if g.a.Visits() < minVisits {
			continue
		}
		g.a.UniqueUsers = len(g.users)
		g.a.DaysVisited = len(g.days)
		out = append(out, g.a)
	}
	return out
}

type fakePatterns map[string]*models.WebsitePatternRule

func (f fakePatterns) FindByPattern(_ context.Context, pattern string) (*models.WebsitePatternRule, error) {
	return f[pattern], nil
}

type fakeSink struct {
	batches [][]*models.CategorizationSuggestion
}

func (f *fakeSink) InsertBatch(_ context.Context, s []*models.CategorizationSuggestion) error {
	f.batches = append(f.batches, s)
	return nil
}

type fakeOrgs []uuid.UUID

func (f fakeOrgs) ListOrganizationIDs(context.Context) ([]uuid.UUID, error) {
	return f, nil
}

var baseDay = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// visits builds one session per duration, starting at hour on consecutive
// days for distinct users when spread is set
func visits(url string, hour int, spread bool, durations ...time.Duration) []session {
	user := uuid.New()
	out := make([]session, 0, len(durations))
	for i, d := range durations {
		start := baseDay.Add(time.Duration(hour) * time.Hour)
		uid := user
		if spread {
			start = start.AddDate(0, 0, i)
			uid = uuid.New()
		}
		out = append(out, session{
			UserID:    uid,
			URL:       url,
			StartTime: start,
			EndTime:   start.Add(d),
		})
	}
	return out
}

func repeat(d time.Duration, n int) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = d
	}
	return out
}

// focusedSessions averages 700s with focus score 0.9
func focusedSessions(url string) []session {
	return visits(url, 13, false, append(repeat(750*time.Second, 9), 250*time.Second)...)
}

// scatteredSessions averages 60s with focus score 0.1
func scatteredSessions(url string) []session {
	return visits(url, 20, false, append(repeat(30*time.Second, 9), 330*time.Second)...)
}

// popularSessions come from 5 users on 5 days, averaging 200s with focus 0.4
func popularSessions(url string) []session {
	return visits(url, 11, true, 400*time.Second, 400*time.Second, 66*time.Second, 67*time.Second, 67*time.Second)
}

func newTestLearner(sessions *fakeActivity, patterns fakePatterns, sink *fakeSink, orgs fakeOrgs, perOrg bool) *Learner {
	logger := zap.NewNop()
	cfg := &config.Config{
		Jobs: config.JobsConfig{
			Timezone:               "UTC",
			LearnerLookback:        30 * 24 * time.Hour,
			LearnerMinVisits:       5,
			LearnerMaxDomains:      50,
			LearnerPerOrganization: perOrg,
		},
	}
	l := NewLearner(cfg, sessions, patterns, sink, orgs, logger,
		metrics.NewMetricsCollector(&config.MetricsConfig{Enabled: false}, logger))
	l.now = func() time.Time { return baseDay.AddDate(0, 0, 10) }
	return l
}

func byPattern(out []*models.CategorizationSuggestion) map[string]*models.CategorizationSuggestion {
	m := make(map[string]*models.CategorizationSuggestion, len(out))
	for _, s := range out {
		m[s.Pattern] = s
	}
	return m
}

func TestProfile(t *testing.T) {
	var sessions []session
	sessions = append(sessions, focusedSessions("https://www.mathdocs.org/guide")...)
	sessions = append(sessions, visits("https://rare.io", 10, false, repeat(time.Minute, 4)...)...)
	sessions = append(sessions, session{URL: "https://broken.io", StartTime: baseDay, EndTime: baseDay})

	activity := aggregate(sessions, 5)
	require.Len(t, activity, 1)

	s := Profile(activity[0])
	assert.Equal(t, "mathdocs.org", s.Domain)
	assert.Equal(t, 10, s.Visits)
	assert.InDelta(t, 700.0, s.AvgDuration, 1e-9)
	assert.InDelta(t, 0.9, s.FocusScore, 1e-9)
	assert.InDelta(t, 13.0, s.AvgHour, 1e-9)
	assert.Equal(t, 1, s.UniqueUsers)
	assert.Equal(t, 1, s.DaysVisited)

	t.Run("no visits", func(t *testing.T) {
		empty := Profile(models.DomainActivity{Domain: "idle.example"})
		assert.Equal(t, 0, empty.Visits)
		assert.Zero(t, empty.FocusScore)
	})
}

func TestLearner_QueriesAggregatedActivity(t *testing.T) {
	orgID := uuid.New()
	activity := &fakeActivity{}
	l := newTestLearner(activity, fakePatterns{}, &fakeSink{}, nil, false)

	_, err := l.Run(context.Background(), &orgID)
	require.NoError(t, err)
	require.Len(t, activity.queries, 1)

	q := activity.queries[0]
	assert.Equal(t, baseDay.AddDate(0, 0, -20), q.Since)
	assert.Equal(t, 5, q.MinVisits)
	assert.Equal(t, 50, q.Limit)
	assert.Equal(t, "UTC", q.Timezone)
	require.NotNil(t, q.OrganizationID)
	assert.Equal(t, orgID, *q.OrganizationID)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		stats    DomainStats
		category models.Category
		score    float64
		popular  bool
	}{
		{"long focused work hours", DomainStats{AvgDuration: 700, FocusScore: 0.9, AvgHour: 13}, models.CategoryProductive, 0.8, false},
		{"long focused at night", DomainStats{AvgDuration: 700, FocusScore: 0.9, AvgHour: 23}, models.CategoryNeutral, 0.8, false},
		{"short scattered", DomainStats{AvgDuration: 60, FocusScore: 0.1, AvgHour: 20}, models.CategoryDistracting, 0.2, false},
		{"popular", DomainStats{AvgDuration: 200, FocusScore: 0.4, UniqueUsers: 3, DaysVisited: 5}, models.CategoryNeutral, 0.5, true},
		{"unremarkable", DomainStats{AvgDuration: 200, FocusScore: 0.4, UniqueUsers: 1, DaysVisited: 9}, models.CategoryNeutral, 0.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify(tt.stats)
			assert.Equal(t, tt.category, v.Category)
			assert.InDelta(t, tt.score, v.Score, 1e-9)
			assert.Equal(t, tt.popular, v.Popular)
		})
	}
}

func TestLearner_Run(t *testing.T) {
	var sessions []session
	sessions = append(sessions, focusedSessions("https://mathdocs.org/a")...)
	sessions = append(sessions, scatteredSessions("https://memes.example/feed")...)
	sessions = append(sessions, focusedSessions("https://docs.python.org/3/")...)

	patterns := fakePatterns{
		"docs.python.org": {Pattern: "docs.python.org", Category: models.CategoryProductive},
	}
	sink := &fakeSink{}
	l := newTestLearner(&fakeActivity{byScope: map[string][]session{"global": sessions}}, patterns, sink, nil, false)

	out, err := l.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, sink.batches, 1)

	got := byPattern(out)
	require.Len(t, got, 2)

	productive := got["mathdocs.org"]
	require.NotNil(t, productive)
	assert.Equal(t, models.CategoryProductive, productive.SuggestedCategory)
	assert.InDelta(t, 0.9, productive.Confidence, 1e-9)
	assert.Equal(t, models.SourceLearner, productive.Source)
	assert.Equal(t, models.SuggestionPending, productive.Status)
	assert.Equal(t, 10, productive.Evidence["visit_count"])
	assert.Equal(t, 700.0, productive.Evidence["avg_duration_seconds"])

	distracting := got["memes.example"]
	require.NotNil(t, distracting)
	assert.Equal(t, models.CategoryDistracting, distracting.SuggestedCategory)

	_, agreed := got["docs.python.org"]
	assert.False(t, agreed, "agreement with the stored category must not be suggested")
}

func TestLearner_Popular(t *testing.T) {
	sessions := popularSessions("https://forum.example/t/1")

	t.Run("uncategorized popular domain is flagged for review", func(t *testing.T) {
		sink := &fakeSink{}
		l := newTestLearner(&fakeActivity{byScope: map[string][]session{"global": sessions}}, fakePatterns{}, sink, nil, false)

		out, err := l.Run(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, models.CategoryNeutral, out[0].SuggestedCategory)
		assert.True(t, out[0].NeedsReview)
		assert.Equal(t, true, out[0].Evidence["popular"])
	})

	t.Run("categorized popular domain is left alone", func(t *testing.T) {
		sink := &fakeSink{}
		patterns := fakePatterns{"forum.example": {Pattern: "forum.example", Category: models.CategoryDistracting}}
		l := newTestLearner(&fakeActivity{byScope: map[string][]session{"global": sessions}}, patterns, sink, nil, false)

		out, err := l.Run(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, out)
		assert.Empty(t, sink.batches)
	})
}

func TestLearner_TopDomainsOnly(t *testing.T) {
	var sessions []session
	sessions = append(sessions, scatteredSessions("https://a.example")...)
	sessions = append(sessions, scatteredSessions("https://b.example")...)
	sessions = append(sessions, visits("https://c.example", 20, false, repeat(30*time.Second, 12)...)...)

	sink := &fakeSink{}
	l := newTestLearner(&fakeActivity{byScope: map[string][]session{"global": sessions}}, fakePatterns{}, sink, nil, false)
	l.maxDomains = 2

	out, err := l.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c.example", out[0].Pattern)
	assert.Equal(t, "a.example", out[1].Pattern)
}

func TestLearner_RunAllPerOrganization(t *testing.T) {
	orgID := uuid.New()
	sessions := &fakeActivity{byScope: map[string][]session{
		"global":       scatteredSessions("https://memes.example"),
		orgID.String(): focusedSessions("https://lab.school.edu"),
	}}
	sink := &fakeSink{}
	l := newTestLearner(sessions, fakePatterns{}, sink, fakeOrgs{orgID}, true)

	n, err := l.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, sink.batches, 2)
	assert.Nil(t, sink.batches[0][0].OrganizationID)
	require.NotNil(t, sink.batches[1][0].OrganizationID)
	assert.Equal(t, orgID, *sink.batches[1][0].OrganizationID)
}

func TestLearner_SourceError(t *testing.T) {
	sink := &fakeSink{}
	l := newTestLearner(&fakeActivity{err: errors.New("db down")}, fakePatterns{}, sink, nil, false)

	_, err := l.Run(context.Background(), nil)
	assert.Error(t, err)
	assert.Empty(t, sink.batches)
}
