package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"activity-categorizer/internal/ai"
	"activity-categorizer/internal/config"
	"activity-categorizer/internal/models"
	"activity-categorizer/internal/monitoring"
)

type fakeLearnerJob struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
}

func (f *fakeLearnerJob) RunAll(ctx context.Context) (int, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 3, f.err
}

type fakeAnalysisJob struct {
	enabled bool
	out     []*models.CategorizationSuggestion
}

func (f *fakeAnalysisJob) Enabled() bool { return f.enabled }

func (f *fakeAnalysisJob) Run(context.Context) ([]*models.CategorizationSuggestion, error) {
	if !f.enabled {
		return nil, ai.ErrDisabled
	}
	return f.out, nil
}

func testJobsConfig() *config.Config {
	return &config.Config{Jobs: config.JobsConfig{
		Enabled:         true,
		Timezone:        "America/Los_Angeles",
		LearnerSchedule: "0 2 * * *",
		AISchedule:      "0 3 * * *",
		StartupDelay:    time.Hour,
		RunTimeout:      time.Minute,
	}}
}

func newTestScheduler(cfg *config.Config, learner LearnerJob, analysis AnalysisJob) (*Scheduler, *monitoring.AuditLogger) {
	audit := monitoring.NewAuditLogger(zap.NewNop())
	return NewScheduler(cfg, learner, analysis, audit, zap.NewNop(), testMetrics()), audit
}

func TestScheduler_TriggerLearner(t *testing.T) {
	learner := &fakeLearnerJob{}
	s, audit := newTestScheduler(testJobsConfig(), learner, &fakeAnalysisJob{})

	result, err := s.TriggerLearner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, JobLearner, result.Job)
	assert.Equal(t, 3, result.Suggestions)

	require.NoError(t, audit.Close())
	events := audit.QueryEvents(&monitoring.AuditQuery{EventTypes: []monitoring.AuditEventType{monitoring.EventJobRun}})
	require.Len(t, events, 1)
	assert.Equal(t, "success", events[0].Status)
}

func TestScheduler_NoOverlap(t *testing.T) {
	learner := &fakeLearnerJob{started: make(chan struct{}, 1), release: make(chan struct{})}
	s, _ := newTestScheduler(testJobsConfig(), learner, &fakeAnalysisJob{})

	done := make(chan error, 1)
	go func() {
		_, err := s.TriggerLearner(context.Background())
		done <- err
	}()
	<-learner.started

	_, err := s.TriggerLearner(context.Background())
	assert.ErrorIs(t, err, ErrJobRunning)

	// the other job is independent
	_, err = s.TriggerAnalysis(context.Background())
	assert.ErrorIs(t, err, ai.ErrDisabled)

	close(learner.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), learner.calls.Load())

	_, err = s.TriggerLearner(context.Background())
	assert.NoError(t, err)
}

func TestScheduler_FailedRunIsAudited(t *testing.T) {
	learner := &fakeLearnerJob{err: errors.New("database unavailable")}
	s, audit := newTestScheduler(testJobsConfig(), learner, &fakeAnalysisJob{})

	_, err := s.TriggerLearner(context.Background())
	require.Error(t, err)

	require.NoError(t, audit.Close())
	events := audit.QueryEvents(&monitoring.AuditQuery{})
	require.Len(t, events, 1)
	assert.Equal(t, "failure", events[0].Status)
	assert.Equal(t, "database unavailable", events[0].Details["error"])
}

func TestScheduler_StartupRun(t *testing.T) {
	cfg := testJobsConfig()
	cfg.Jobs.StartupDelay = 10 * time.Millisecond
	learner := &fakeLearnerJob{}
	s, _ := newTestScheduler(cfg, learner, &fakeAnalysisJob{enabled: true})

	require.NoError(t, s.Start())
	defer func() { require.NoError(t, s.Stop(context.Background())) }()

	assert.Eventually(t, func() bool {
		return learner.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, s.cron.Entries(), 2)
}

func TestScheduler_Disabled(t *testing.T) {
	cfg := testJobsConfig()
	cfg.Jobs.Enabled = false
	cfg.Jobs.StartupDelay = time.Millisecond
	learner := &fakeLearnerJob{}
	s, _ := newTestScheduler(cfg, learner, &fakeAnalysisJob{})

	require.NoError(t, s.Start())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), learner.calls.Load())
	assert.Nil(t, s.cron)

	// manual triggers still work
	_, err := s.TriggerLearner(context.Background())
	assert.NoError(t, err)
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_AnalysisNotScheduledWithoutClassifier(t *testing.T) {
	s, _ := newTestScheduler(testJobsConfig(), &fakeLearnerJob{}, &fakeAnalysisJob{})

	require.NoError(t, s.Start())
	defer func() { require.NoError(t, s.Stop(context.Background())) }()

	assert.Len(t, s.cron.Entries(), 1)
}
