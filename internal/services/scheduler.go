package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"activity-categorizer/internal/config"
	"activity-categorizer/internal/metrics"
	"activity-categorizer/internal/models"
	"activity-categorizer/internal/monitoring"
)

const (
	JobLearner  = "learner"
	JobAnalysis = "ai_analysis"
)

// ErrJobRunning is returned when a job is triggered while a run is in flight
var ErrJobRunning = errors.New("job already running")

// LearnerJob is the Usage-Pattern Learner
type LearnerJob interface {
	RunAll(ctx context.Context) (int, error)
}

// AnalysisJob is the AI Suggestion Generator
type AnalysisJob interface {
	Enabled() bool
	Run(ctx context.Context) ([]*models.CategorizationSuggestion, error)
}

// JobResult summarizes one job run
type JobResult struct {
	Job         string        `json:"job"`
	Suggestions int           `json:"suggestions"`
	Duration    time.Duration `json:"duration"`
}

// Scheduler runs the batch jobs on their cron schedules and on demand. A job
// never overlaps with itself, whichever way it was started.
type Scheduler struct {
	cfg      *config.JobsConfig
	learner  LearnerJob
	analysis AnalysisJob
	audit    *monitoring.AuditLogger
	logger   *zap.Logger
	metrics  *metrics.MetricsCollector

	learnerMu  sync.Mutex
	analysisMu sync.Mutex

	cron    *cron.Cron
	startup *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a new job scheduler
func NewScheduler(
	cfg *config.Config,
	learner LearnerJob,
	analysis AnalysisJob,
	audit *monitoring.AuditLogger,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:      &cfg.Jobs,
		learner:  learner,
		analysis: analysis,
		audit:    audit,
		logger:   logger,
		metrics:  metricsCollector,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterScheduler ties the scheduler to the application lifecycle
func RegisterScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}

// Start registers the cron entries and arms the startup learner run
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("batch jobs disabled")
		return nil
	}

	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		s.logger.Warn("unknown jobs timezone, using UTC",
			zap.String("timezone", s.cfg.Timezone),
			zap.Error(err))
		loc = time.UTC
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(s.logger.Named("cron")))
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	if _, err := s.cron.AddFunc(s.cfg.LearnerSchedule, func() {
		s.runScheduled(JobLearner, s.TriggerLearner)
	}); err != nil {
		return err
	}

	if s.analysis.Enabled() {
		if _, err := s.cron.AddFunc(s.cfg.AISchedule, func() {
			s.runScheduled(JobAnalysis, s.TriggerAnalysis)
		}); err != nil {
			return err
		}
	} else {
		s.logger.Info("AI analysis job not scheduled, classifier not configured")
	}

	s.cron.Start()

	s.startup = time.AfterFunc(s.cfg.StartupDelay, func() {
		s.runScheduled(JobLearner, s.TriggerLearner)
	})

	s.logger.Info("job scheduler started",
		zap.String("timezone", loc.String()),
		zap.String("learner_schedule", s.cfg.LearnerSchedule),
		zap.String("ai_schedule", s.cfg.AISchedule),
		zap.Duration("startup_delay", s.cfg.StartupDelay))

	return nil
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.startup != nil {
		s.startup.Stop()
	}
	s.cancel()

	if s.cron == nil {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("job scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerLearner runs the learner now
func (s *Scheduler) TriggerLearner(ctx context.Context) (*JobResult, error) {
	return s.run(ctx, JobLearner, &s.learnerMu, s.learner.RunAll)
}

// TriggerAnalysis runs the AI suggestion generator now
func (s *Scheduler) TriggerAnalysis(ctx context.Context) (*JobResult, error) {
	return s.run(ctx, JobAnalysis, &s.analysisMu, func(ctx context.Context) (int, error) {
		out, err := s.analysis.Run(ctx)
		return len(out), err
	})
}

func (s *Scheduler) runScheduled(job string, trigger func(context.Context) (*JobResult, error)) {
	if _, err := trigger(s.ctx); err != nil {
		if errors.Is(err, ErrJobRunning) {
			s.logger.Info("skipping job, previous run still in progress", zap.String("job", job))
			return
		}
		s.logger.Error("scheduled job failed", zap.String("job", job), zap.Error(err))
	}
}

func (s *Scheduler) run(ctx context.Context, job string, mu *sync.Mutex, fn func(context.Context) (int, error)) (*JobResult, error) {
	if !mu.TryLock() {
		return nil, ErrJobRunning
	}
	defer mu.Unlock()

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	n, err := fn(ctx)
	duration := time.Since(start)

	s.metrics.RecordJobRun(job, err, duration)

	event := s.audit.Event(monitoring.EventJobRun, job, job+" run").
		Detail("suggestions", n).
		Detail("duration_ms", duration.Milliseconds())
	if err != nil {
		event.Failed(err)
	}
	event.Commit()

	if err != nil {
		return nil, err
	}

	s.logger.Info("job completed",
		zap.String("job", job),
		zap.Int("suggestions", n),
		zap.Duration("duration", duration))

	return &JobResult{Job: job, Suggestions: n, Duration: duration}, nil
}
