package workers

import (
	"context"
	"fmt"
	"time"

	"barn-economy-backend/internal/common/logger"
	authmodels "barn-economy-backend/internal/features/auth/models"
	claimservice "barn-economy-backend/internal/features/claim/service"

	"github.com/go-co-op/gocron/v2"
)

type Pruner interface {
	Prune(ctx context.Context) (*authmodels.PruneResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, limit int) (*claimservice.ReconcileStats, error)
}

type Archiver interface {
	ArchivePrevious(ctx context.Context) error
}

type ScheduleConfig struct {
	PruneInterval     time.Duration
	ReconcileInterval time.Duration
	ReconcileBatch    int
	ArchiveCron       string
	// JobTimeout bounds a single run of any job.
	JobTimeout time.Duration
}

// Jobs are the periodic tasks. A nil Archiver disables archiving.
type Jobs struct {
	Pruner     Pruner
	Reconciler Reconciler
	Archiver   Archiver
}

// Scheduler runs the periodic jobs on a gocron scheduler.
type Scheduler struct {
	sched gocron.Scheduler
	jobs  Jobs
	cfg   ScheduleConfig
}

func NewScheduler(jobs Jobs, cfg ScheduleConfig) (*Scheduler, error) {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s := &Scheduler{sched: sched, jobs: jobs, cfg: cfg}

	if jobs.Pruner != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.PruneInterval),
			gocron.NewTask(s.run, "auth_prune", s.prune),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("failed to schedule auth prune: %w", err)
		}
	}
	if jobs.Reconciler != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.ReconcileInterval),
			gocron.NewTask(s.run, "claim_reconcile", s.reconcile),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("failed to schedule claim reconcile: %w", err)
		}
	}
	if jobs.Archiver != nil {
		if _, err := sched.NewJob(
			gocron.CronJob(cfg.ArchiveCron, false),
			gocron.NewTask(s.run, "leaderboard_archive", s.archive),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("failed to schedule leaderboard archive: %w", err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	logger.Info().Int("jobs", len(s.sched.Jobs())).Msg("Scheduler started")
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

func (s *Scheduler) run(name string, job func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		logger.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
		return
	}
	logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("Scheduled job finished")
}

func (s *Scheduler) prune(ctx context.Context) error {
	res, err := s.jobs.Pruner.Prune(ctx)
	if err != nil {
		return err
	}
	if res.Sessions > 0 || res.Nonces > 0 {
		logger.Info().Int64("sessions", res.Sessions).Int64("nonces", res.Nonces).Msg("Pruned expired auth state")
	}
	return nil
}

func (s *Scheduler) reconcile(ctx context.Context) error {
	stats, err := s.jobs.Reconciler.Reconcile(ctx, s.cfg.ReconcileBatch)
	if err != nil {
		return err
	}
	if stats.Checked > 0 {
		logger.Info().
			Int("checked", stats.Checked).
			Int("confirmed", stats.Confirmed).
			Int("failed", stats.Failed).
			Int("errors", stats.Errors).
			Msg("Reconciled pending claims")
	}
	return nil
}

func (s *Scheduler) archive(ctx context.Context) error {
	return s.jobs.Archiver.ArchivePrevious(ctx)
}
