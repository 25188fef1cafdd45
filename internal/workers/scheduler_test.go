package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	authmodels "barn-economy-backend/internal/features/auth/models"
	claimservice "barn-economy-backend/internal/features/claim/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct{ calls int }

func (p *fakePruner) Prune(context.Context) (*authmodels.PruneResult, error) {
	p.calls++
	return &authmodels.PruneResult{Sessions: 2, Nonces: 1}, nil
}

type fakeReconciler struct{ limit int }

func (r *fakeReconciler) Reconcile(_ context.Context, limit int) (*claimservice.ReconcileStats, error) {
	r.limit = limit
	return &claimservice.ReconcileStats{Checked: 1, Confirmed: 1}, nil
}

type fakeArchiver struct{ err error }

func (a *fakeArchiver) ArchivePrevious(context.Context) error { return a.err }

func testScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		PruneInterval:     time.Hour,
		ReconcileInterval: time.Minute,
		ReconcileBatch:    25,
		ArchiveCron:       "15 0 1 * *",
	}
}

func TestSchedulerRegistersConfiguredJobs(t *testing.T) {
	s, err := NewScheduler(Jobs{Pruner: &fakePruner{}, Reconciler: &fakeReconciler{}}, testScheduleConfig())
	require.NoError(t, err)
	assert.Len(t, s.sched.Jobs(), 2)
	s.Start()
	require.NoError(t, s.Shutdown())

	s, err = NewScheduler(Jobs{Pruner: &fakePruner{}, Reconciler: &fakeReconciler{}, Archiver: &fakeArchiver{}}, testScheduleConfig())
	require.NoError(t, err)
	assert.Len(t, s.sched.Jobs(), 3)
	s.Start()
	require.NoError(t, s.Shutdown())
}

func TestSchedulerRejectsBadCron(t *testing.T) {
	cfg := testScheduleConfig()
	cfg.ArchiveCron = "every month"
	_, err := NewScheduler(Jobs{Archiver: &fakeArchiver{}}, cfg)
	assert.Error(t, err)
}

func TestJobsCallThrough(t *testing.T) {
	pruner := &fakePruner{}
	reconciler := &fakeReconciler{}
	archiver := &fakeArchiver{err: errors.New("bucket missing")}
	s, err := NewScheduler(Jobs{Pruner: pruner, Reconciler: reconciler, Archiver: archiver}, testScheduleConfig())
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Shutdown() })

	ctx := context.Background()
	require.NoError(t, s.prune(ctx))
	assert.Equal(t, 1, pruner.calls)
	require.NoError(t, s.reconcile(ctx))
	assert.Equal(t, 25, reconciler.limit)
	assert.EqualError(t, s.archive(ctx), "bucket missing")

	// run logs failures instead of propagating them
	s.run("leaderboard_archive", s.archive)
}
