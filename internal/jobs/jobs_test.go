package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs     atomic.Int32
	interval time.Duration
	err      error
}

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Interval() time.Duration { return j.interval }

func TestSchedulerRunsRegisteredJobs(t *testing.T) {
	s, err := NewJobScheduler()
	require.NoError(t, err)

	job := &countingJob{interval: 20 * time.Millisecond}
	require.NoError(t, s.Register("counter", job))

	s.Start()
	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	s.Stop()

	status := s.GetStatus()
	require.Contains(t, status, "counter")
	assert.Equal(t, "20ms", status["counter"].Interval)
	assert.True(t, status["counter"].Registered)
}

func TestSchedulerRegisterTwice(t *testing.T) {
	s, err := NewJobScheduler()
	require.NoError(t, err)
	defer s.Stop()

	require.NoError(t, s.Register("counter", &countingJob{interval: time.Hour}))
	assert.Error(t, s.Register("counter", &countingJob{interval: time.Hour}))
}

func TestSchedulerRunNow(t *testing.T) {
	s, err := NewJobScheduler()
	require.NoError(t, err)
	defer s.Stop()

	failing := &countingJob{interval: time.Hour, err: errors.New("boom")}
	require.NoError(t, s.Register("failing", failing))

	assert.EqualError(t, s.RunNow("failing"), "boom")
	assert.Equal(t, int32(1), failing.runs.Load())

	assert.Error(t, s.RunNow("missing"))
}

type fakePurger struct {
	deleted int64
	err     error
	calls   int
}

func (f *fakePurger) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

func TestTokenCleanupJob(t *testing.T) {
	purger := &fakePurger{deleted: 3}
	job := NewTokenCleanupJob(purger, 0)

	assert.Equal(t, time.Hour, job.Interval())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, purger.calls)

	purger.err = errors.New("db down")
	assert.Error(t, job.Run(context.Background()))
}

type fakePruner struct {
	maxAge time.Duration
	calls  int
}

func (f *fakePruner) PruneIdle(maxAge time.Duration) int {
	f.calls++
	f.maxAge = maxAge
	return 2
}

func TestStatePruneJob(t *testing.T) {
	pruner := &fakePruner{}
	job := NewStatePruneJob(pruner, 10*time.Minute, time.Hour)

	assert.Equal(t, 10*time.Minute, job.Interval())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, time.Hour, pruner.maxAge)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Equal(t, 1, pruner.calls)
}
