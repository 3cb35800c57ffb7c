package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notewise/notewise-backend/pkg/logger"
)

type countingJob struct {
	name string
	runs atomic.Int32
	fail error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "counts runs" }
func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.fail
}

func newTestScheduler() *Scheduler {
	cfg := DefaultSchedulerConfig()
	cfg.Logger = logger.Nop()
	cfg.MaxHistorySize = 3
	return NewScheduler(cfg)
}

func TestScheduler_RegisterAndList(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	require.NoError(t, s.Every(&countingJob{name: "b"}, time.Hour, false))
	require.NoError(t, s.Cron(&countingJob{name: "a"}, "0 3 * * *"))

	err := s.Every(&countingJob{name: "a"}, time.Minute, false)
	assert.ErrorIs(t, err, ErrJobAlreadyExists)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "cron 0 3 * * *", jobs[0].Schedule)
	assert.Equal(t, "every 1h0m0s", jobs[1].Schedule)
}

func TestScheduler_RejectsNonPositiveInterval(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	assert.Error(t, s.Every(&countingJob{name: "x"}, 0, false))
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_RunNowRecordsHistory(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", fail: errors.New("boom")}
	require.NoError(t, s.Every(ok, time.Hour, false))
	require.NoError(t, s.Every(bad, time.Hour, false))

	res, err := s.RunNow("ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	res, err = s.RunNow("bad")
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)

	_, err = s.RunNow("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	for i := 0; i < 3; i++ {
		_, _ = s.RunNow("ok")
	}
	history := s.History(0)
	assert.Len(t, history, 3)
	assert.Len(t, s.History(1), 1)

	for _, info := range s.ListJobs() {
		if info.Name == "bad" {
			assert.Equal(t, int64(1), info.RunCount)
			assert.Equal(t, int64(1), info.FailCount)
		}
	}
	assert.Equal(t, int32(4), ok.runs.Load())
}

func TestScheduler_StartRunsImmediateJobs(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "now"}
	require.NoError(t, s.Every(job, time.Hour, true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), ErrAlreadyRunning)

	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.Stop()
}

func TestScheduler_Unregister(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	require.NoError(t, s.Every(&countingJob{name: "x"}, time.Hour, false))
	require.NoError(t, s.Unregister("x"))
	assert.ErrorIs(t, s.Unregister("x"), ErrJobNotFound)
	assert.Equal(t, 0, s.Len())
}
