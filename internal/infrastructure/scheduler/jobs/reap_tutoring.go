package jobs

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REAP TUTORING SESSIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// IdleReaper closes sessions without recent traffic.
type IdleReaper interface {
	ReapIdle(ctx context.Context, maxIdle time.Duration) int
}

// ReapTutoringJob ends tutoring sessions abandoned by their clients so their
// XP is still awarded.
type ReapTutoringJob struct {
	reaper  IdleReaper
	maxIdle time.Duration
}

// NewReapTutoringJob creates the job. maxIdle defaults to 15 minutes.
func NewReapTutoringJob(reaper IdleReaper, maxIdle time.Duration) *ReapTutoringJob {
	if maxIdle <= 0 {
		maxIdle = 15 * time.Minute
	}
	return &ReapTutoringJob{reaper: reaper, maxIdle: maxIdle}
}

// Name implements scheduler.Job.
func (j *ReapTutoringJob) Name() string { return "reap_tutoring_sessions" }

// Description implements scheduler.Job.
func (j *ReapTutoringJob) Description() string {
	return "Closes tutoring sessions idle for longer than " + j.maxIdle.String()
}

// Run implements scheduler.Job.
func (j *ReapTutoringJob) Run(ctx context.Context) error {
	j.reaper.ReapIdle(ctx, j.maxIdle)
	return ctx.Err()
}
