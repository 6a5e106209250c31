package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Runner drives a job to a terminal state without a caller polling it.
type Runner struct {
	svc      *Service
	poll     time.Duration
	deadline time.Duration
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRunner polls every poll until the job finishes or deadline passes.
func NewRunner(svc *Service, poll, deadline time.Duration, logger zerolog.Logger) *Runner {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	if deadline <= 0 {
		deadline = 180 * time.Second
	}
	return &Runner{svc: svc, poll: poll, deadline: deadline, logger: logger, sleep: sleepCtx}
}

// Run starts a job for ownerID and waits for it. A job still running at the
// deadline is moved to timeout.
func (r *Runner) Run(ctx context.Context, ownerID string, req StartRequest) (StatusResult, error) {
	started, err := r.svc.Start(ctx, ownerID, req)
	if err != nil {
		return StatusResult{JobID: started.JobID, Status: started.Status}, err
	}
	log := r.logger.With().Str("job_id", started.JobID).Str("owner_id", ownerID).Logger()

	deadline := r.svc.Now().Add(r.deadline)
	for {
		if err := r.sleep(ctx, r.poll); err != nil {
			return StatusResult{JobID: started.JobID, Status: started.Status}, err
		}
		status, err := r.svc.Status(ctx, ownerID, started.JobID)
		if err != nil {
			return status, err
		}
		if status.Status.Terminal() {
			log.Info().Str("status", string(status.Status)).Int("results", status.ResultsCount).Msg("discovery: unattended job finished")
			return status, nil
		}
		if !r.svc.Now().Before(deadline) {
			msg := fmt.Sprintf("unattended search did not finish within %d seconds", int(r.deadline.Seconds()))
			if _, err := r.svc.Expire(ctx, started.JobID, msg); err != nil {
				return status, err
			}
			log.Warn().Msg("discovery: unattended job expired")
			return r.svc.Status(ctx, ownerID, started.JobID)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
