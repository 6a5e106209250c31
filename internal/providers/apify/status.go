package apify

import (
	"errors"
	"fmt"
	"strings"

	"affiliatescout/internal/domain"
)

// ErrUnknownStatus is returned for run states outside the documented vocabulary.
var ErrUnknownStatus = errors.New("apify: unknown run status")

// Phase is the closed set of run states the pipeline reacts to.
type Phase string

const (
	PhaseRunning   Phase = "running"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
	PhaseAborted   Phase = "aborted"
	PhaseTimedOut  Phase = "timed_out"
)

var statusPhases = map[string]Phase{
	"READY":      PhaseRunning,
	"RUNNING":    PhaseRunning,
	"SUCCEEDED":  PhaseSucceeded,
	"FAILED":     PhaseFailed,
	"ABORTING":   PhaseAborted,
	"ABORTED":    PhaseAborted,
	"TIMING-OUT": PhaseTimedOut,
	"TIMED-OUT":  PhaseTimedOut,
}

// ClassifyStatus maps a provider status string onto a Phase.
func ClassifyStatus(status string) (Phase, error) {
	phase, ok := statusPhases[strings.ToUpper(strings.TrimSpace(status))]
	if !ok {
		return "", fmt.Errorf("%w %q: %w", ErrUnknownStatus, status, domain.ErrProviderFailure)
	}
	return phase, nil
}

// JobStatus is the local terminal state a finished phase maps to. Running
// phases return false.
func (p Phase) JobStatus() (domain.JobStatus, bool) {
	switch p {
	case PhaseSucceeded:
		return domain.JobStatusProcessing, true
	case PhaseFailed, PhaseAborted:
		return domain.JobStatusFailed, true
	case PhaseTimedOut:
		return domain.JobStatusTimeout, true
	}
	return "", false
}
