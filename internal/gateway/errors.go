package gateway

import (
	"errors"
	"fmt"

	"safe-command-gateway/internal/safety"
)

// Sentinel errors for the refusal paths. None of them mean an execution
// failed; they mean no process was ever spawned.
var (
	ErrValidation           = errors.New("invalid request")
	ErrBlocked              = errors.New("command blocked")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrRateLimited          = errors.New("rate limited")
)

// Refusal describes why a request was turned away before execution.
type Refusal struct {
	Err             error
	Reason          string
	Category        string
	Recommendations []string
	RetryAfterMS    int64
	Verdict         *safety.Verdict
}

func (r *Refusal) Error() string {
	if r.Reason == "" {
		return r.Err.Error()
	}
	return fmt.Sprintf("%s: %s", r.Err, r.Reason)
}

func (r *Refusal) Unwrap() error {
	return r.Err
}

func refuse(sentinel error, reason string) *Refusal {
	return &Refusal{Err: sentinel, Reason: reason}
}

func refuseVerdict(sentinel error, v safety.Verdict) *Refusal {
	return &Refusal{
		Err:             sentinel,
		Reason:          v.Reason,
		Category:        v.Category,
		Recommendations: v.Recommendations,
		Verdict:         &v,
	}
}
