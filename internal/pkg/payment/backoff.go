package payment

import (
	"time"

	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
)

// Schedule is the bounded retry state machine behind the poll path. The
// client reports its attempt number; the server answers with the next delay
// and whether the attempt budget is exhausted, keeping cancellation and
// exhaustion behavior testable without any network.
type Schedule struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultSchedule() Schedule {
	return Schedule{
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 8,
	}
}

// NextDelay returns the exponential delay before the given attempt (0-based),
// capped at MaxDelay.
func (s Schedule) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := s.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= s.MaxDelay {
			return s.MaxDelay
		}
	}
	if d > s.MaxDelay {
		return s.MaxDelay
	}
	return d
}

// Exhausted reports whether the attempt budget is spent. An exhausted poll
// presents "may still be processing", never a fabricated failure.
func (s Schedule) Exhausted(attempt int) bool {
	return attempt >= s.MaxAttempts
}

// Retryable classifies a settlement reason code: pending-ish codes are worth
// another poll, everything else is terminal for the client.
func Retryable(code string) bool {
	switch code {
	case reason.PaymentPending, reason.GatewayUnreachable:
		return true
	default:
		return false
	}
}
