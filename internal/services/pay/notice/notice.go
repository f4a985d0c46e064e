// Package notice delivers signed payment and chargeback notices to apps.
//
// A notice is POSTed to the app's postback or chargeback URL and the app must
// answer with the bare transaction ID. Failed deliveries are handed back to
// the task queue for a delayed retry; once the queue reports that no retries
// remain, the failure is reported to the marketplace exactly once.
package notice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type identifies which app callback a notice targets.
type Type string

const (
	TypePayment    Type = "payment"
	TypeChargeback Type = "chargeback"
)

// Simulation names a simulated payment result. The zero value is a real payment.
type Simulation string

const (
	NotSimulated        Simulation = ""
	SimulatedPostback   Simulation = "postback"
	SimulatedChargeback Simulation = "chargeback"
)

// IsSimulated reports whether s is a simulated result.
func (s Simulation) IsSimulated() bool {
	return s != NotSimulated
}

// Notice is one outbound notification.
type Notice struct {
	URL       string
	Type      Type
	Signed    string
	TransID   string
	Simulated Simulation
}

// Result reports the outcome of a delivery that did not end in a retry.
type Result struct {
	Success   bool
	LastError string
}

// ErrRetryScheduled is returned by Task.Retry when the queue accepted a
// delayed retry. Send passes it through unchanged.
var ErrRetryScheduled = errors.New("notice retry scheduled")

// ErrTaskLost is returned by Task.Retry when the caller no longer owns the
// task. Send returns it without reporting a failure; the new owner finishes
// the delivery.
var ErrTaskLost = errors.New("notice task no longer owned")

// Task is the queue-side handle for the delivery currently running.
type Task interface {
	// Retry schedules another delivery after delay unless maxRetries have
	// already been used. It returns ErrRetryScheduled on success and the
	// cause (or another error) when no retry was scheduled.
	Retry(ctx context.Context, delay time.Duration, maxRetries int, cause error) error
}

// Validate checks that a notice carries everything needed for delivery.
func (n Notice) Validate() error {
	if strings.TrimSpace(n.URL) == "" {
		return fmt.Errorf("notice url is required")
	}
	if strings.TrimSpace(n.TransID) == "" {
		return fmt.Errorf("notice transaction id is required")
	}
	if strings.TrimSpace(n.Signed) == "" {
		return fmt.Errorf("signed notice is required")
	}
	switch n.Type {
	case TypePayment, TypeChargeback:
	default:
		return fmt.Errorf("unknown notice type %q", n.Type)
	}
	return nil
}
