package controller

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/gapfollow/internal/followgap"
)

// ErrSendFailed wraps an actuator error. The decision was valid but did not
// reach the vehicle.
var ErrSendFailed = errors.New("send command")

// Status is the outcome of one cycle.
type Status string

const (
	StatusEmitted    Status = "emitted"
	StatusMalformed  Status = "malformed"
	StatusDeadline   Status = "deadline"
	StatusSendFailed Status = "send_failed"
	StatusCanceled   Status = "canceled"
	StatusFailed     Status = "failed"
)

// Cycle describes one completed or abandoned cycle. Decision is set when a
// command was produced (Emitted or SendFailed).
type Cycle struct {
	RunID    string
	Seq      uint32
	Stamp    time.Time
	Status   Status
	Decision *followgap.Decision
	Err      error
	Duration time.Duration
}

// Observer is told about every cycle. ObserveCycle runs on the control
// goroutine and must not block; slow consumers buffer and drop internally.
type Observer interface {
	ObserveCycle(Cycle)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Cycle)

func (f ObserverFunc) ObserveCycle(c Cycle) { f(c) }

func classify(err error) Status {
	switch {
	case err == nil:
		return StatusEmitted
	case errors.Is(err, ErrDeadlineExceeded):
		return StatusDeadline
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	case errors.Is(err, ErrSendFailed):
		return StatusSendFailed
	case errors.Is(err, followgap.ErrEmptySweep),
		errors.Is(err, followgap.ErrInvalidGeometry),
		errors.Is(err, followgap.ErrSweepLength),
		errors.Is(err, followgap.ErrUnsanitizable),
		errors.Is(err, followgap.ErrTargetOutOfRange):
		return StatusMalformed
	}
	return StatusFailed
}
