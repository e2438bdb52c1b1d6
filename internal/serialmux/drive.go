package serialmux

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/gapfollow/internal/followgap"
	"github.com/banshee-data/gapfollow/internal/monitoring"
)

var logger = monitoring.Component("serial")

var ErrBadDriveLine = errors.New("malformed drive line")

// FormatDrive renders one drive line without the trailing newline:
// "D <steering radians> <speed m/s>".
func FormatDrive(steering, speed float64) string {
	return fmt.Sprintf("D %.4f %.3f", steering, speed)
}

// ParseDrive is the inverse of FormatDrive. The send-command admin route
// runs drive lines through it; values must be finite.
func ParseDrive(line string) (followgap.Command, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "D" {
		return followgap.Command{}, fmt.Errorf("%w: %q", ErrBadDriveLine, line)
	}
	steer, err1 := strconv.ParseFloat(fields[1], 64)
	speed, err2 := strconv.ParseFloat(fields[2], 64)
	if err := errors.Join(err1, err2); err != nil {
		return followgap.Command{}, fmt.Errorf("%w: %q: %v", ErrBadDriveLine, line, err)
	}
	c := followgap.Command{SteeringAngle: steer, Speed: speed}
	if !finite(c) {
		return followgap.Command{}, fmt.Errorf("%w: %q: non-finite value", ErrBadDriveLine, line)
	}
	return c, nil
}

func finite(c followgap.Command) bool {
	return !math.IsNaN(c.SteeringAngle) && !math.IsInf(c.SteeringAngle, 0) &&
		!math.IsNaN(c.Speed) && !math.IsInf(c.Speed, 0)
}

// DriveSink sends controller commands over a Mux. It is fire-and-forget:
// Send returns once the line is written, without waiting for a reply.
type DriveSink struct {
	mux Mux

	mu   sync.Mutex
	last followgap.Command

	sent     atomic.Uint64
	failures atomic.Uint64
}

// NewDriveSink wraps mux.
func NewDriveSink(mux Mux) *DriveSink {
	return &DriveSink{mux: mux}
}

// Initialize puts the vehicle in a known state: straight wheels, zero speed.
func (d *DriveSink) Initialize() error {
	if err := d.neutral(); err != nil {
		return fmt.Errorf("failed to send neutral command: %w", err)
	}
	return nil
}

// Send implements controller.Sink.
func (d *DriveSink) Send(c followgap.Command) error {
	if !finite(c) {
		d.failures.Add(1)
		return fmt.Errorf("refusing non-finite command %+v", c)
	}
	if err := d.mux.SendCommand(FormatDrive(c.SteeringAngle, c.Speed)); err != nil {
		d.failures.Add(1)
		return err
	}
	d.sent.Add(1)
	d.mu.Lock()
	d.last = c
	d.mu.Unlock()
	return nil
}

// Last returns the most recently sent command.
func (d *DriveSink) Last() followgap.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Counts returns the number of sent and failed commands.
func (d *DriveSink) Counts() (sent, failed uint64) {
	return d.sent.Load(), d.failures.Load()
}

// Close stops the vehicle and closes the mux. The close error wins over
// the neutral-command error.
func (d *DriveSink) Close() error {
	nerr := d.neutral()
	if nerr != nil {
		logger.Logf("neutral command on close failed: %v", nerr)
	}
	if err := d.mux.Close(); err != nil {
		return err
	}
	return nerr
}

func (d *DriveSink) neutral() error {
	return d.Send(followgap.Command{})
}

// Reply kinds printed by the drive controller.
const (
	ReplyAck       = "ack"
	ReplyError     = "error"
	ReplyTelemetry = "telemetry"
	ReplyUnknown   = "unknown"
)

// ClassifyReply sorts one reply line: "OK ..." acks, "ERR ..." errors and
// "T key=value ..." telemetry.
func ClassifyReply(line string) string {
	switch {
	case line == "OK" || strings.HasPrefix(line, "OK "):
		return ReplyAck
	case strings.HasPrefix(line, "ERR"):
		return ReplyError
	case strings.HasPrefix(line, "T "):
		return ReplyTelemetry
	}
	return ReplyUnknown
}

// WatchReplies logs controller errors and unknown lines until ctx ends or
// the mux closes the subscription. It returns the number of error replies.
func WatchReplies(ctx context.Context, mux Mux) int {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	errs := 0
	for {
		select {
		case <-ctx.Done():
			return errs
		case line, ok := <-lines:
			if !ok {
				return errs
			}
			switch ClassifyReply(line) {
			case ReplyError:
				errs++
				logger.Logf("drive controller: %s", line)
			case ReplyUnknown:
				logger.Logf("unrecognised reply: %q", line)
			}
		}
	}
}
