// Package controller runs the follow-gap planner against a stream of sweeps.
//
// A Driver accepts frames from any number of producers into a bounded queue,
// drains it on a single goroutine, enforces a per-cycle deadline, forwards
// each command to a Sink and reports every cycle, successful or not, to its
// Observers.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/banshee-data/gapfollow/internal/followgap"
	"github.com/banshee-data/gapfollow/internal/monitoring"
	"github.com/banshee-data/gapfollow/internal/timeutil"
)

// ErrDeadlineExceeded is returned when a cycle overruns its deadline. The
// cycle is dropped without a command.
var ErrDeadlineExceeded = errors.New("cycle deadline exceeded")

var logger = monitoring.Component("controller")

// Overflow selects which frame is lost when the queue is full.
type Overflow int

const (
	DropOldest Overflow = iota // evict the queued frame, keep the new one
	DropNewest                 // keep the queued frame, discard the new one
)

// ParseOverflow maps "drop-oldest"/"drop-newest" to an Overflow.
func ParseOverflow(s string) (Overflow, error) {
	switch s {
	case "", "drop-oldest":
		return DropOldest, nil
	case "drop-newest":
		return DropNewest, nil
	}
	return 0, fmt.Errorf("unknown overflow policy %q", s)
}

func (o Overflow) String() string {
	if o == DropNewest {
		return "drop-newest"
	}
	return "drop-oldest"
}

// Sink receives the command produced by a successful cycle.
type Sink interface {
	Send(followgap.Command) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(followgap.Command) error

func (f SinkFunc) Send(c followgap.Command) error { return f(c) }

// Config holds the runtime knobs of a Driver.
type Config struct {
	Params        followgap.Params
	QueueDepth    int           // default 1
	Overflow      Overflow      // default DropOldest
	CycleDeadline time.Duration // 0 disables the deadline
	StatsInterval time.Duration // 0 disables periodic stats logging
	RunID         string        // generated when empty
	Clock         timeutil.Clock
	Tracer        oteltrace.Tracer
}

// Driver is the runtime cycle driver. Create it with NewDriver.
type Driver struct {
	cfg       Config
	sink      Sink
	observers []Observer
	queue     chan followgap.ScanFrame
	submitMu  sync.Mutex
	stats     Stats

	// pending counts frames accepted into the queue whose cycle has not
	// finished yet.
	pending atomic.Int64

	// stageHook runs inside the deadline hook; tests use it to stall a stage.
	stageHook func(followgap.Stage)
}

// NewDriver validates cfg and builds a Driver. A nil sink discards commands.
func NewDriver(cfg Config, sink Sink, observers ...Observer) (*Driver, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1
	}
	if cfg.CycleDeadline < 0 {
		return nil, fmt.Errorf("cycle deadline must be non-negative, got %s", cfg.CycleDeadline)
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if sink == nil {
		sink = SinkFunc(func(followgap.Command) error { return nil })
	}
	return &Driver{
		cfg:       cfg,
		sink:      sink,
		observers: observers,
		queue:     make(chan followgap.ScanFrame, cfg.QueueDepth),
	}, nil
}

// RunID identifies this driver's run in logs and recorded cycles.
func (d *Driver) RunID() string { return d.cfg.RunID }

// Params returns the parameters every cycle uses.
func (d *Driver) Params() followgap.Params { return d.cfg.Params }

// Config returns the driver configuration after defaults were applied.
func (d *Driver) Config() Config { return d.cfg }

// Submit enqueues a frame without blocking. It reports whether the new frame
// was accepted; under DropOldest it always is, at the cost of the oldest
// queued frame.
func (d *Driver) Submit(f followgap.ScanFrame) bool {
	d.stats.received.Add(1)

	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	d.pending.Add(1)
	select {
	case d.queue <- f:
		return true
	default:
	}

	if d.cfg.Overflow == DropNewest {
		d.pending.Add(-1)
		d.stats.dropped.Add(1)
		return false
	}

	// Only Run receives concurrently, so after evicting one frame there is
	// room for ours.
	select {
	case <-d.queue:
		d.pending.Add(-1)
		d.stats.dropped.Add(1)
	default:
	}
	select {
	case d.queue <- f:
		return true
	default:
		d.pending.Add(-1)
		d.stats.dropped.Add(1)
		return false
	}
}

// Drain blocks until every accepted frame has been processed or ctx is done.
// Run must be running for the queue to empty.
func (d *Driver) Drain(ctx context.Context) error {
	t := time.NewTicker(time.Millisecond)
	defer t.Stop()
	for d.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// Run drains the queue until ctx is cancelled. Per-cycle failures are
// logged and counted; they never stop the loop.
func (d *Driver) Run(ctx context.Context) error {
	if d.cfg.StatsInterval > 0 {
		go d.logStatsEvery(ctx, d.cfg.StatsInterval)
	}
	logger.Logf("run %s started (queue=%d overflow=%s deadline=%s)",
		d.cfg.RunID, d.cfg.QueueDepth, d.cfg.Overflow, d.cfg.CycleDeadline)

	for {
		select {
		case <-ctx.Done():
			logger.Logf("run %s stopping: %v", d.cfg.RunID, ctx.Err())
			return ctx.Err()
		case f := <-d.queue:
			if _, err := d.Process(ctx, f); err != nil && ctx.Err() == nil {
				logger.Logf("seq %d: %v", f.Seq, err)
			}
			d.pending.Add(-1)
		}
	}
}

// Process runs one cycle synchronously and sends its command. It is what
// Run calls for each queued frame, exposed for replay tools and tests.
func (d *Driver) Process(ctx context.Context, frame followgap.ScanFrame) (followgap.Decision, error) {
	start := d.cfg.Clock.Now()

	cycleCtx, span := d.cfg.Tracer.Start(ctx, "cycle", oteltrace.WithAttributes(
		attribute.String("gapfollow.run_id", d.cfg.RunID),
		attribute.Int64("gapfollow.seq", int64(frame.Seq)),
		attribute.Int("gapfollow.samples", len(frame.Ranges)),
	))
	defer span.End()

	var stageSpan oteltrace.Span
	endStage := func() {
		if stageSpan != nil {
			stageSpan.End()
			stageSpan = nil
		}
	}
	defer endStage()

	checkDeadline := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.cfg.CycleDeadline > 0 && d.cfg.Clock.Since(start) > d.cfg.CycleDeadline {
			return ErrDeadlineExceeded
		}
		return nil
	}

	hook := func(s followgap.Stage) error {
		endStage()
		if d.stageHook != nil {
			d.stageHook(s)
		}
		if err := checkDeadline(); err != nil {
			return err
		}
		if s != followgap.StageIdle {
			_, stageSpan = d.cfg.Tracer.Start(cycleCtx, s.String())
		}
		return nil
	}

	decision, err := followgap.PlanWithHook(frame, d.cfg.Params, hook)
	if err == nil {
		// The last stage may have finished just inside the budget; the
		// command must still be fresh when it reaches the actuator.
		err = checkDeadline()
	}
	if err == nil {
		if sendErr := d.sink.Send(decision.Command); sendErr != nil {
			err = fmt.Errorf("%w: %v", ErrSendFailed, sendErr)
		}
	}

	elapsed := d.cfg.Clock.Since(start)
	status := classify(err)
	d.stats.record(status, decision.Fallback, elapsed)

	span.SetAttributes(attribute.String("gapfollow.status", string(status)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.Int("gapfollow.target_index", decision.TargetIndex),
			attribute.Float64("gapfollow.steering_angle", decision.Command.SteeringAngle),
			attribute.Float64("gapfollow.speed", decision.Command.Speed),
			attribute.String("gapfollow.fallback", decision.Fallback.String()),
		)
	}

	c := Cycle{
		RunID:    d.cfg.RunID,
		Seq:      frame.Seq,
		Stamp:    frame.Stamp,
		Status:   status,
		Err:      err,
		Duration: elapsed,
	}
	if status == StatusEmitted || status == StatusSendFailed {
		c.Decision = &decision
	}
	for _, o := range d.observers {
		o.ObserveCycle(c)
	}

	if err != nil {
		return followgap.Decision{}, err
	}
	return decision, nil
}
