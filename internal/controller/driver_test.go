package controller

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gapfollow/internal/followgap"
	"github.com/banshee-data/gapfollow/internal/monitoring"
	"github.com/banshee-data/gapfollow/internal/testutil"
	"github.com/banshee-data/gapfollow/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

type recordingSink struct {
	mu   sync.Mutex
	cmds []followgap.Command
	err  error
}

func (s *recordingSink) Send(c followgap.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.cmds = append(s.cmds, c)
	return nil
}

func (s *recordingSink) sent() []followgap.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]followgap.Command(nil), s.cmds...)
}

type cycleLog struct {
	mu     sync.Mutex
	cycles []Cycle
}

func (l *cycleLog) ObserveCycle(c Cycle) {
	l.mu.Lock()
	l.cycles = append(l.cycles, c)
	l.mu.Unlock()
}

func (l *cycleLog) all() []Cycle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Cycle(nil), l.cycles...)
}

func newDriver(t *testing.T, cfg Config, sink Sink, obs ...Observer) *Driver {
	t.Helper()
	if cfg.Params == (followgap.Params{}) {
		cfg.Params = followgap.DefaultParams()
	}
	d, err := NewDriver(cfg, sink, obs...)
	require.NoError(t, err)
	return d
}

func TestNewDriver_Defaults(t *testing.T) {
	d := newDriver(t, Config{}, nil)
	assert.NotEmpty(t, d.RunID())
	assert.Equal(t, 1, d.Config().QueueDepth)
	assert.Equal(t, DropOldest, d.Config().Overflow)
}

func TestNewDriver_RejectsBadConfig(t *testing.T) {
	p := followgap.DefaultParams()
	p.WindowSize = 0
	_, err := NewDriver(Config{Params: p}, nil)
	assert.ErrorIs(t, err, followgap.ErrInvalidParams)

	_, err = NewDriver(Config{Params: followgap.DefaultParams(), CycleDeadline: -time.Second}, nil)
	assert.Error(t, err)
}

func TestProcess_EmitsCommand(t *testing.T) {
	sink := &recordingSink{}
	log := &cycleLog{}
	d := newDriver(t, Config{RunID: "run-1"}, sink, log)

	dec, err := d.Process(context.Background(), testutil.UniformFrame(7, testutil.SweepSamples, 5))
	require.NoError(t, err)
	assert.Equal(t, 539, dec.TargetIndex)

	require.Len(t, sink.sent(), 1)
	assert.Equal(t, dec.Command, sink.sent()[0])

	cycles := log.all()
	require.Len(t, cycles, 1)
	assert.Equal(t, StatusEmitted, cycles[0].Status)
	assert.Equal(t, uint32(7), cycles[0].Seq)
	assert.Equal(t, "run-1", cycles[0].RunID)
	require.NotNil(t, cycles[0].Decision)
	assert.Equal(t, 539, cycles[0].Decision.TargetIndex)

	s := d.Stats()
	assert.Equal(t, uint64(1), s.Processed)
	assert.Equal(t, uint64(1), s.Emitted)
}

func TestProcess_MalformedSweepSendsNothing(t *testing.T) {
	sink := &recordingSink{}
	log := &cycleLog{}
	d := newDriver(t, Config{}, sink, log)

	f := testutil.UniformFrame(1, 100, 5)
	f.AngleIncrement = math.NaN()
	_, err := d.Process(context.Background(), f)
	assert.ErrorIs(t, err, followgap.ErrInvalidGeometry)

	assert.Empty(t, sink.sent())
	require.Len(t, log.all(), 1)
	assert.Equal(t, StatusMalformed, log.all()[0].Status)
	assert.Nil(t, log.all()[0].Decision)
	assert.Equal(t, uint64(1), d.Stats().Malformed)
}

func TestProcess_DeadlineBreachDropsCycle(t *testing.T) {
	for _, stalled := range []followgap.Stage{followgap.StageMasking, followgap.StageSynthesizing, followgap.StageIdle} {
		t.Run(stalled.String(), func(t *testing.T) {
			clock := timeutil.NewMockClock(time.Unix(0, 0))
			sink := &recordingSink{}
			d := newDriver(t, Config{Clock: clock, CycleDeadline: 50 * time.Millisecond}, sink)
			d.stageHook = func(s followgap.Stage) {
				if s == stalled {
					clock.Advance(60 * time.Millisecond)
				}
			}

			_, err := d.Process(context.Background(), testutil.UniformFrame(1, 200, 5))
			assert.ErrorIs(t, err, ErrDeadlineExceeded)
			assert.Empty(t, sink.sent(), "stale command must not be sent")
			assert.Equal(t, uint64(1), d.Stats().DeadlineExceeded)
		})
	}
}

func TestProcess_WithinDeadline(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sink := &recordingSink{}
	d := newDriver(t, Config{Clock: clock, CycleDeadline: 50 * time.Millisecond}, sink)
	d.stageHook = func(followgap.Stage) { clock.Advance(5 * time.Millisecond) }

	_, err := d.Process(context.Background(), testutil.UniformFrame(1, 200, 5))
	require.NoError(t, err)
	assert.Len(t, sink.sent(), 1)
	assert.Equal(t, 35*time.Millisecond, d.Stats().LastCycle)
}

func TestProcess_SendFailureCounted(t *testing.T) {
	sink := &recordingSink{err: errors.New("port closed")}
	log := &cycleLog{}
	d := newDriver(t, Config{}, sink, log)

	_, err := d.Process(context.Background(), testutil.UniformFrame(1, 200, 5))
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, uint64(1), d.Stats().SendFailures)
	require.Len(t, log.all(), 1)
	assert.Equal(t, StatusSendFailed, log.all()[0].Status)
	assert.NotNil(t, log.all()[0].Decision)
}

func TestProcess_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &recordingSink{}
	d := newDriver(t, Config{}, sink)

	_, err := d.Process(ctx, testutil.UniformFrame(1, 200, 5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.sent())
	assert.Equal(t, uint64(1), d.Stats().Canceled)
}

func TestProcess_FallbackCounted(t *testing.T) {
	d := newDriver(t, Config{}, nil)
	_, err := d.Process(context.Background(), testutil.UniformFrame(1, testutil.SweepSamples, 0.3))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), d.Stats().FallbackNoGaps)
}

func TestSubmit_DropOldest(t *testing.T) {
	d := newDriver(t, Config{QueueDepth: 2}, nil)
	for seq := uint32(1); seq <= 5; seq++ {
		assert.True(t, d.Submit(testutil.UniformFrame(seq, 10, 5)))
	}
	assert.Equal(t, uint64(3), d.Stats().Dropped)
	assert.Equal(t, uint64(5), d.Stats().Received)

	assert.Equal(t, uint32(4), (<-d.queue).Seq)
	assert.Equal(t, uint32(5), (<-d.queue).Seq)
}

func TestSubmit_DropNewest(t *testing.T) {
	d := newDriver(t, Config{QueueDepth: 1, Overflow: DropNewest}, nil)
	assert.True(t, d.Submit(testutil.UniformFrame(1, 10, 5)))
	assert.False(t, d.Submit(testutil.UniformFrame(2, 10, 5)))
	assert.Equal(t, uint64(1), d.Stats().Dropped)
	assert.Equal(t, uint32(1), (<-d.queue).Seq)
}

func TestSubmit_ConcurrentProducersNeverBlock(t *testing.T) {
	d := newDriver(t, Config{QueueDepth: 3}, nil)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				d.Submit(testutil.UniformFrame(uint32(p*100+i), 10, 5))
			}
		}(p)
	}
	wg.Wait()
	s := d.Stats()
	assert.Equal(t, uint64(400), s.Received)
	assert.Equal(t, uint64(397), s.Dropped)
	assert.Len(t, d.queue, 3)
}

func TestRun_ProcessesQueueInOrder(t *testing.T) {
	sink := &recordingSink{}
	done := make(chan uint32, 10)
	d := newDriver(t, Config{QueueDepth: 4}, sink, ObserverFunc(func(c Cycle) { done <- c.Seq }))

	for seq := uint32(1); seq <= 3; seq++ {
		require.True(t, d.Submit(testutil.UniformFrame(seq, 200, 5)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	for want := uint32(1); want <= 3; want++ {
		select {
		case got := <-done:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatal("cycle not processed")
		}
	}
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Len(t, sink.sent(), 3)
}

func TestRun_SurvivesMalformedSweeps(t *testing.T) {
	done := make(chan Status, 4)
	d := newDriver(t, Config{QueueDepth: 4}, nil, ObserverFunc(func(c Cycle) { done <- c.Status }))

	d.Submit(followgap.ScanFrame{Seq: 1, AngleIncrement: 0.1})
	d.Submit(testutil.UniformFrame(2, 200, 5))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	assert.Equal(t, StatusMalformed, <-done)
	assert.Equal(t, StatusEmitted, <-done)
}

func TestRun_LogsStatsOnTick(t *testing.T) {
	var mu sync.Mutex
	var lines int
	monitoring.SetLogger(func(string, ...interface{}) {
		mu.Lock()
		lines++
		mu.Unlock()
	})
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	d := newDriver(t, Config{Clock: clock, StatsInterval: time.Minute}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	// "run started" line plus at least one stats line once the ticker fires.
	require.Eventually(t, func() bool {
		clock.Advance(time.Minute)
		mu.Lock()
		defer mu.Unlock()
		return lines >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestParseOverflow(t *testing.T) {
	o, err := ParseOverflow("drop-newest")
	require.NoError(t, err)
	assert.Equal(t, DropNewest, o)
	assert.Equal(t, "drop-newest", o.String())

	o, err = ParseOverflow("")
	require.NoError(t, err)
	assert.Equal(t, DropOldest, o)

	_, err = ParseOverflow("block")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, StatusFailed, classify(errors.New("other")))
	assert.Equal(t, StatusMalformed, classify(followgap.ErrSweepLength))
	assert.Equal(t, StatusCanceled, classify(context.DeadlineExceeded))
}

func TestDrain_WaitsForInFlightCycle(t *testing.T) {
	release := make(chan struct{})
	var sends sync.WaitGroup
	sends.Add(1)
	sink := SinkFunc(func(followgap.Command) error {
		sends.Done()
		<-release
		return nil
	})
	d := newDriver(t, Config{}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	require.True(t, d.Submit(testutil.UniformFrame(1, 1080, 5.0)))
	sends.Wait()

	drained := make(chan error, 1)
	go func() { drained <- d.Drain(ctx) }()
	select {
	case err := <-drained:
		t.Fatalf("Drain returned %v while the cycle was still sending", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-drained:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after the cycle finished")
	}
	assert.Equal(t, uint64(1), d.Stats().Emitted)
}

func TestDrain_NoDeadlineStillWaits(t *testing.T) {
	sink := &recordingSink{}
	d := newDriver(t, Config{QueueDepth: 4}, sink)
	for i := uint32(1); i <= 3; i++ {
		require.True(t, d.Submit(testutil.UniformFrame(i, 1080, 5.0)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	dctx, dcancel := context.WithTimeout(ctx, time.Second)
	defer dcancel()
	require.NoError(t, d.Drain(dctx))
	assert.Len(t, sink.sent(), 3)
}

func TestDrain_CountsEvictedFrames(t *testing.T) {
	d := newDriver(t, Config{}, nil)
	require.True(t, d.Submit(testutil.UniformFrame(1, 1080, 5.0)))
	require.True(t, d.Submit(testutil.UniformFrame(2, 1080, 5.0)))
	assert.Equal(t, int64(1), d.pending.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Drain(ctx), context.Canceled)
}
