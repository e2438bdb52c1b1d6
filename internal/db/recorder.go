package db

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/gapfollow/internal/controller"
	"github.com/banshee-data/gapfollow/internal/timeutil"
)

// RecorderConfig tunes the asynchronous cycle writer.
type RecorderConfig struct {
	Buffer        int           // queued records before new ones are dropped; default 1024
	BatchSize     int           // records per transaction; default 128
	FlushInterval time.Duration // default 1s
	Clock         timeutil.Clock
}

// Recorder writes cycles to the database off the control goroutine.
// ObserveCycle never blocks: when the buffer is full the record is dropped
// and counted.
type Recorder struct {
	db      *DB
	cfg     RecorderConfig
	ch      chan CycleRecord
	dropped atomic.Uint64
	written atomic.Uint64
	done    chan struct{}
}

// NewRecorder creates a Recorder. Call Run to start writing.
func NewRecorder(db *DB, cfg RecorderConfig) *Recorder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Recorder{
		db:   db,
		cfg:  cfg,
		ch:   make(chan CycleRecord, cfg.Buffer),
		done: make(chan struct{}),
	}
}

// ObserveCycle implements controller.Observer.
func (r *Recorder) ObserveCycle(c controller.Cycle) {
	select {
	case r.ch <- NewCycleRecord(c, r.cfg.Clock.Now()):
	default:
		r.dropped.Add(1)
	}
}

// Counts returns written and dropped record totals.
func (r *Recorder) Counts() (written, dropped uint64) {
	return r.written.Load(), r.dropped.Load()
}

// Done is closed when Run has flushed and returned.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// Run batches records into transactions until ctx is cancelled, then drains
// what is already queued and returns.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	ticker := r.cfg.Clock.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]CycleRecord, 0, r.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Writes outlive ctx so the final drain still lands.
		if err := r.db.RecordCycles(context.Background(), batch); err != nil {
			logger.Logf("recorder: dropping %d cycles: %v", len(batch), err)
			r.dropped.Add(uint64(len(batch)))
		} else {
			r.written.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.ch:
					batch = append(batch, rec)
					if len(batch) >= r.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					w, d := r.Counts()
					logger.Logf("recorder stopped: written=%d dropped=%d", w, d)
					return
				}
			}
		case rec := <-r.ch:
			batch = append(batch, rec)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case <-ticker.C():
			flush()
		}
	}
}
