package controller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/gapfollow/internal/followgap"
)

// Stats counts cycle outcomes. All fields are updated atomically.
type Stats struct {
	received     atomic.Uint64
	dropped      atomic.Uint64
	processed    atomic.Uint64
	emitted      atomic.Uint64
	malformed    atomic.Uint64
	deadline     atomic.Uint64
	sendFailures atomic.Uint64
	canceled     atomic.Uint64
	failed       atomic.Uint64
	outOfWindow  atomic.Uint64
	noGaps       atomic.Uint64
	lastNanos    atomic.Int64
	maxNanos     atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats, shaped for /api/stats.
type StatsSnapshot struct {
	Received          uint64        `json:"received"`
	Dropped           uint64        `json:"dropped"`
	Processed         uint64        `json:"processed"`
	Emitted           uint64        `json:"emitted"`
	Malformed         uint64        `json:"malformed"`
	DeadlineExceeded  uint64        `json:"deadline_exceeded"`
	SendFailures      uint64        `json:"send_failures"`
	Canceled          uint64        `json:"canceled"`
	Failed            uint64        `json:"failed"`
	FallbackOutWindow uint64        `json:"fallback_out_of_window"`
	FallbackNoGaps    uint64        `json:"fallback_no_gaps"`
	LastCycle         time.Duration `json:"last_cycle_ns"`
	MaxCycle          time.Duration `json:"max_cycle_ns"`
}

func (s *Stats) record(status Status, fb followgap.Fallback, elapsed time.Duration) {
	s.processed.Add(1)
	switch status {
	case StatusEmitted:
		s.emitted.Add(1)
	case StatusMalformed:
		s.malformed.Add(1)
	case StatusDeadline:
		s.deadline.Add(1)
	case StatusSendFailed:
		s.sendFailures.Add(1)
	case StatusCanceled:
		s.canceled.Add(1)
	default:
		s.failed.Add(1)
	}
	if status == StatusEmitted || status == StatusSendFailed {
		switch fb {
		case followgap.FallbackOutOfWindow:
			s.outOfWindow.Add(1)
		case followgap.FallbackNoGaps:
			s.noGaps.Add(1)
		}
	}

	n := int64(elapsed)
	s.lastNanos.Store(n)
	for {
		cur := s.maxNanos.Load()
		if n <= cur || s.maxNanos.CompareAndSwap(cur, n) {
			break
		}
	}
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Received:          s.received.Load(),
		Dropped:           s.dropped.Load(),
		Processed:         s.processed.Load(),
		Emitted:           s.emitted.Load(),
		Malformed:         s.malformed.Load(),
		DeadlineExceeded:  s.deadline.Load(),
		SendFailures:      s.sendFailures.Load(),
		Canceled:          s.canceled.Load(),
		Failed:            s.failed.Load(),
		FallbackOutWindow: s.outOfWindow.Load(),
		FallbackNoGaps:    s.noGaps.Load(),
		LastCycle:         time.Duration(s.lastNanos.Load()),
		MaxCycle:          time.Duration(s.maxNanos.Load()),
	}
}

// Stats returns a snapshot of the driver counters.
func (d *Driver) Stats() StatsSnapshot {
	return d.stats.Snapshot()
}

// LogStats writes one summary line.
func (d *Driver) LogStats() {
	s := d.stats.Snapshot()
	logger.Logf("run %s: received=%d dropped=%d emitted=%d malformed=%d deadline=%d send_failed=%d fallback(window=%d none=%d) last=%s max=%s",
		d.cfg.RunID, s.Received, s.Dropped, s.Emitted, s.Malformed, s.DeadlineExceeded,
		s.SendFailures, s.FallbackOutWindow, s.FallbackNoGaps, s.LastCycle, s.MaxCycle)
}

func (d *Driver) logStatsEvery(ctx context.Context, interval time.Duration) {
	ticker := d.cfg.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			d.LogStats()
		}
	}
}
