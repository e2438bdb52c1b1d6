package network

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/gapfollow/internal/followgap"
	"github.com/banshee-data/gapfollow/internal/scan/parse"
)

var errStopReplay = errors.New("stop replay")

// ReadJSONLFile replays a JSON-lines sweep fixture into sink. With Realtime
// set, sweeps are spaced by their stamps (scaled by Speed), or by Interval
// when a sweep has no stamp. Stats counts one packet per sweep.
func ReadJSONLFile(ctx context.Context, path string, sink FrameSink, opts ReplayOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open fixture %s: %w", path, err)
	}
	defer f.Close()

	stats := opts.Stats
	if stats == nil {
		stats = &PacketStats{}
	}
	speed := opts.Speed
	if speed <= 0 {
		speed = 1
	}

	start := time.Now()
	var prevStamp time.Time
	next := start

	err = parse.ReadJSONL(f, func(frame followgap.ScanFrame) error {
		if ctx.Err() != nil {
			return errStopReplay
		}
		if opts.Realtime {
			var step time.Duration
			switch {
			case !frame.Stamp.IsZero() && !prevStamp.IsZero():
				step = time.Duration(float64(frame.Stamp.Sub(prevStamp)) / speed)
			case frame.Stamp.IsZero():
				step = opts.Interval
			}
			prevStamp = frame.Stamp
			if step > 0 {
				next = next.Add(step)
			}
			if wait := time.Until(next); wait > 0 {
				select {
				case <-ctx.Done():
					return errStopReplay
				case <-time.After(wait):
				}
			}
		}
		stats.record(len(frame.Ranges) * 4)
		if !sink.Submit(frame) {
			stats.Rejected.Add(1)
		}
		return nil
	})
	if errors.Is(err, errStopReplay) {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("fixture %s: %w", path, err)
	}
	logger.Logf("fixture %s complete: %d sweeps in %v", path, stats.Packets.Load(), time.Since(start))
	return nil
}
