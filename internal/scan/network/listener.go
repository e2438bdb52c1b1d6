// Package network receives sweeps from the scanner over UDP and replays
// recorded sweeps from pcap captures.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/gapfollow/internal/followgap"
	"github.com/banshee-data/gapfollow/internal/monitoring"
	"github.com/banshee-data/gapfollow/internal/scan/parse"
)

var logger = monitoring.Component("udp")

// FrameSink accepts decoded sweeps. controller.Driver implements it; Submit
// must not block.
type FrameSink interface {
	Submit(followgap.ScanFrame) bool
}

// PacketStats counts datagrams seen by a listener or replay.
type PacketStats struct {
	Packets      atomic.Uint64
	Bytes        atomic.Uint64
	DecodeErrors atomic.Uint64
	Rejected     atomic.Uint64 // sink refused the frame (queue full, drop-newest)
}

func (s *PacketStats) record(n int) {
	s.Packets.Add(1)
	s.Bytes.Add(uint64(n))
}

// LogStats writes one summary line tagged with source.
func (s *PacketStats) LogStats(source string) {
	logger.Logf("%s: packets=%d bytes=%d decode_errors=%d rejected=%d",
		source, s.Packets.Load(), s.Bytes.Load(), s.DecodeErrors.Load(), s.Rejected.Load())
}

// handle decodes one payload and forwards it. Decode failures are counted
// and logged, never fatal.
func handle(payload []byte, sink FrameSink, stats *PacketStats) {
	stats.record(len(payload))
	f, err := parse.DecodeSweep(payload)
	if err != nil {
		stats.DecodeErrors.Add(1)
		logger.Logf("dropping datagram: %v", err)
		return
	}
	if !sink.Submit(f) {
		stats.Rejected.Add(1)
	}
}

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	Address     string // host:port, e.g. ":2368"
	RcvBuf      int    // socket receive buffer in bytes; 0 leaves the OS default
	LogInterval time.Duration
	Sink        FrameSink
	Stats       *PacketStats
}

// UDPListener receives one sweep per datagram and submits it to a sink.
type UDPListener struct {
	cfg   UDPListenerConfig
	stats *PacketStats
	conn  atomic.Pointer[net.UDPConn]
	ready chan struct{}
}

// NewUDPListener creates a listener. It does not open the socket until Start.
func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	stats := cfg.Stats
	if stats == nil {
		stats = &PacketStats{}
	}
	if cfg.LogInterval == 0 {
		cfg.LogInterval = time.Minute
	}
	return &UDPListener{cfg: cfg, stats: stats, ready: make(chan struct{})}
}

// Stats returns the listener counters.
func (l *UDPListener) Stats() *PacketStats { return l.stats }

// Ready is closed once the socket is bound.
func (l *UDPListener) Ready() <-chan struct{} { return l.ready }

// LocalAddr returns the bound address, or nil before Start.
func (l *UDPListener) LocalAddr() net.Addr {
	if c := l.conn.Load(); c != nil {
		return c.LocalAddr()
	}
	return nil
}

// Start listens until ctx is cancelled and returns ctx.Err().
func (l *UDPListener) Start(ctx context.Context) error {
	if l.cfg.Sink == nil {
		return errors.New("udp listener has no sink")
	}
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()
	l.conn.Store(conn)

	if l.cfg.RcvBuf > 0 {
		if err := conn.SetReadBuffer(l.cfg.RcvBuf); err != nil {
			logger.Logf("Warning: failed to set receive buffer to %d: %v", l.cfg.RcvBuf, err)
		}
	}
	logger.Logf("listening on %s", conn.LocalAddr())
	close(l.ready)

	go l.logStats(ctx)

	buf := make([]byte, 65536)
	for {
		if ctx.Err() != nil {
			logger.Logf("listener stopping: %v", ctx.Err())
			return ctx.Err()
		}
		// Short deadline so cancellation is noticed between datagrams.
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Logf("read error from %v: %v", from, err)
			continue
		}
		handle(buf[:n], l.cfg.Sink, l.stats)
	}
}

func (l *UDPListener) logStats(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.LogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats("udp " + l.cfg.Address)
		}
	}
}
