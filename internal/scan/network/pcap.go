package network

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ReplayOptions controls ReadPCAPFile.
type ReplayOptions struct {
	UDPPort  int  // only datagrams to this destination port; 0 accepts all
	Realtime bool // pace submissions by capture timestamps
	Speed    float64
	Stats    *PacketStats
	// Interval paces JSON-lines sweeps that carry no stamp. Zero means as
	// fast as the sink accepts them.
	Interval time.Duration
}

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

func openCapture(r io.Reader) (packetReader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if bytes.Equal(head, pcapngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// ReadPCAPFile replays sweep datagrams from a pcap or pcapng capture into
// sink. It returns nil at end of file and ctx.Err() if cancelled.
func ReadPCAPFile(ctx context.Context, path string, sink FrameSink, opts ReplayOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()

	rd, err := openCapture(f)
	if err != nil {
		return fmt.Errorf("failed to read PCAP file %s: %w", path, err)
	}
	stats := opts.Stats
	if stats == nil {
		stats = &PacketStats{}
	}
	speed := opts.Speed
	if speed <= 0 {
		speed = 1
	}

	src := gopacket.NewPacketSource(rd, rd.LinkType())
	src.NoCopy = true
	start := time.Now()
	var firstCapture time.Time

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkt, err := src.NextPacket()
		if err == io.EOF {
			logger.Logf("pcap %s complete: %d datagrams in %v", path, stats.Packets.Load(), time.Since(start))
			return nil
		}
		if err != nil {
			return fmt.Errorf("pcap %s after %d datagrams: %w", path, stats.Packets.Load(), err)
		}

		udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if opts.UDPPort > 0 && int(udp.DstPort) != opts.UDPPort {
			continue
		}

		if opts.Realtime {
			ts := pkt.Metadata().Timestamp
			if firstCapture.IsZero() {
				firstCapture = ts
			}
			due := start.Add(time.Duration(float64(ts.Sub(firstCapture)) / speed))
			if wait := time.Until(due); wait > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
			}
		}

		handle(udp.Payload, sink, stats)
	}
}
