// Package parse decodes laser sweeps from the wire and from fixture files.
//
// The UDP format ("GFS1") carries one complete sweep per datagram, little
// endian:
//
//	offset size field
//	0      4    magic "GFS1"
//	4      4    seq uint32
//	8      8    stamp, unix nanoseconds int64
//	16     4    angle_min float32 (radians)
//	20     4    angle_increment float32 (radians)
//	24     4    range_max float32 (metres, 0 if unknown)
//	28     2    count uint16
//	30     2    reserved, zero
//	32     4*n  ranges float32 (metres; NaN/Inf allowed)
package parse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/gapfollow/internal/followgap"
)

const (
	// Magic opens every sweep datagram.
	Magic = "GFS1"
	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 32
	// MaxSamples is the largest sweep one datagram can carry.
	MaxSamples = (65507 - HeaderSize) / 4
)

var (
	ErrShortPacket = errors.New("packet shorter than header")
	ErrBadMagic    = errors.New("bad magic")
	ErrCountLength = errors.New("sample count does not match packet length")
	ErrTooLarge    = errors.New("sweep too large for one datagram")
)

// DecodeSweep parses one datagram. Geometry is not validated here; that is
// the planner's job, so malformed sweeps are counted where they are handled.
func DecodeSweep(packet []byte) (followgap.ScanFrame, error) {
	if len(packet) < HeaderSize {
		return followgap.ScanFrame{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(packet))
	}
	if string(packet[0:4]) != Magic {
		return followgap.ScanFrame{}, fmt.Errorf("%w: %q", ErrBadMagic, packet[0:4])
	}

	le := binary.LittleEndian
	count := int(le.Uint16(packet[28:30]))
	if want := HeaderSize + 4*count; len(packet) != want {
		return followgap.ScanFrame{}, fmt.Errorf("%w: count %d needs %d bytes, got %d", ErrCountLength, count, want, len(packet))
	}

	f := followgap.ScanFrame{
		Seq:            le.Uint32(packet[4:8]),
		AngleMin:       float64(math.Float32frombits(le.Uint32(packet[16:20]))),
		AngleIncrement: float64(math.Float32frombits(le.Uint32(packet[20:24]))),
		RangeMax:       float64(math.Float32frombits(le.Uint32(packet[24:28]))),
		Ranges:         make([]float64, count),
	}
	if ns := int64(le.Uint64(packet[8:16])); ns != 0 {
		f.Stamp = time.Unix(0, ns).UTC()
	}
	body := packet[HeaderSize:]
	for i := range f.Ranges {
		f.Ranges[i] = float64(math.Float32frombits(le.Uint32(body[4*i:])))
	}
	return f, nil
}

// AppendSweep encodes f onto dst. Values are narrowed to float32.
func AppendSweep(dst []byte, f followgap.ScanFrame) ([]byte, error) {
	if len(f.Ranges) > MaxSamples {
		return dst, fmt.Errorf("%w: %d samples (max %d)", ErrTooLarge, len(f.Ranges), MaxSamples)
	}
	le := binary.LittleEndian
	dst = append(dst, Magic...)
	dst = le.AppendUint32(dst, f.Seq)
	var stamp int64
	if !f.Stamp.IsZero() {
		stamp = f.Stamp.UnixNano()
	}
	dst = le.AppendUint64(dst, uint64(stamp))
	dst = le.AppendUint32(dst, math.Float32bits(float32(f.AngleMin)))
	dst = le.AppendUint32(dst, math.Float32bits(float32(f.AngleIncrement)))
	dst = le.AppendUint32(dst, math.Float32bits(float32(f.RangeMax)))
	dst = le.AppendUint16(dst, uint16(len(f.Ranges)))
	dst = le.AppendUint16(dst, 0)
	for _, r := range f.Ranges {
		dst = le.AppendUint32(dst, math.Float32bits(float32(r)))
	}
	return dst, nil
}

// EncodeSweep returns f as a fresh datagram.
func EncodeSweep(f followgap.ScanFrame) ([]byte, error) {
	return AppendSweep(make([]byte, 0, HeaderSize+4*len(f.Ranges)), f)
}
