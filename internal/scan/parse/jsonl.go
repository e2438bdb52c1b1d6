package parse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/banshee-data/gapfollow/internal/followgap"
)

// Range is a JSON-friendly distance. null and "nan" decode as NaN, and
// "inf"/"-inf" as the infinities, since plain JSON numbers cannot hold them.
type Range float64

func (r Range) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsNaN(f):
		return []byte("null"), nil
	case math.IsInf(f, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-inf"`), nil
	}
	return json.Marshal(f)
}

func (r *Range) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "null", `"nan"`:
		*r = Range(math.NaN())
		return nil
	case `"inf"`:
		*r = Range(math.Inf(1))
		return nil
	case `"-inf"`:
		*r = Range(math.Inf(-1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("range: %w", err)
	}
	*r = Range(f)
	return nil
}

// Record is one line of a sweep fixture file.
type Record struct {
	Seq            uint32  `json:"seq"`
	StampNanos     int64   `json:"stamp_ns,omitempty"`
	AngleMin       float64 `json:"angle_min"`
	AngleIncrement float64 `json:"angle_increment"`
	RangeMax       float64 `json:"range_max,omitempty"`
	Ranges         []Range `json:"ranges"`
}

// Frame converts the record to a ScanFrame.
func (rec Record) Frame() followgap.ScanFrame {
	f := followgap.ScanFrame{
		Seq:            rec.Seq,
		AngleMin:       rec.AngleMin,
		AngleIncrement: rec.AngleIncrement,
		RangeMax:       rec.RangeMax,
		Ranges:         make([]float64, len(rec.Ranges)),
	}
	if rec.StampNanos != 0 {
		f.Stamp = time.Unix(0, rec.StampNanos).UTC()
	}
	for i, r := range rec.Ranges {
		f.Ranges[i] = float64(r)
	}
	return f
}

// RecordFromFrame is the inverse of Record.Frame.
func RecordFromFrame(f followgap.ScanFrame) Record {
	rec := Record{
		Seq:            f.Seq,
		AngleMin:       f.AngleMin,
		AngleIncrement: f.AngleIncrement,
		RangeMax:       f.RangeMax,
		Ranges:         make([]Range, len(f.Ranges)),
	}
	if !f.Stamp.IsZero() {
		rec.StampNanos = f.Stamp.UnixNano()
	}
	for i, r := range f.Ranges {
		rec.Ranges[i] = Range(r)
	}
	return rec
}

// maxLineBytes bounds one fixture line; a 1080-sample sweep is ~10KB.
const maxLineBytes = 4 << 20

// ReadJSONL calls fn for every sweep in r. Blank lines are skipped. It stops
// at the first decode error or the first error returned by fn.
func ReadJSONL(r io.Reader, fn func(followgap.ScanFrame) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(rec.Frame()); err != nil {
			return err
		}
	}
	return sc.Err()
}

// JSONLWriter writes sweeps one per line.
type JSONLWriter struct {
	enc *json.Encoder
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{enc: json.NewEncoder(w)}
}

func (w *JSONLWriter) Write(f followgap.ScanFrame) error {
	return w.enc.Encode(RecordFromFrame(f))
}
