// Package testutil provides shared test helpers and sweep fixtures.
package testutil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/banshee-data/gapfollow/internal/followgap"
)

// SweepSamples is the sample count of the reference 270 degree scanner.
const SweepSamples = 1080

// UniformFrame returns a full-circle sweep of n samples all at distance r.
// Sample n/2 faces straight ahead.
func UniformFrame(seq uint32, n int, r float64) followgap.ScanFrame {
	ranges := make([]float64, n)
	for i := range ranges {
		ranges[i] = r
	}
	return followgap.ScanFrame{
		Seq:            seq,
		Stamp:          time.Unix(1700000000, int64(seq)*int64(25*time.Millisecond)).UTC(),
		AngleMin:       -math.Pi,
		AngleIncrement: 2 * math.Pi / float64(n),
		RangeMax:       30,
		Ranges:         ranges,
	}
}

// WithObstacle sets ranges [from, to] of f to r and returns f.
func WithObstacle(f followgap.ScanFrame, from, to int, r float64) followgap.ScanFrame {
	for i := from; i <= to && i < len(f.Ranges); i++ {
		f.Ranges[i] = r
	}
	return f
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Serve runs h against a request and returns the recorder.
func Serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}
