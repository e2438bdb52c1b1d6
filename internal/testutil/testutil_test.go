package testutil

import (
	"net/http"
	"testing"
)

func TestUniformFrame(t *testing.T) {
	f := UniformFrame(3, SweepSamples, 5)
	if len(f.Ranges) != SweepSamples || f.Seq != 3 {
		t.Fatalf("frame = seq %d len %d", f.Seq, len(f.Ranges))
	}
	if a := f.Angle(SweepSamples / 2); a > 1e-9 || a < -1e-9 {
		t.Errorf("middle sample angle = %v, want 0", a)
	}
}

func TestWithObstacle_ClampsToSweep(t *testing.T) {
	f := WithObstacle(UniformFrame(1, 10, 5), 8, 20, 0.1)
	if f.Ranges[7] != 5 || f.Ranges[8] != 0.1 || f.Ranges[9] != 0.1 {
		t.Errorf("ranges = %v", f.Ranges)
	}
}

func TestServe(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	AssertStatusCode(t, Serve(h, http.MethodGet, "/").Code, http.StatusTeapot)
	AssertNoError(t, nil)
}
