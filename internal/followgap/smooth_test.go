package followgap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSmooth_UniformInputUnchanged(t *testing.T) {
	for _, c := range []float64{0, 0.3, 1.2, 5.0, 12.345} {
		for _, n := range []int{1, 7, 10, 1080, 1083} {
			in := make([]float64, n)
			for i := range in {
				in[i] = c
			}
			out := Smooth(in, 10, 5)
			if len(out) != n {
				t.Fatalf("len=%d: got %d samples back", n, len(out))
			}
			for i, v := range out {
				if v != c {
					t.Fatalf("const=%v len=%d: out[%d]=%v", c, n, i, v)
				}
			}
		}
	}
}

func TestSmooth_BlockMeans(t *testing.T) {
	in := []float64{1, 2, 3, 4, 10, 20}
	got := Smooth(in, 2, 5)
	want := []float64{1.5, 1.5, 3.5, 3.5, 15, 15}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Smooth mismatch (-want +got):\n%s", diff)
	}
}

func TestSmooth_ShortTailKeepsLength(t *testing.T) {
	in := []float64{2, 2, 2, 4, 8}
	got := Smooth(in, 3, 5)
	// The tail block {4, 8} averages over its own two samples.
	want := []float64{2, 2, 2, 6, 6}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Smooth mismatch (-want +got):\n%s", diff)
	}
}

func TestSmooth_Rounding(t *testing.T) {
	got := Smooth([]float64{1, 1, 2}, 3, 5)
	if got[0] != 1.33333 {
		t.Errorf("expected 1.33333, got %v", got[0])
	}
	got = Smooth([]float64{1, 1, 2}, 3, 2)
	if got[0] != 1.33 {
		t.Errorf("expected 1.33, got %v", got[0])
	}
}

func TestSmooth_DoesNotMutateInput(t *testing.T) {
	in := []float64{1, 3}
	Smooth(in, 2, 5)
	if in[0] != 1 || in[1] != 3 {
		t.Errorf("input mutated: %v", in)
	}
}

func TestSmooth_WindowLargerThanInput(t *testing.T) {
	got := Smooth([]float64{1, 2, 3}, 10, 5)
	want := []float64{2, 2, 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Smooth mismatch (-want +got):\n%s", diff)
	}
}
