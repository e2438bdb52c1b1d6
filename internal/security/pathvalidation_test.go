package security

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"seq-000042.png", "seq-000042.png"},
		{"run 7/lap 2", "run_7_lap_2"},
		{"../../etc/passwd", "etc_passwd"},
		{"a\\b:c", "a_b_c"},
		{"...", "unknown"},
		{"", "unknown"},
		{"__x__", "x"},
		{"héllo wörld", "h_llo_w_rld"},
		{"8c1f0f3e-5a2b-4c55-9a77-0b0d1e2f3a4b", "8c1f0f3e-5a2b-4c55-9a77-0b0d1e2f3a4b"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFilename_Length(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("a", 500))
	if len(got) != maxFilenameLen {
		t.Errorf("len = %d, want %d", len(got), maxFilenameLen)
	}
}

func TestValidatePathWithinDirectory(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"direct child", filepath.Join(dir, "a.png"), false},
		{"nested", filepath.Join(dir, "x", "y", "a.png"), false},
		{"dir itself", dir, false},
		{"parent", filepath.Join(dir, ".."), true},
		{"traversal", filepath.Join(dir, "x", "..", "..", "etc"), true},
		{"sibling with shared prefix", dir + "-other/a.png", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrPathEscape) {
				t.Errorf("err = %v, want ErrPathEscape", err)
			}
		})
	}
}

func TestSafeJoin(t *testing.T) {
	got, err := SafeJoin("/var/snapshots", "../../etc/shadow")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join("/var/snapshots", "etc_shadow"); got != want {
		t.Errorf("SafeJoin = %q, want %q", got, want)
	}
	got, err = SafeJoin("snap", "..")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join("snap", "unknown") {
		t.Errorf("SafeJoin(..) = %q", got)
	}
}
