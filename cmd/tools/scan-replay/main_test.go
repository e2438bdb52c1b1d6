package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gapfollow/internal/controller"
	"github.com/banshee-data/gapfollow/internal/db"
	"github.com/banshee-data/gapfollow/internal/followgap"
	"github.com/banshee-data/gapfollow/internal/monitoring"
	"github.com/banshee-data/gapfollow/internal/scan/parse"
	"github.com/banshee-data/gapfollow/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lap.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parse.NewJSONLWriter(f)
	require.NoError(t, w.Write(testutil.UniformFrame(1, testutil.SweepSamples, 5)))
	require.NoError(t, w.Write(testutil.WithObstacle(testutil.UniformFrame(2, testutil.SweepSamples, 5), 400, 500, 0.5)))
	require.NoError(t, w.Write(followgap.ScanFrame{Seq: 3, AngleMin: -1, AngleIncrement: 0.01}))
	require.NoError(t, f.Close())
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path, format, want string
		wantErr            bool
	}{
		{"a.pcap", "auto", "pcap", false},
		{"a.PCAPNG", "", "pcap", false},
		{"a.jsonl", "auto", "jsonl", false},
		{"a.bin", "jsonl", "jsonl", false},
		{"a.bin", "auto", "", true},
		{"a.pcap", "csv", "", true},
	}
	for _, tt := range tests {
		got, err := detectFormat(tt.path, tt.format)
		if tt.wantErr {
			assert.Error(t, err, tt.path)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestReplay_Table(t *testing.T) {
	out, err := execute(t, writeFixture(t))
	require.NoError(t, err)
	assert.Contains(t, out, "SEQ")
	assert.Contains(t, out, "emitted")
	assert.Contains(t, out, "malformed")
	assert.Contains(t, out, "3 sweeps")
	assert.Contains(t, out, "2 emitted, 1 malformed")
}

func TestReplay_JSON(t *testing.T) {
	out, err := execute(t, "--json", writeFixture(t))
	require.NoError(t, err)

	var lines []cycleLine
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		if !strings.HasPrefix(sc.Text(), "{") {
			continue
		}
		var l cycleLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, controller.StatusEmitted, lines[0].Status)
	assert.InDelta(t, 3.0, lines[0].Speed, 1e-9)
	assert.Equal(t, controller.StatusMalformed, lines[2].Status)
	assert.NotEmpty(t, lines[2].Error)
}

func TestReplay_PlotsExportAndRecord(t *testing.T) {
	dir := t.TempDir()
	plots := filepath.Join(dir, "plots")
	export := filepath.Join(dir, "copy.jsonl")
	dbPath := filepath.Join(dir, "cycles.db")

	_, err := execute(t, "-q", "--plot", plots, "--export-jsonl", export, "--db", dbPath, writeFixture(t))
	require.NoError(t, err)

	pngs, err := filepath.Glob(filepath.Join(plots, "*.png"))
	require.NoError(t, err)
	assert.Len(t, pngs, 2)

	f, err := os.Open(export)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	require.NoError(t, parse.ReadJSONL(f, func(followgap.ScanFrame) error { n++; return nil }))
	assert.Equal(t, 3, n)

	store, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer store.Close()
	var runID string
	require.NoError(t, store.QueryRow(`SELECT run_id FROM runs`).Scan(&runID))
	counts, err := store.StatusCounts(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["emitted"])
	assert.Equal(t, 1, counts["malformed"])
	run, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.NotNil(t, run.EndedAt)
}

func TestReplay_Errors(t *testing.T) {
	_, err := execute(t)
	assert.Error(t, err, "file argument is required")

	_, err = execute(t, filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)

	_, err = execute(t, "--format", "xml", writeFixture(t))
	assert.Error(t, err)
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "gapfollow")
}
