package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gapfollow/internal/controller"
	"github.com/banshee-data/gapfollow/internal/fsutil"
	"github.com/banshee-data/gapfollow/internal/testutil"
)

func TestSnapshotter_Save(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	s := NewSnapshotter("/snapshots", mfs, 1.2)
	d := planned(t)

	files, err := s.Save("run-1", "", d)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("/snapshots", "run-1-seq000007.json"),
		filepath.Join("/snapshots", "run-1-seq000007.png"),
	}, files)

	raw, err := mfs.ReadFile(files[0])
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Len(t, got["processed"], testutil.SweepSamples)

	png, err := mfs.ReadFile(files[1])
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestSnapshotter_LabelIsSanitized(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	files, err := NewSnapshotter("/snapshots", mfs, 1.2).Save("run-1", "../../etc/cron.d/x", planned(t))
	require.NoError(t, err)
	for _, f := range files {
		assert.Equal(t, "/snapshots", filepath.Dir(f))
	}
	assert.Contains(t, files[0], "etc_cron.d_x-seq")
}

func TestSnapshotter_OnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snaps")
	files, err := NewSnapshotter(dir, nil, 1.2).Save("r", "lap2", planned(t))
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.FileExists(t, files[0])
	assert.FileExists(t, files[1])
}

func TestWebServer_SnapshotRoute(t *testing.T) {
	latest := &Latest{}
	mfs := fsutil.NewMemoryFileSystem()
	ws, err := NewWebServer(WebServerConfig{
		Source:    fakeSource{},
		Latest:    latest,
		Snapshots: NewSnapshotter("/snap", mfs, 1.2),
	})
	require.NoError(t, err)
	h := ws.Handler()

	testutil.AssertStatusCode(t, testutil.Serve(h, http.MethodPost, "/api/decision/snapshot").Code, http.StatusNotFound)

	d := planned(t)
	latest.ObserveCycle(controller.Cycle{Status: controller.StatusEmitted, Decision: &d})
	testutil.AssertStatusCode(t, testutil.Serve(h, http.MethodGet, "/api/decision/snapshot").Code, http.StatusMethodNotAllowed)

	rec := testutil.Serve(h, http.MethodPost, "/api/decision/snapshot?label=bump")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "bump-seq000007.png")
	assert.Len(t, mfs.Files(), 2)
}

func TestWebServer_SnapshotRouteDisabled(t *testing.T) {
	rec := testutil.Serve(newServer(t, &Latest{}).Handler(), http.MethodPost, "/api/decision/snapshot")
	// Falls through to the status page handler, which only serves "/".
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}
