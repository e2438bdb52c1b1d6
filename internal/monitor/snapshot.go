package monitor

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/banshee-data/gapfollow/internal/followgap"
	"github.com/banshee-data/gapfollow/internal/fsutil"
	"github.com/banshee-data/gapfollow/internal/security"
)

// Snapshotter saves a decision to disk as JSON (with range arrays) and a
// PNG plot, for offline review of a surprising command.
type Snapshotter struct {
	dir           string
	fs            fsutil.FileSystem
	safeThreshold float64
}

// NewSnapshotter writes into dir through fsys (fsutil.OSFileSystem{} when nil).
func NewSnapshotter(dir string, fsys fsutil.FileSystem, safeThreshold float64) *Snapshotter {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Snapshotter{dir: dir, fs: fsys, safeThreshold: safeThreshold}
}

// Save writes <label>-seq<seq>.json and .png and returns their paths. The
// label is sanitized; an empty label uses the run id.
func (s *Snapshotter) Save(runID, label string, d followgap.Decision) ([]string, error) {
	if label == "" {
		label = runID
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot dir: %w", err)
	}
	base := fmt.Sprintf("%s-seq%06d", security.SanitizeFilename(label), d.Seq)

	jsonPath, err := s.write(base+".json", func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			RunID string `json:"run_id"`
			followgap.Decision
		}{runID, d})
	})
	if err != nil {
		return nil, err
	}
	pngPath, err := s.write(base+".png", func(w io.Writer) error {
		return WriteDecisionPNG(w, d, s.safeThreshold)
	})
	if err != nil {
		return []string{jsonPath}, err
	}
	logger.Logf("saved snapshot of seq %d to %s", d.Seq, jsonPath)
	return []string{jsonPath, pngPath}, nil
}

func (s *Snapshotter) write(name string, fill func(io.Writer) error) (string, error) {
	path, err := security.SafeJoin(s.dir, name)
	if err != nil {
		return "", err
	}
	f, err := s.fs.Create(path)
	if err != nil {
		return "", err
	}
	if err := fill(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}
