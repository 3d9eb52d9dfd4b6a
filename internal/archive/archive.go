// Package archive persists captured frames: one snapshot per capture and, on
// operator request, a copy of the current view filed under the label the
// operator says was wrong.
package archive

import (
	"fmt"
	"path/filepath"

	"github.com/banshee-data/sort.station/internal/camera"
	"github.com/banshee-data/sort.station/internal/detection"
	"github.com/banshee-data/sort.station/internal/fsutil"
	"github.com/banshee-data/sort.station/internal/security"
)

// UnknownToken names files and folders when there is no label.
const UnknownToken = detection.UnknownLabel

const (
	DefaultSnapshotDir      = "snapshots"
	DefaultMisclassifiedDir = "misclassified"
	DefaultSequenceWidth    = 3
)

// Options configures an Archiver. Zero fields take the defaults above.
type Options struct {
	SnapshotDir      string
	MisclassifiedDir string
	SequenceWidth    int
	JPEGQuality      int
}

// Archiver writes JPEG files under two root directories.
type Archiver struct {
	fs   fsutil.FileSystem
	opts Options
}

// New returns an archiver writing through fs.
func New(fs fsutil.FileSystem, opts Options) *Archiver {
	if opts.SnapshotDir == "" {
		opts.SnapshotDir = DefaultSnapshotDir
	}
	if opts.MisclassifiedDir == "" {
		opts.MisclassifiedDir = DefaultMisclassifiedDir
	}
	if opts.SequenceWidth <= 0 {
		opts.SequenceWidth = DefaultSequenceWidth
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = camera.DefaultJPEGQuality
	}
	return &Archiver{fs: fs, opts: opts}
}

// Init creates both root directories.
func (a *Archiver) Init() error {
	for _, dir := range []string{a.opts.SnapshotDir, a.opts.MisclassifiedDir} {
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create archive directory %s: %w", dir, err)
		}
	}
	return nil
}

func token(label string) string {
	if label == "" {
		return UnknownToken
	}
	return label
}

// SnapshotPath returns <snapshot_dir>/<label|unknown>_<seq>.jpg with seq
// zero-padded to the configured width.
func (a *Archiver) SnapshotPath(label string, seq int) (string, error) {
	name := fmt.Sprintf("%s_%0*d.jpg", token(label), a.opts.SequenceWidth, seq)
	return security.SafeJoin(a.opts.SnapshotDir, name)
}

// MisclassifiedPath returns <misclassified_dir>/<label|unknown>/wrong_<label|unknown>_<seq>.jpg.
// The sequence is not padded.
func (a *Archiver) MisclassifiedPath(label string, seq int) (string, error) {
	t := token(label)
	return security.SafeJoin(a.opts.MisclassifiedDir, t, fmt.Sprintf("wrong_%s_%d.jpg", t, seq))
}

// SaveSnapshot writes frame as the snapshot for capture seq. An empty label
// means nothing was selected.
func (a *Archiver) SaveSnapshot(frame *camera.Frame, label string, seq int) (string, error) {
	path, err := a.SnapshotPath(label, seq)
	if err != nil {
		return "", fmt.Errorf("snapshot path: %w", err)
	}
	if err := a.fs.MkdirAll(a.opts.SnapshotDir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := a.write(path, frame); err != nil {
		return "", err
	}
	return path, nil
}

// SaveMisclassified files frame under label. Repeated calls with the same
// label and seq overwrite the same file.
func (a *Archiver) SaveMisclassified(frame *camera.Frame, label string, seq int) (string, error) {
	path, err := a.MisclassifiedPath(label, seq)
	if err != nil {
		return "", fmt.Errorf("misclassified path: %w", err)
	}
	if err := a.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create misclassified folder: %w", err)
	}
	if err := a.write(path, frame); err != nil {
		return "", err
	}
	return path, nil
}

func (a *Archiver) write(path string, frame *camera.Frame) error {
	f, err := a.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := frame.EncodeJPEG(f, a.opts.JPEGQuality); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// Dirs returns the snapshot and misclassified roots.
func (a *Archiver) Dirs() (snapshots, misclassified string) {
	return a.opts.SnapshotDir, a.opts.MisclassifiedDir
}

