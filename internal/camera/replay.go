package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
	"sync"

	"github.com/banshee-data/sort.station/internal/fsutil"
	"github.com/banshee-data/sort.station/internal/timeutil"
)

// ReplaySource cycles through still images in a directory. It stands in for
// the camera in dev mode and on machines without a capture device.
type ReplaySource struct {
	mu     sync.Mutex
	fs     fsutil.FileSystem
	clock  timeutil.Clock
	paths  []string
	next   int
	loop   bool
	closed bool
}

// NewReplaySource lists the .jpg, .jpeg and .png files in dir. When loop is
// false the source reports ErrAcquire once every image has been served,
// which is how dev mode exercises the transient-failure path.
func NewReplaySource(fs fsutil.FileSystem, clock timeutil.Clock, dir string, loop bool) (*ReplaySource, error) {
	names, err := fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list replay directory: %w", err)
	}

	var paths []string
	for _, name := range names {
		switch strings.ToLower(filepath.Ext(name)) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}

	return &ReplaySource{fs: fs, clock: clock, paths: paths, loop: loop}, nil
}

// Len reports how many images the source cycles through.
func (r *ReplaySource) Len() int {
	return len(r.paths)
}

// Acquire decodes the next image.
func (r *ReplaySource) Acquire(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.next >= len(r.paths) {
		if !r.loop {
			return nil, fmt.Errorf("%w: replay exhausted", ErrAcquire)
		}
		r.next = 0
	}

	path := r.paths[r.next]
	r.next++

	data, err := r.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrAcquire, path, err)
	}

	return NewFrame(img, r.clock.Now()), nil
}

// Close stops the source. Further Acquire calls return ErrClosed.
func (r *ReplaySource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
