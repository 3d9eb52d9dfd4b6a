package archive

import (
	"errors"
	"image/color"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sort.station/internal/camera"
	"github.com/banshee-data/sort.station/internal/fsutil"
	"github.com/banshee-data/sort.station/internal/testutil"
)

func testFrame(c color.Color) *camera.Frame {
	return camera.NewFrame(testutil.SolidImage(8, 8, c), time.Unix(1, 0))
}

func TestSnapshotPath(t *testing.T) {
	a := New(fsutil.NewMemoryFileSystem(), Options{})

	tests := []struct {
		label string
		seq   int
		want  string
	}{
		{"metal", 1, "snapshots/metal_001.jpg"},
		{"", 7, "snapshots/unknown_007.jpg"},
		{"glass", 1234, "snapshots/glass_1234.jpg"},
	}
	for _, tt := range tests {
		got, err := a.SnapshotPath(tt.label, tt.seq)
		require.NoError(t, err)
		assert.Equal(t, filepath.FromSlash(tt.want), got)
	}

	wide := New(fsutil.NewMemoryFileSystem(), Options{SnapshotDir: "/data/snaps", SequenceWidth: 5})
	got, err := wide.SnapshotPath("paper", 42)
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/data/snaps/paper_00042.jpg"), got)
}

func TestSnapshotPath_UniqueAndDeterministic(t *testing.T) {
	a := New(fsutil.NewMemoryFileSystem(), Options{})
	seen := map[string]int{}
	for seq := 1; seq <= 1500; seq++ {
		for _, label := range []string{"plastic", ""} {
			p1, err := a.SnapshotPath(label, seq)
			require.NoError(t, err)
			p2, _ := a.SnapshotPath(label, seq)
			assert.Equal(t, p1, p2)
			if prev, dup := seen[p1]; dup {
				t.Fatalf("%s produced by seq %d and %d", p1, prev, seq)
			}
			seen[p1] = seq
		}
	}
}

func TestMisclassifiedPath(t *testing.T) {
	a := New(fsutil.NewMemoryFileSystem(), Options{})

	got, err := a.MisclassifiedPath("glass", 7)
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("misclassified/glass/wrong_glass_7.jpg"), got)

	got, err = a.MisclassifiedPath("", 0)
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("misclassified/unknown/wrong_unknown_0.jpg"), got)

	for _, bad := range []string{"..", "a/b", `a\b`} {
		_, err := a.MisclassifiedPath(bad, 1)
		assert.Error(t, err, "label %q", bad)
	}
}

func TestSaveSnapshot(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	a := New(mfs, Options{})
	require.NoError(t, a.Init())

	path, err := a.SaveSnapshot(testFrame(color.White), "metal", 1)
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("snapshots/metal_001.jpg"), path)

	data, err := mfs.ReadFile(path)
	require.NoError(t, err)
	img := testutil.DecodeJPEG(t, data)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func TestSaveSnapshot_CreatesMissingDir(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	a := New(mfs, Options{SnapshotDir: "run/snaps"})

	_, err := a.SaveSnapshot(testFrame(color.White), "", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.FromSlash("run/snaps/unknown_003.jpg")}, mfs.Files())
}

func TestSaveMisclassified_RepeatOverwrites(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	a := New(mfs, Options{})

	p1, err := a.SaveMisclassified(testFrame(color.White), "glass", 7)
	require.NoError(t, err)
	first, _ := mfs.ReadFile(p1)

	p2, err := a.SaveMisclassified(testFrame(color.Black), "glass", 7)
	require.NoError(t, err)
	second, _ := mfs.ReadFile(p2)

	assert.Equal(t, filepath.FromSlash("misclassified/glass/wrong_glass_7.jpg"), p1)
	assert.Equal(t, p1, p2)
	assert.NotEqual(t, first, second)
	assert.Len(t, mfs.FilesUnder("misclassified"), 1)
}

func TestSave_FilesystemErrors(t *testing.T) {
	boom := errors.New("disk full")

	mfs := fsutil.NewMemoryFileSystem()
	mfs.CreateErr = boom
	a := New(mfs, Options{})
	_, err := a.SaveSnapshot(testFrame(color.White), "metal", 1)
	assert.ErrorIs(t, err, boom)

	mfs2 := fsutil.NewMemoryFileSystem()
	mfs2.MkdirErr = boom
	a2 := New(mfs2, Options{})
	_, err = a2.SaveMisclassified(testFrame(color.White), "metal", 1)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, a2.Init(), boom)

	_, err = a.SaveSnapshot(testFrame(color.White), "../escape", 1)
	assert.Error(t, err)

	// an empty frame cannot be encoded
	_, err = New(fsutil.NewMemoryFileSystem(), Options{}).SaveSnapshot(&camera.Frame{}, "metal", 1)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, fs.ErrNotExist))
}

func TestDirs(t *testing.T) {
	s, m := New(nil, Options{SnapshotDir: "a", MisclassifiedDir: "b"}).Dirs()
	assert.Equal(t, "a", s)
	assert.Equal(t, "b", m)
}
