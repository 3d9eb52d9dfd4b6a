package db

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/sort.station/internal/detection"
	"github.com/banshee-data/sort.station/internal/station"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_Migrates(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("version = %d dirty = %v, want 2 false", version, dirty)
	}

	// Reopening an up-to-date database is a no-op.
	if err := db.MigrateUp(); err != nil {
		t.Errorf("second MigrateUp failed: %v", err)
	}
}

func TestNewDB_Memory(t *testing.T) {
	db, err := NewDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	defer db.Close()

	n, err := db.CountCaptures(context.Background())
	if err != nil {
		t.Fatalf("CountCaptures failed: %v", err)
	}
	if n != 0 {
		t.Errorf("CountCaptures = %d, want 0", n)
	}
}

func TestMigrateDown(t *testing.T) {
	db := newTestDB(t)

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	if _, err := db.RecentFlags(context.Background(), 1); err == nil {
		t.Error("expected querying a dropped table to fail")
	}
}

func TestRecordCapture_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ev := station.CaptureEvent{
		Seq:          1,
		Label:        "metal",
		Confidence:   0.9,
		Selected:     true,
		Command:      "M",
		Delivered:    true,
		SnapshotPath: "snapshots/metal_001.jpg",
		Detections: detection.Set{
			{Label: "metal", Confidence: 0.9, Box: detection.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}},
			{Label: "cardboard", Confidence: 0.5},
		},
		At: at,
	}
	if err := db.RecordCapture(ctx, ev); err != nil {
		t.Fatalf("RecordCapture failed: %v", err)
	}
	none := station.CaptureEvent{Seq: 2, Label: "None", Command: "R", At: at.Add(time.Second)}
	if err := db.RecordCapture(ctx, none); err != nil {
		t.Fatalf("RecordCapture failed: %v", err)
	}

	recs, err := db.RecentCaptures(ctx, 10)
	if err != nil {
		t.Fatalf("RecentCaptures failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}

	// Newest first.
	if recs[0].Seq != 2 || recs[0].Label != "None" || recs[0].Selected {
		t.Errorf("recs[0] = %+v", recs[0])
	}
	if len(recs[0].Detections) != 0 {
		t.Errorf("recs[0].Detections = %v, want empty", recs[0].Detections)
	}

	got := recs[1]
	if got.CaptureID == "" || got.CaptureID == recs[0].CaptureID {
		t.Errorf("capture IDs not unique: %q %q", got.CaptureID, recs[0].CaptureID)
	}
	if got.Label != "metal" || got.Command != "M" || !got.Delivered || !got.Selected {
		t.Errorf("got %+v", got)
	}
	if got.SnapshotPath != ev.SnapshotPath {
		t.Errorf("SnapshotPath = %q, want %q", got.SnapshotPath, ev.SnapshotPath)
	}
	if !got.CapturedAt.Equal(at) {
		t.Errorf("CapturedAt = %v, want %v", got.CapturedAt, at)
	}
	if len(got.Detections) != 2 || got.Detections[0] != ev.Detections[0] {
		t.Errorf("Detections = %v, want %v", got.Detections, ev.Detections)
	}
}

func TestRecentCaptures_Limit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	for i := 1; i <= 5; i++ {
		ev := station.CaptureEvent{Seq: i, Label: "glass", Selected: true, Command: "G", At: base.Add(time.Duration(i) * time.Second)}
		if err := db.RecordCapture(ctx, ev); err != nil {
			t.Fatalf("RecordCapture %d failed: %v", i, err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"explicit", 3, 3},
		{"more than stored", 10, 5},
		{"default", 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := db.RecentCaptures(ctx, tt.limit)
			if err != nil {
				t.Fatalf("RecentCaptures failed: %v", err)
			}
			if len(recs) != tt.want {
				t.Errorf("got %d records, want %d", len(recs), tt.want)
			}
			if len(recs) > 0 && recs[0].Seq != 5 {
				t.Errorf("newest seq = %d, want 5", recs[0].Seq)
			}
		})
	}
}

func TestRecordFlag(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 0)

	for _, ev := range []station.FlagEvent{
		{Seq: 3, Label: "glass", Path: "misclassified/glass/wrong_glass_3.jpg", At: at},
		{Seq: 3, Label: "glass", Path: "misclassified/glass/wrong_glass_3.jpg", At: at.Add(time.Second)},
	} {
		if err := db.RecordFlag(ctx, ev); err != nil {
			t.Fatalf("RecordFlag failed: %v", err)
		}
	}

	recs, err := db.RecentFlags(ctx, 0)
	if err != nil {
		t.Fatalf("RecentFlags failed: %v", err)
	}
	// The file is overwritten on disk but both flags stay in the history.
	if len(recs) != 2 {
		t.Fatalf("got %d flags, want 2", len(recs))
	}
	if recs[0].FlagID == recs[1].FlagID {
		t.Error("flag IDs should differ")
	}
	if recs[0].Path != "misclassified/glass/wrong_glass_3.jpg" {
		t.Errorf("Path = %q", recs[0].Path)
	}
}

func TestLabelCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i, label := range []string{"glass", "metal", "glass", "None", "glass", "metal"} {
		ev := station.CaptureEvent{Seq: i + 1, Label: label, Selected: label != "None", At: time.Unix(int64(i), 0)}
		if err := db.RecordCapture(ctx, ev); err != nil {
			t.Fatalf("RecordCapture failed: %v", err)
		}
	}

	counts, err := db.LabelCounts(ctx)
	if err != nil {
		t.Fatalf("LabelCounts failed: %v", err)
	}
	want := []LabelCount{{"glass", 3}, {"metal", 2}, {"None", 1}}
	if len(counts) != len(want) {
		t.Fatalf("counts = %v, want %v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("counts[%d] = %v, want %v", i, counts[i], want[i])
		}
	}
}

func TestAttachAdminRoutes_Backup(t *testing.T) {
	db := newTestDB(t)
	if err := db.RecordCapture(context.Background(), station.CaptureEvent{Seq: 1, Label: "paper", At: time.Now()}); err != nil {
		t.Fatalf("RecordCapture failed: %v", err)
	}

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "sort-station-backup-") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	gz, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("backup is not gzip: %v", err)
	}
	raw, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("SQLite format 3\x00")) {
		t.Errorf("backup does not look like a SQLite file (%d bytes)", len(raw))
	}
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		wantOut string
	}{
		{"no action", nil, true, "Usage:"},
		{"unknown", []string{"sideways"}, true, "Usage:"},
		{"up", []string{"up"}, false, "Current version: 2"},
		{"status", []string{"status"}, false, "Current version: 2 (dirty: false)"},
		{"down", []string{"down"}, false, "Current version: 1"},
		{"help", []string{"help"}, false, "Commands:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := RunMigrateCommand(tt.args, path, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output %q does not contain %q", out.String(), tt.wantOut)
			}
		})
	}
}
