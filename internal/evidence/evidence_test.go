package evidence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/harrison/selfheal/internal/models"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "ed-42-loads-chromium", "video.webm"))
	touch(t, filepath.Join(dir, "ed-42-loads-chromium", "trace.zip"))
	touch(t, filepath.Join(dir, "ed-42-enroll-chromium", "video.webm"))
	touch(t, filepath.Join(dir, "ed-42-enroll-chromium", "test-failed-1.png"))
	touch(t, filepath.Join(dir, "ed-42-enroll-chromium", "stdout.txt"))
	touch(t, filepath.Join(dir, "ed-42-report.json"))
	touch(t, filepath.Join(dir, "top-level.png"))

	ev, err := Collect(dir)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	want := models.Evidence{
		Videos: []string{
			filepath.Join(dir, "ed-42-enroll-chromium", "video.webm"),
			filepath.Join(dir, "ed-42-loads-chromium", "video.webm"),
		},
		Traces:      []string{filepath.Join(dir, "ed-42-loads-chromium", "trace.zip")},
		Screenshots: []string{filepath.Join(dir, "ed-42-enroll-chromium", "test-failed-1.png")},
	}
	if diff := cmp.Diff(want, ev); diff != "" {
		t.Errorf("Collect() mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectMissingDir(t *testing.T) {
	ev, err := Collect(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir should not error, got %v", err)
	}
	if !ev.Empty() {
		t.Errorf("expected empty evidence, got %+v", ev)
	}
}

func TestCollectEmptyPath(t *testing.T) {
	ev, err := Collect("")
	if err != nil || !ev.Empty() {
		t.Errorf("Collect(\"\") = %+v, %v", ev, err)
	}
}
