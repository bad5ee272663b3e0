package scheduler

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"promptcanvas/internal/logger"
	"promptcanvas/internal/model"
	"promptcanvas/internal/store"
)

func TestSchedulerRunsSnapshot(t *testing.T) {
	dir := t.TempDir()
	log := logger.NewWithWriter(io.Discard, "error")

	st, err := store.New(dir, log)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := st.SaveArtifact(model.Artifact{ID: "a1", Owner: "user:u1", Prompt: "p"}); err != nil {
		t.Fatalf("failed to save artifact: %v", err)
	}

	s := NewScheduler(st, log)
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start scheduler: %v", err)
	}
	defer s.Stop()

	// The cron trigger fires at midnight; exercise the job directly.
	s.runDaily()

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("failed to read backup dir: %v", err)
	}
	if len(entries) == 0 {
		t.Error("expected snapshot files after the daily job ran")
	}
}
