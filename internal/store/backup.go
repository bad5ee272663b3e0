package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"promptcanvas/internal/metrics"
)

// Snapshot writes timestamped copies of both collections into the backups
// directory and prunes snapshots beyond the retention limit.
func (s *Store) Snapshot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotLocked()
}

func (s *Store) snapshotLocked() {
	// The timestamp format sorts lexicographically, so reverse name order
	// equals reverse chronological order during pruning.
	stamp := s.now().UTC().Format("20060102_150405")

	artifacts := s.loadArtifacts()
	if err := WriteJSONAtomic(filepath.Join(s.backupDir, "images_"+stamp+".json"), artifacts); err != nil {
		s.logger.Error("Snapshot of artifact collection failed", "error", err)
		return
	}

	events := s.loadEvents()
	if err := WriteJSONAtomic(filepath.Join(s.backupDir, "generations_"+stamp+".json"), events); err != nil {
		s.logger.Error("Snapshot of event collection failed", "error", err)
		return
	}

	metrics.StoreSnapshotsTotal.Inc()
	s.logger.Info("Snapshot created", "timestamp", stamp)
	s.pruneSnapshotsLocked()
}

// pruneSnapshotsLocked keeps only the maxBackupFiles most recent snapshot
// files, deleting older ones.
func (s *Store) pruneSnapshotsLocked() {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		s.logger.Error("Snapshot pruning failed", "error", err)
		return
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, name := range names[min(len(names), maxBackupFiles):] {
		if err := os.Remove(filepath.Join(s.backupDir, name)); err != nil {
			s.logger.Error("Failed to remove old snapshot", "file", name, "error", err)
		}
	}
}
