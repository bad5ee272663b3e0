// Package store persists generated-artifact metadata and generation events
// to local JSON files such that no acknowledged write is lost across process
// restarts or partial writes. Every mutation rewrites the full collection
// through an atomic rename, keeps the previous state under a .backup
// sibling, and takes a timestamped snapshot every tenth artifact write.
//
// All operations on a Store serialize behind a single mutex. The lock is
// process-local: running several OS processes against the same data
// directory is not supported and would require a backing service with
// atomic writes instead of flat files.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"promptcanvas/internal/metrics"
	"promptcanvas/internal/model"
)

// ErrNotFound is returned when a mutation targets an artifact that does not
// exist. A record owned by a different identity is reported identically, so
// the outcome never leaks existence to non-owners.
var ErrNotFound = errors.New("store: artifact not found")

const (
	artifactsFilename = "images.json"
	eventsFilename    = "generations.json"

	// A timestamped snapshot of both collections is taken every
	// snapshotEvery-th artifact write.
	snapshotEvery = 10

	// maxBackupFiles bounds the backups directory: the 10 most recent
	// snapshots of each collection.
	maxBackupFiles = 20
)

// Store owns the on-disk representation of artifacts and generation events.
// Callers always receive fresh copies decoded from disk, never references
// into shared buffers.
type Store struct {
	mu            sync.Mutex
	artifactsPath string
	eventsPath    string
	backupDir     string
	logger        *slog.Logger

	now func() time.Time
}

// New creates a Store rooted at dataDir, creating the directory layout and
// empty collections on first use.
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		artifactsPath: filepath.Join(dataDir, artifactsFilename),
		eventsPath:    filepath.Join(dataDir, eventsFilename),
		backupDir:     filepath.Join(dataDir, "backups"),
		logger:        logger.With("component", "store"),
		now:           time.Now,
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directories: %w", err)
	}

	if _, err := os.Stat(s.artifactsPath); errors.Is(err, fs.ErrNotExist) {
		if err := WriteJSONAtomic(s.artifactsPath, []model.Artifact{}); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(s.eventsPath); errors.Is(err, fs.ErrNotExist) {
		if err := WriteJSONAtomic(s.eventsPath, []model.GenerationEvent{}); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// loadArtifacts reads the artifact collection, recovering from the .backup
// sibling when the primary is corrupt and degrading to an empty list when
// neither copy is readable. Read-time corruption never fails the caller.
func (s *Store) loadArtifacts() []model.Artifact {
	var artifacts []model.Artifact
	recovered, err := ReadJSONRecovered(s.artifactsPath, &artifacts)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Artifact collection unreadable, starting empty", "error", err)
		}
		return []model.Artifact{}
	}
	if recovered {
		metrics.StoreRecoveriesTotal.Inc()
		s.logger.Warn("Recovered artifact collection from backup", "path", s.artifactsPath+".backup")
	}
	return artifacts
}

func (s *Store) loadEvents() []model.GenerationEvent {
	var events []model.GenerationEvent
	recovered, err := ReadJSONRecovered(s.eventsPath, &events)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Event collection unreadable, starting empty", "error", err)
		}
		return []model.GenerationEvent{}
	}
	if recovered {
		metrics.StoreRecoveriesTotal.Inc()
		s.logger.Warn("Recovered event collection from backup", "path", s.eventsPath+".backup")
	}
	return events
}

// SaveArtifact appends record to the artifact collection. The write is
// atomic; if it fails the record is not persisted and the caller must not
// report success.
func (s *Store) SaveArtifact(record model.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	artifacts := append(s.loadArtifacts(), record)
	if err := WriteJSONAtomic(s.artifactsPath, artifacts); err != nil {
		metrics.StoreWritesTotal.WithLabelValues("artifacts", "error").Inc()
		return err
	}
	metrics.StoreWritesTotal.WithLabelValues("artifacts", "ok").Inc()
	s.logger.Info("Artifact saved", "id", record.ID, "owner", record.Owner)

	if len(artifacts)%snapshotEvery == 0 {
		s.snapshotLocked()
	}
	return nil
}

// ListArtifacts returns the full artifact collection in insertion order.
func (s *Store) ListArtifacts() []model.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadArtifacts()
}

// ListArtifactsByOwner returns the artifacts created by the given identity
// key, in insertion order.
func (s *Store) ListArtifactsByOwner(owner string) []model.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owned []model.Artifact
	for _, a := range s.loadArtifacts() {
		if a.Owner == owner {
			owned = append(owned, a)
		}
	}
	return owned
}

// GetArtifact returns the artifact with the given id owned by owner, or
// ErrNotFound. Ownership mismatches are indistinguishable from absence.
func (s *Store) GetArtifact(id, owner string) (model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.loadArtifacts() {
		if a.ID == id && a.Owner == owner {
			return a, nil
		}
	}
	return model.Artifact{}, ErrNotFound
}

// SetFavorite updates the favorite flag of the artifact matching both id
// and owner. It returns ErrNotFound when no such record exists, including
// when the record belongs to someone else.
func (s *Store) SetFavorite(id, owner string, favorite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	artifacts := s.loadArtifacts()
	for i := range artifacts {
		if artifacts[i].ID == id && artifacts[i].Owner == owner {
			artifacts[i].IsFavorite = favorite
			if err := WriteJSONAtomic(s.artifactsPath, artifacts); err != nil {
				metrics.StoreWritesTotal.WithLabelValues("artifacts", "error").Inc()
				return err
			}
			metrics.StoreWritesTotal.WithLabelValues("artifacts", "ok").Inc()
			s.logger.Info("Favorite flag updated", "id", id, "favorite", favorite)
			return nil
		}
	}
	return ErrNotFound
}

// DeleteArtifact removes the artifact matching both id and owner and
// returns the removed record so the caller can delete the backing blob.
func (s *Store) DeleteArtifact(id, owner string) (model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	artifacts := s.loadArtifacts()
	for i, a := range artifacts {
		if a.ID == id && a.Owner == owner {
			artifacts = append(artifacts[:i], artifacts[i+1:]...)
			if err := WriteJSONAtomic(s.artifactsPath, artifacts); err != nil {
				metrics.StoreWritesTotal.WithLabelValues("artifacts", "error").Inc()
				return model.Artifact{}, err
			}
			metrics.StoreWritesTotal.WithLabelValues("artifacts", "ok").Inc()
			s.logger.Info("Artifact deleted", "id", id, "owner", owner)
			return a, nil
		}
	}
	return model.Artifact{}, ErrNotFound
}

// RecordGeneration appends one audit event for a successful generation.
// There is no update or delete operation for this collection.
func (s *Store) RecordGeneration(owner, artifactID string, parameters map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	event := model.GenerationEvent{
		ID:         fmt.Sprintf("%s#%s", owner, now.Format(time.RFC3339Nano)),
		Owner:      owner,
		ArtifactID: artifactID,
		Parameters: parameters,
		CreatedAt:  now.Format(time.RFC3339Nano),
	}

	events := append(s.loadEvents(), event)
	if err := WriteJSONAtomic(s.eventsPath, events); err != nil {
		metrics.StoreWritesTotal.WithLabelValues("events", "error").Inc()
		return err
	}
	metrics.StoreWritesTotal.WithLabelValues("events", "ok").Inc()
	s.logger.Info("Generation event recorded", "artifact_id", artifactID, "owner", owner)
	return nil
}

// ListEventsByOwner returns the generation events recorded for the given
// identity key, oldest first.
func (s *Store) ListEventsByOwner(owner string) []model.GenerationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owned []model.GenerationEvent
	for _, e := range s.loadEvents() {
		if e.Owner == owner {
			owned = append(owned, e)
		}
	}
	return owned
}

// Stats summarizes both collections.
func (s *Store) Stats() model.StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	artifacts := s.loadArtifacts()
	events := s.loadEvents()

	owners := make(map[string]struct{})
	for _, a := range artifacts {
		if a.Owner != "" {
			owners[a.Owner] = struct{}{}
		}
	}

	return model.StoreStats{
		TotalArtifacts: len(artifacts),
		TotalEvents:    len(events),
		UniqueOwners:   len(owners),
		Healthy:        true,
	}
}
