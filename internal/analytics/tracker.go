// Package analytics maintains the platform-wide activity rollup behind the
// admin dashboard: total and per-day generation counts plus a bounded ring
// of recent generation summaries. It is advisory data — failures are logged
// and never fail the request that produced the activity.
package analytics

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"promptcanvas/internal/store"
)

// maxRecent bounds the recent-generations file so it cannot grow without
// limit.
const maxRecent = 1000

// GenerationSummary is one tracked generation, trimmed to what the
// dashboard displays.
type GenerationSummary struct {
	ArtifactID     string  `json:"artifact_id"`
	Owner          string  `json:"owner"`
	Prompt         string  `json:"prompt"`
	Model          string  `json:"model"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	GenerationTime float64 `json:"generation_time"`
	FileSize       int64   `json:"file_size"`
	CreatedAt      string  `json:"created_at"`
}

// PlatformStats is the aggregate view.
type PlatformStats struct {
	TotalGenerations int            `json:"total_generations"`
	TotalBytes       int64          `json:"total_bytes"`
	DailyCounts      map[string]int `json:"daily_counts"`
	LastUpdated      string         `json:"last_updated"`
}

// Tracker accumulates platform activity in JSON files under its own mutex.
type Tracker struct {
	mu         sync.Mutex
	statsPath  string
	recentPath string
	logger     *slog.Logger
	now        func() time.Time
}

// NewTracker creates a Tracker storing its rollup under dataDir/analytics.
func NewTracker(dataDir string, logger *slog.Logger) (*Tracker, error) {
	dir := filepath.Join(dataDir, "analytics")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Tracker{
		statsPath:  filepath.Join(dir, "platform_stats.json"),
		recentPath: filepath.Join(dir, "generated_images.json"),
		logger:     logger.With("component", "analytics"),
		now:        time.Now,
	}, nil
}

// TrackGeneration records one successful generation in the rollup.
func (t *Tracker) TrackGeneration(sum GenerationSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	if sum.CreatedAt == "" {
		sum.CreatedAt = now.Format(time.RFC3339)
	}

	stats := t.loadStats()
	stats.TotalGenerations++
	stats.TotalBytes += sum.FileSize
	if stats.DailyCounts == nil {
		stats.DailyCounts = map[string]int{}
	}
	stats.DailyCounts[now.Format("2006-01-02")]++
	stats.LastUpdated = now.Format(time.RFC3339)

	if err := store.WriteJSONAtomic(t.statsPath, stats); err != nil {
		t.logger.Error("Failed to persist platform stats", "error", err)
	}

	recent := append(t.loadRecent(), sum)
	if len(recent) > maxRecent {
		recent = recent[len(recent)-maxRecent:]
	}
	if err := store.WriteJSONAtomic(t.recentPath, recent); err != nil {
		t.logger.Error("Failed to persist recent generations", "error", err)
	}
}

// Stats returns the aggregate counters.
func (t *Tracker) Stats() PlatformStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadStats()
}

// Recent returns up to limit of the most recent generation summaries,
// newest last.
func (t *Tracker) Recent(limit int) []GenerationSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	recent := t.loadRecent()
	if limit > 0 && len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	return recent
}

func (t *Tracker) loadStats() PlatformStats {
	stats := PlatformStats{DailyCounts: map[string]int{}}
	if _, err := store.ReadJSONRecovered(t.statsPath, &stats); err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.logger.Warn("Platform stats unreadable, starting fresh", "error", err)
		return PlatformStats{DailyCounts: map[string]int{}}
	}
	return stats
}

func (t *Tracker) loadRecent() []GenerationSummary {
	var recent []GenerationSummary
	if _, err := store.ReadJSONRecovered(t.recentPath, &recent); err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.logger.Warn("Recent generations unreadable, starting fresh", "error", err)
		return nil
	}
	return recent
}
