package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptcanvas/internal/logger"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := NewTracker(t.TempDir(), logger.New("error"))
	require.NoError(t, err)
	return tr
}

func TestTrackGeneration(t *testing.T) {
	tr := newTestTracker(t)
	tr.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	tr.TrackGeneration(GenerationSummary{ArtifactID: "a1", Owner: "user:u1", FileSize: 1000})
	tr.TrackGeneration(GenerationSummary{ArtifactID: "a2", Owner: "ip:203.0.113.5", FileSize: 500})

	stats := tr.Stats()
	assert.Equal(t, 2, stats.TotalGenerations)
	assert.EqualValues(t, 1500, stats.TotalBytes)
	assert.Equal(t, 2, stats.DailyCounts["2026-03-01"])

	recent := tr.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "a2", recent[1].ArtifactID)
}

func TestRecentIsBounded(t *testing.T) {
	tr := newTestTracker(t)

	for i := 0; i < maxRecent+5; i++ {
		tr.TrackGeneration(GenerationSummary{ArtifactID: fmt.Sprintf("a%d", i)})
	}

	recent := tr.Recent(0)
	require.Len(t, recent, maxRecent)
	// The oldest entries were dropped.
	assert.Equal(t, "a5", recent[0].ArtifactID)
}

func TestStatsOnEmptyTracker(t *testing.T) {
	tr := newTestTracker(t)
	stats := tr.Stats()
	assert.Zero(t, stats.TotalGenerations)
	assert.Empty(t, tr.Recent(10))
}
