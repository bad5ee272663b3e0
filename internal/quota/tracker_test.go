package quota

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptcanvas/internal/identity"
	"promptcanvas/internal/logger"
)

func newTestTracker(t *testing.T, opts ...Option) *Tracker {
	t.Helper()
	tr, err := NewTracker(t.TempDir(), logger.New("error"), opts...)
	require.NoError(t, err)
	return tr
}

func mustCommit(t *testing.T, tr *Tracker, id identity.Identity) bool {
	t.Helper()
	ok, err := tr.Commit(id)
	require.NoError(t, err)
	return ok
}

func TestAnonymousEndToEnd(t *testing.T) {
	tr := newTestTracker(t)
	ip := identity.Anonymous("203.0.113.5")

	allowed, current, limit := tr.Check(ip)
	assert.True(t, allowed)
	assert.Equal(t, 0, current)
	assert.Equal(t, 1, limit)

	assert.True(t, mustCommit(t, tr, ip))

	allowed, current, limit = tr.Check(ip)
	assert.False(t, allowed)
	assert.Equal(t, 1, current)
	assert.Equal(t, 1, limit)

	// The over-limit commit returns false and leaves the count alone.
	assert.False(t, mustCommit(t, tr, ip))
	_, current, _ = tr.Check(ip)
	assert.Equal(t, 1, current)
}

func TestAuthenticatedEndToEnd(t *testing.T) {
	tr := newTestTracker(t)
	user := identity.User("u1")

	for i := 0; i < 5; i++ {
		assert.True(t, mustCommit(t, tr, user), "commit %d", i+1)
	}
	assert.False(t, mustCommit(t, tr, user))

	stats := tr.Stats(user)
	assert.False(t, stats.CanGenerate)
	assert.Equal(t, 5, stats.CurrentUsage)
	assert.Equal(t, 5, stats.Limit)
	assert.Equal(t, 0, stats.Remaining)
	assert.Equal(t, "authenticated", stats.IdentityType)
}

// Counts recorded under one day must not affect the next: the clock is
// advanced past the UTC midnight boundary and the identity can generate
// again.
func TestDayIsolation(t *testing.T) {
	tr := newTestTracker(t)
	ip := identity.Anonymous("203.0.113.5")

	day1 := time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)
	tr.now = func() time.Time { return day1 }
	assert.True(t, mustCommit(t, tr, ip))
	assert.False(t, mustCommit(t, tr, ip))

	tr.now = func() time.Time { return day1.Add(20 * time.Minute) } // 00:10 next day
	allowed, current, _ := tr.Check(ip)
	assert.True(t, allowed)
	assert.Equal(t, 0, current)
	assert.True(t, mustCommit(t, tr, ip))
}

func TestResetBoundaryIsUTCMidnight(t *testing.T) {
	tr := newTestTracker(t)
	tr.now = func() time.Time {
		return time.Date(2026, 3, 1, 17, 4, 5, 0, time.UTC)
	}

	stats := tr.Stats(identity.User("u1"))
	assert.Equal(t, "2026-03-02T00:00:00Z", stats.ResetAt)
}

// N concurrent commits against limit L succeed exactly min(N, L) times and
// never push the stored count past L.
func TestConcurrentCommits(t *testing.T) {
	tr := newTestTracker(t)
	user := identity.User("u1")

	const n = 20
	var successes atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := tr.Commit(user); err == nil && ok {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, successes.Load())
	_, current, _ := tr.Check(user)
	assert.Equal(t, 5, current)
}

func TestResetIsIdempotent(t *testing.T) {
	tr := newTestTracker(t)
	user := identity.User("u1")

	assert.True(t, mustCommit(t, tr, user))
	require.NoError(t, tr.Reset(user))
	require.NoError(t, tr.Reset(user))

	_, current, _ := tr.Check(user)
	assert.Equal(t, 0, current)
}

func TestOldBucketsEvictedOnLoad(t *testing.T) {
	tr := newTestTracker(t)
	ip := identity.Anonymous("203.0.113.5")

	past := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return past }
	assert.True(t, mustCommit(t, tr, ip))

	tr.now = func() time.Time { return past.AddDate(0, 0, 10) }
	_, current, _ := tr.Check(ip)
	assert.Equal(t, 0, current)

	// Eviction is persisted: the old bucket is gone from the file.
	data, _, readFailed := tr.load()
	require.False(t, readFailed)
	assert.NotContains(t, data, "2026-02-01")
}

func TestMissingLedgerIsEmpty(t *testing.T) {
	tr := newTestTracker(t, WithFailClosed())

	allowed, current, _ := tr.Check(identity.User("u1"))
	assert.True(t, allowed)
	assert.Equal(t, 0, current)
}

func TestCorruptLedgerFailOpen(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, os.WriteFile(tr.path, []byte("{nope"), 0o644))

	allowed, current, _ := tr.Check(identity.User("u1"))
	assert.True(t, allowed)
	assert.Equal(t, 0, current)
}

func TestCorruptLedgerFailClosed(t *testing.T) {
	tr := newTestTracker(t, WithFailClosed())
	require.NoError(t, os.WriteFile(tr.path, []byte("{nope"), 0o644))

	allowed, _, _ := tr.Check(identity.User("u1"))
	assert.False(t, allowed)

	ok, err := tr.Commit(identity.User("u1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCorruptLedgerRecoversFromBackup(t *testing.T) {
	tr := newTestTracker(t)
	user := identity.User("u1")

	assert.True(t, mustCommit(t, tr, user))
	assert.True(t, mustCommit(t, tr, user))

	// The .backup rotated by the second commit holds count 1.
	require.NoError(t, os.WriteFile(tr.path, []byte("{nope"), 0o644))

	_, current, _ := tr.Check(user)
	assert.Equal(t, 1, current)
}

func TestCustomPolicy(t *testing.T) {
	tr := newTestTracker(t, WithPolicy(Policy{Authenticated: 2, Anonymous: 1}))
	user := identity.User("u1")

	assert.True(t, mustCommit(t, tr, user))
	assert.True(t, mustCommit(t, tr, user))
	assert.False(t, mustCommit(t, tr, user))
}

func TestInvalidPolicyRejected(t *testing.T) {
	_, err := NewTracker(t.TempDir(), logger.New("error"), WithPolicy(Policy{Authenticated: 0, Anonymous: 1}))
	assert.Error(t, err)
}

func TestInvalidIdentityDenied(t *testing.T) {
	tr := newTestTracker(t)
	var zero identity.Identity

	allowed, current, _ := tr.Check(zero)
	assert.False(t, allowed)
	assert.Equal(t, 0, current)

	assert.False(t, mustCommit(t, tr, zero))

	// Nothing was written for the unattributable caller.
	_, current, _ = tr.Check(identity.Anonymous(""))
	assert.Equal(t, 0, current)
}
