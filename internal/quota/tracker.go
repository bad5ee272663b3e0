// Package quota enforces the daily generation limits: authenticated users
// get Policy.Authenticated generations per UTC calendar day, anonymous
// clients get Policy.Anonymous per IP. Counters live in a JSON ledger keyed
// by date then identity key, persisted with the same atomic-write scheme as
// the artifact store, and buckets older than seven days are evicted lazily
// on every load rather than by a background timer.
//
// The mutex is process-local; see the store package note on multi-process
// deployments.
package quota

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"promptcanvas/internal/identity"
	"promptcanvas/internal/model"
	"promptcanvas/internal/store"
)

// retentionDays is how long day-buckets are kept before lazy eviction.
const retentionDays = 7

const ledgerFilename = "usage_data.json"

// Policy holds the per-class daily limits. Limits are positive and fixed at
// construction time.
type Policy struct {
	Authenticated int
	Anonymous     int
}

// DefaultPolicy matches the product defaults: five generations per day for
// signed-in users, one per day per anonymous IP.
var DefaultPolicy = Policy{Authenticated: 5, Anonymous: 1}

// ledger maps "YYYY-MM-DD" (UTC) to identity key to count.
type ledger map[string]map[string]int

// Tracker decides whether an identity may generate one more image today and
// records accepted usage. All operations serialize behind a single mutex
// for the whole read-modify-write cycle.
type Tracker struct {
	mu     sync.Mutex
	path   string
	policy Policy
	logger *slog.Logger

	// failClosed denies requests when the ledger file is corrupt instead
	// of treating it as empty. A missing file is an empty ledger in both
	// modes, since that is the normal first-run state.
	failClosed bool

	now func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithFailClosed makes Check and Commit deny usage when the ledger cannot
// be read, trading availability for strict enforcement during a storage
// outage.
func WithFailClosed() Option {
	return func(t *Tracker) { t.failClosed = true }
}

// WithPolicy overrides the default daily limits.
func WithPolicy(p Policy) Option {
	return func(t *Tracker) { t.policy = p }
}

// NewTracker creates a Tracker persisting its ledger under dataDir.
func NewTracker(dataDir string, logger *slog.Logger, opts ...Option) (*Tracker, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create quota directory: %w", err)
	}

	t := &Tracker{
		path:   filepath.Join(dataDir, ledgerFilename),
		policy: DefaultPolicy,
		logger: logger.With("component", "quota"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.policy.Authenticated <= 0 || t.policy.Anonymous <= 0 {
		return nil, fmt.Errorf("quota limits must be positive, got %+v", t.policy)
	}
	return t, nil
}

func (t *Tracker) limitFor(id identity.Identity) int {
	if id.Class() == identity.ClassAuthenticated {
		return t.policy.Authenticated
	}
	return t.policy.Anonymous
}

func (t *Tracker) todayKey() string {
	return t.now().UTC().Format("2006-01-02")
}

// load reads the ledger and evicts buckets older than the retention window.
// It reports whether any bucket was evicted and whether the read had to be
// treated as a failure (corrupt primary and backup).
func (t *Tracker) load() (data ledger, evicted bool, readFailed bool) {
	data = ledger{}
	if _, err := store.ReadJSONRecovered(t.path, &data); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			t.logger.Error("Usage ledger unreadable", "error", err, "fail_closed", t.failClosed)
			return ledger{}, false, true
		}
		return ledger{}, false, false
	}

	cutoff := t.now().UTC().AddDate(0, 0, -retentionDays).Format("2006-01-02")
	for day := range data {
		if day < cutoff {
			delete(data, day)
			evicted = true
		}
	}
	return data, evicted, false
}

func (t *Tracker) save(data ledger) error {
	return store.WriteJSONAtomic(t.path, data)
}

// Check reports whether the identity may generate one more image today,
// together with its current count and limit. Eviction of expired buckets is
// persisted as a side effect, but the counter itself is not touched.
func (t *Tracker) Check(id identity.Identity) (allowed bool, current, limit int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkLocked(id)
}

func (t *Tracker) checkLocked(id identity.Identity) (bool, int, int) {
	limit := t.limitFor(id)

	// An identity must carry exactly one of user id or IP; anything else
	// cannot be attributed to a ledger bucket and is denied outright.
	if !id.Valid() {
		t.logger.Warn("Usage check for invalid identity denied", "identity", id.Key())
		return false, 0, limit
	}

	data, evicted, readFailed := t.load()
	if readFailed && t.failClosed {
		return false, limit, limit
	}
	if evicted {
		if err := t.save(data); err != nil {
			t.logger.Warn("Failed to persist ledger eviction", "error", err)
		}
	}

	current := data[t.todayKey()][id.Key()]
	allowed := current < limit

	t.logger.Info("Usage check", "identity", id.Key(), "current", current, "limit", limit, "allowed", allowed)
	return allowed, current, limit
}

// Commit charges one generation to the identity. It re-validates the limit
// under the lock — two requests may both pass Check before either commits,
// and the second must be turned away here rather than pushed past the
// limit. It returns false without mutating anything when the identity is at
// its limit; a write failure means the usage was not charged.
func (t *Tracker) Commit(id identity.Identity) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !id.Valid() {
		t.logger.Warn("Usage commit for invalid identity denied", "identity", id.Key())
		return false, nil
	}

	limit := t.limitFor(id)
	data, _, readFailed := t.load()
	if readFailed && t.failClosed {
		return false, nil
	}

	today := t.todayKey()
	if data[today] == nil {
		data[today] = map[string]int{}
	}

	current := data[today][id.Key()]
	if current >= limit {
		return false, nil
	}

	data[today][id.Key()] = current + 1
	if err := t.save(data); err != nil {
		return false, fmt.Errorf("failed to persist usage increment: %w", err)
	}

	t.logger.Info("Usage committed", "identity", id.Key(), "count", current+1, "limit", limit)
	return true, nil
}

// Stats returns the user-visible usage view for the identity.
func (t *Tracker) Stats(id identity.Identity) model.UsageStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed, current, limit := t.checkLocked(id)
	return model.UsageStats{
		CanGenerate:  allowed,
		CurrentUsage: current,
		Limit:        limit,
		Remaining:    max(0, limit-current),
		ResetAt:      t.resetTime().Format(time.RFC3339),
		IdentityType: string(id.Class()),
	}
}

// resetTime is the next UTC midnight, when daily counters start over.
func (t *Tracker) resetTime() time.Time {
	return t.now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
}

// Reset deletes today's counter for the identity. It is an administrative
// override and a no-op when no counter exists.
func (t *Tracker) Reset(id identity.Identity) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, _, readFailed := t.load()
	if readFailed {
		return store.ErrCorrupt
	}

	today := t.todayKey()
	if _, ok := data[today][id.Key()]; !ok {
		return nil
	}

	delete(data[today], id.Key())
	if err := t.save(data); err != nil {
		return fmt.Errorf("failed to persist usage reset: %w", err)
	}

	t.logger.Info("Usage reset", "identity", id.Key())
	return nil
}
