// Package lockout throttles repeated authentication failures per account.
//
// Counters are keyed by account identity and shared across all client
// sessions, so clearing cookies does not reset an account's failure count.
package lockout

import (
	"sync"
	"time"

	"github.com/gendoc-app/gendoc/internal/audit"
	"github.com/gendoc-app/gendoc/internal/db/models"
)

// Metadata carries client context attached to the audit trail of a failure.
type Metadata struct {
	IPAddress string
	UserAgent string
}

type record struct {
	failures    int
	lastFailure time.Time
}

// Tracker counts failed authentication attempts per account identity and
// decides whether further attempts are blocked. Expiry is computed lazily on
// read; there is no background sweep.
type Tracker struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	records     map[string]*record
	recorder    *audit.Recorder

	now func() time.Time
}

// New creates a tracker. maxAttempts and window fall back to the documented
// defaults (5 attempts, 15 minutes) when zero.
func New(maxAttempts int, window time.Duration, recorder *audit.Recorder) *Tracker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	if window <= 0 {
		window = 15 * time.Minute
	}

	return &Tracker{
		maxAttempts: maxAttempts,
		window:      window,
		records:     make(map[string]*record),
		recorder:    recorder,
		now:         time.Now,
	}
}

// IsLocked reports whether the account has reached the failure limit within
// the lockout window. Once the window has elapsed since the last failure the
// counter is cleared transparently.
func (t *Tracker) IsLocked(identity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[identity]
	if !ok {
		return false
	}

	if t.now().Sub(rec.lastFailure) >= t.window {
		delete(t.records, identity)
		return false
	}

	return rec.failures >= t.maxAttempts
}

// RecordFailure increments the account's failure counter, stamps the failure
// time and emits an auditable event carrying the client metadata.
func (t *Tracker) RecordFailure(identity string, meta Metadata) {
	t.mu.Lock()

	rec, ok := t.records[identity]
	if !ok {
		rec = &record{}
		t.records[identity] = rec
	}

	rec.failures++
	rec.lastFailure = t.now()

	failures := rec.failures
	locked := failures >= t.maxAttempts

	t.mu.Unlock()

	t.recorder.Record(audit.Event{
		Action:    models.AuditLoginFailed,
		Username:  identity,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Details:   map[string]any{"attempts": failures},
	})

	if locked {
		t.recorder.Record(audit.Event{
			Action:    models.AuditAccountLocked,
			Username:  identity,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Details:   map[string]any{"attempts": failures, "window": t.window.String()},
		})
	}
}

// Reset clears the account's failure counter. Called on successful
// authentication.
func (t *Tracker) Reset(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.records, identity)
}
