package cron

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"github.com/gorhill/cronexpr"
	"github.com/robfig/cron/v3"
)

// SessionStore is the part of the store the janitor needs
type SessionStore interface {
	DeleteIdleSessions(before time.Time) ([]string, error)
}

// Janitor periodically deletes sessions that have been idle longer than the TTL
type Janitor struct {
	store    SessionStore
	cron     *cron.Cron
	expr     string
	location *time.Location
	ttl      time.Duration
	onExpire func(sessionID string)
	now      func() time.Time

	mu      sync.Mutex // serializes sweeps
	entryID cron.EntryID
}

// NewJanitor creates a janitor sweeping on the given five-field cron expression.
// onExpire, when set, is called for every deleted session (e.g. to evict caches).
func NewJanitor(st SessionStore, ttl time.Duration, sweepCron, timezone string, onExpire func(string)) (*Janitor, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	if err := model.ValidateCronExpression(sweepCron); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Printf("[CRON] Failed to load timezone %s: %v, using UTC", timezone, err)
		loc = time.UTC
	}

	return &Janitor{
		store:    st,
		cron:     cron.New(cron.WithLocation(loc)),
		expr:     sweepCron,
		location: loc,
		ttl:      ttl,
		onExpire: onExpire,
		now:      time.Now,
	}, nil
}

// Start schedules the sweep job
func (j *Janitor) Start() error {
	entryID, err := j.cron.AddFunc(j.expr, func() {
		if _, err := j.Sweep(); err != nil {
			log.Printf("[CRON] ERROR: Session sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	j.entryID = entryID

	j.cron.Start()
	log.Printf("[CRON] Janitor started with cron expression '%s' (entry ID: %d, ttl: %s)", j.expr, entryID, j.ttl)
	log.Printf("[CRON] Next sweep at %s", j.NextSweep(j.now()).Format(time.RFC3339))

	return nil
}

// Stop stops the janitor and waits for a running sweep to finish
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	log.Println("[CRON] Janitor stopped")
}

// Sweep deletes every session idle longer than the TTL and returns how many were removed
func (j *Janitor) Sweep() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().Add(-j.ttl)
	deleted, err := j.store.DeleteIdleSessions(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete idle sessions: %w", err)
	}

	if len(deleted) == 0 {
		return 0, nil
	}

	log.Printf("[CRON] Expired %d idle session(s) last seen before %s", len(deleted), cutoff.Format(time.RFC3339))
	if j.onExpire != nil {
		for _, id := range deleted {
			j.onExpire(id)
		}
	}
	return len(deleted), nil
}

// NextSweep returns the first sweep time strictly after now, in the janitor's timezone
func (j *Janitor) NextSweep(now time.Time) time.Time {
	expr, err := cronexpr.Parse(j.expr)
	if err != nil {
		// Rejected by NewJanitor already
		return time.Time{}
	}

	// Strip monotonic clock reading by truncating to second precision
	return expr.Next(now.In(j.location)).Truncate(time.Second)
}
