package cron

import (
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/store"
)

type fakeStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
	idle    []string
	err     error
}

func (f *fakeStore) DeleteIdleSessions(before time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	if f.err != nil {
		return nil, f.err
	}
	deleted := f.idle
	f.idle = nil
	return deleted, nil
}

// TestNextSweepTimezone tests timezone-aware next sweep calculation
func TestNextSweepTimezone(t *testing.T) {
	tests := []struct {
		name     string
		cronExpr string
		timezone string
		validate func(t *testing.T, next time.Time, loc *time.Location)
	}{
		{
			name:     "Daily at midnight in America/New_York",
			cronExpr: "0 0 * * *",
			timezone: "America/New_York",
		},
		{
			name:     "Daily at midnight in Asia/Tokyo",
			cronExpr: "0 0 * * *",
			timezone: "Asia/Tokyo",
		},
		{
			name:     "Weekly Monday at midnight in America/Los_Angeles",
			cronExpr: "0 0 * * 1",
			timezone: "America/Los_Angeles",
			validate: func(t *testing.T, next time.Time, loc *time.Location) {
				if next.In(loc).Weekday() != time.Monday {
					t.Errorf("Expected Monday, got %s", next.In(loc).Weekday())
				}
			},
		},
		{
			name:     "Monthly 1st at midnight in UTC",
			cronExpr: "0 0 1 * *",
			timezone: "UTC",
			validate: func(t *testing.T, next time.Time, loc *time.Location) {
				if next.In(loc).Day() != 1 {
					t.Errorf("Expected 1st day of month, got day %d", next.In(loc).Day())
				}
			},
		},
		{
			name:     "Invalid timezone falls back to UTC",
			cronExpr: "0 0 * * *",
			timezone: "Invalid/Timezone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := NewJanitor(&fakeStore{}, time.Hour, tt.cronExpr, tt.timezone, nil)
			if err != nil {
				t.Fatalf("NewJanitor failed: %v", err)
			}

			loc, err := time.LoadLocation(tt.timezone)
			if err != nil {
				loc = time.UTC
			}

			now := time.Now()
			next := j.NextSweep(now)
			if !next.After(now) {
				t.Errorf("Next sweep %v should be in the future", next)
			}

			local := next.In(loc)
			if local.Hour() != 0 || local.Minute() != 0 {
				t.Errorf("Expected midnight (00:00) in %s, got %02d:%02d", loc, local.Hour(), local.Minute())
			}
			if tt.validate != nil {
				tt.validate(t, next, loc)
			}
		})
	}
}

func TestNextSweepEveryMinute(t *testing.T) {
	j, err := NewJanitor(&fakeStore{}, time.Hour, "* * * * *", "UTC", nil)
	if err != nil {
		t.Fatalf("NewJanitor failed: %v", err)
	}

	now := time.Date(2026, 10, 16, 9, 30, 15, 0, time.UTC)
	want := time.Date(2026, 10, 16, 9, 31, 0, 0, time.UTC)
	if got := j.NextSweep(now); !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestNewJanitorErrors(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		expr string
	}{
		{"zero ttl", 0, "* * * * *"},
		{"empty cron", time.Hour, ""},
		{"bad cron", time.Hour, "every minute"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewJanitor(&fakeStore{}, tt.ttl, tt.expr, "UTC", nil); err == nil {
				t.Errorf("Expected error")
			}
		})
	}
}

func TestSweep(t *testing.T) {
	fs := &fakeStore{idle: []string{"a", "b"}}
	var expired []string
	j, err := NewJanitor(fs, 2*time.Hour, "* * * * *", "UTC", func(id string) {
		expired = append(expired, id)
	})
	if err != nil {
		t.Fatalf("NewJanitor failed: %v", err)
	}
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	n, err := j.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 expired sessions, got %d", n)
	}
	if len(expired) != 2 || expired[0] != "a" || expired[1] != "b" {
		t.Errorf("Expected onExpire for a and b, got %v", expired)
	}
	if want := now.Add(-2 * time.Hour); !fs.cutoffs[0].Equal(want) {
		t.Errorf("Expected cutoff %v, got %v", want, fs.cutoffs[0])
	}

	n, err = j.Sweep()
	if err != nil || n != 0 {
		t.Errorf("Expected empty second sweep, got %d, %v", n, err)
	}
}

func TestSweepStoreError(t *testing.T) {
	fs := &fakeStore{err: errors.New("database is locked")}
	called := false
	j, err := NewJanitor(fs, time.Hour, "* * * * *", "UTC", func(string) { called = true })
	if err != nil {
		t.Fatalf("NewJanitor failed: %v", err)
	}

	if _, err := j.Sweep(); err == nil {
		t.Errorf("Expected store error to be returned")
	}
	if called {
		t.Errorf("onExpire must not run when the sweep fails")
	}
}

// TestSweepWithStore runs concurrent sweeps against a real database
func TestSweepWithStore(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "janitor.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer st.Close()

	now := time.Now()
	var idleIDs []string
	for i := 0; i < 6; i++ {
		s := &model.Session{FileName: "f.csv", Source: []byte("x\n1\n"), Selection: model.Selection{X: "x", Y: "x"}}
		if err := st.CreateSession(s); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		seen := now
		if i%2 == 0 {
			seen = now.Add(-3 * time.Hour)
			idleIDs = append(idleIDs, s.ID)
		}
		if err := st.TouchSession(s.ID, seen); err != nil {
			t.Fatalf("TouchSession failed: %v", err)
		}
	}

	var mu sync.Mutex
	var expired []string
	j, err := NewJanitor(st, time.Hour, "* * * * *", "UTC", func(id string) {
		mu.Lock()
		expired = append(expired, id)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewJanitor failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := j.Sweep(); err != nil {
				t.Errorf("Sweep failed: %v", err)
			}
		}()
	}
	wg.Wait()

	sort.Strings(expired)
	sort.Strings(idleIDs)
	if len(expired) != len(idleIDs) {
		t.Fatalf("Expected %d expired sessions, got %d", len(idleIDs), len(expired))
	}
	for i := range idleIDs {
		if expired[i] != idleIDs[i] {
			t.Errorf("Expected %s to expire, got %s", idleIDs[i], expired[i])
		}
	}

	n, err := st.CountSessions()
	if err != nil {
		t.Fatalf("CountSessions failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 active sessions to remain, got %d", n)
	}
}

func TestStartStop(t *testing.T) {
	j, err := NewJanitor(&fakeStore{}, time.Hour, "* * * * *", "UTC", nil)
	if err != nil {
		t.Fatalf("NewJanitor failed: %v", err)
	}
	if err := j.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(j.cron.Entries()) != 1 {
		t.Errorf("Expected one scheduled sweep, got %d", len(j.cron.Entries()))
	}
	j.Stop()
}
