package store

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Register SQLite driver
)

// sqliteTimeFormat is how timestamps are written; it sorts lexically
const sqliteTimeFormat = "2006-01-02 15:04:05"

// formatTimestamp renders a time for storage (UTC, no timezone suffix)
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

// parseTimestamp parses a timestamp string from SQLite, handling multiple formats
// Formats supported:
// - "2006-01-02 15:04:05" (UTC, no timezone)
// - "2006-01-02 15:04:05 -0700 MST" (with timezone)
// - RFC3339, which the driver produces for DATETIME columns
func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}

	formats := []string{
		sqliteTimeFormat,
		"2006-01-02 15:04:05 -0700 MST",
		"2006-01-02 15:04:05 -0700",
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			t = t.UTC()
			return &t
		}
	}

	log.Printf("[STORE] WARNING: Failed to parse timestamp: %s", s)
	return nil
}

// timeOrZero dereferences a parsed timestamp
func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// Store handles database operations
type Store struct {
	db         *sql.DB
	writeQueue *writeQueue
}

// NewStore creates a new store instance
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL lets handlers read while the write queue writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports single writer
	db.SetMaxIdleConns(1)

	log.Println("[STORE] SQLite configured: WAL mode enabled, busy_timeout=5000ms, single writer connection")

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store.writeQueue = newWriteQueue(store)
	log.Println("[STORE] Write queue initialized for serialized database writes")

	return store, nil
}

// migrate runs database migrations
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			source BLOB NOT NULL,
			selection TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_seen_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_seen_at ON sessions(last_seen_at)`,
		`CREATE TABLE IF NOT EXISTS report_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME,
			status TEXT NOT NULL,
			selection TEXT NOT NULL,
			renderer TEXT NOT NULL,
			chart_fallback INTEGER NOT NULL DEFAULT 0,
			pages INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			checksum TEXT,
			error_text TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_report_runs_session_id ON report_runs(session_id)`,
		// Migration: track who received a report by email
		`ALTER TABLE report_runs ADD COLUMN emailed_to TEXT`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			// Ignore "duplicate column" errors - column already exists
			if !strings.Contains(err.Error(), "duplicate column name") {
				return fmt.Errorf("migration failed: %w", err)
			}
			log.Printf("[STORE] Migration warning (ignored): %v", err)
		}
	}

	return nil
}

// CreateSession stores a new session (queued for serialized execution).
// A random ID is assigned when none is set.
func (s *Store) CreateSession(session *model.Session) error {
	return s.writeQueue.enqueue(opCreateSession, session)
}

// createSessionDirect creates a new session (direct database access, called by write queue)
func (s *Store) createSessionDirect(session *model.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	session.CreatedAt = now
	session.LastSeenAt = now

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, file_name, source, selection, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.FileName, session.Source, session.Selection,
		formatTimestamp(now), formatTimestamp(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session, including its uploaded file
func (s *Store) GetSession(id string) (*model.Session, error) {
	session := &model.Session{}
	var createdAtStr, lastSeenAtStr sql.NullString

	err := s.db.QueryRow(`
		SELECT id, file_name, source, selection, created_at, last_seen_at
		FROM sessions WHERE id = ?`,
		id,
	).Scan(
		&session.ID, &session.FileName, &session.Source, &session.Selection,
		&createdAtStr, &lastSeenAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session '%s': %w", id, model.ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}

	session.CreatedAt = timeOrZero(parseTimestamp(createdAtStr.String))
	session.LastSeenAt = timeOrZero(parseTimestamp(lastSeenAtStr.String))
	return session, nil
}

// UpdateSelection stores the chart selection of a session (queued for serialized execution)
func (s *Store) UpdateSelection(id string, sel model.Selection) error {
	return s.writeQueue.enqueue(opUpdateSelection, updateSelectionParams{id: id, selection: sel})
}

// updateSelectionDirect updates a session selection (direct database access, called by write queue)
func (s *Store) updateSelectionDirect(id string, sel model.Selection) error {
	res, err := s.db.Exec(`
		UPDATE sessions SET selection = ?, last_seen_at = ? WHERE id = ?`,
		sel, formatTimestamp(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update selection: %w", err)
	}
	return requireRow(res, id)
}

// TouchSession marks a session as active at the given time (queued for serialized execution)
func (s *Store) TouchSession(id string, at time.Time) error {
	return s.writeQueue.enqueue(opTouchSession, touchSessionParams{id: id, at: at})
}

// touchSessionDirect updates last_seen_at (direct database access, called by write queue)
func (s *Store) touchSessionDirect(id string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE sessions SET last_seen_at = ? WHERE id = ?`, formatTimestamp(at), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return requireRow(res, id)
}

// ReplaceSource swaps the uploaded file of a session; the previous file and
// its selection are discarded (queued for serialized execution)
func (s *Store) ReplaceSource(id, fileName string, source []byte, sel model.Selection) error {
	return s.writeQueue.enqueue(opReplaceSource, replaceSourceParams{
		id: id, fileName: fileName, source: source, selection: sel,
	})
}

// replaceSourceDirect replaces the file of a session (direct database access, called by write queue)
func (s *Store) replaceSourceDirect(p replaceSourceParams) error {
	res, err := s.db.Exec(`
		UPDATE sessions SET file_name = ?, source = ?, selection = ?, last_seen_at = ? WHERE id = ?`,
		p.fileName, p.source, p.selection, formatTimestamp(time.Now()), p.id,
	)
	if err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return requireRow(res, p.id)
}

// DeleteSession deletes a session and its report history (queued for serialized execution)
func (s *Store) DeleteSession(id string) error {
	return s.writeQueue.enqueue(opDeleteSession, id)
}

// deleteSessionDirect deletes a session (direct database access, called by write queue)
func (s *Store) deleteSessionDirect(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM report_runs WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete report runs: %w", err)
	}
	return tx.Commit()
}

// DeleteIdleSessions deletes every session last seen before the cutoff and
// returns their IDs (queued for serialized execution)
func (s *Store) DeleteIdleSessions(before time.Time) ([]string, error) {
	params := &deleteIdleParams{before: before}
	if err := s.writeQueue.enqueue(opDeleteIdleSessions, params); err != nil {
		return nil, err
	}
	return params.deleted, nil
}

// deleteIdleSessionsDirect deletes idle sessions (direct database access, called by write queue)
func (s *Store) deleteIdleSessionsDirect(p *deleteIdleParams) error {
	cutoff := formatTimestamp(p.before)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id FROM sessions WHERE last_seen_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to query idle sessions: %w", err)
	}
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM report_runs WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete report runs: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit idle session cleanup: %w", err)
	}

	p.deleted = ids
	return nil
}

// CountSessions returns the number of stored sessions
func (s *Store) CountSessions() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

// CreateRun creates a new report run record (queued for serialized execution)
func (s *Store) CreateRun(run *model.ReportRun) error {
	return s.writeQueue.enqueue(opCreateRun, run)
}

// createRunDirect creates a new run record (direct database access, called by write queue)
func (s *Store) createRunDirect(run *model.ReportRun) error {
	result, err := s.db.Exec(`
		INSERT INTO report_runs (session_id, started_at, status, selection, renderer)
		VALUES (?, ?, ?, ?, ?)`,
		run.SessionID, formatTimestamp(run.StartedAt), run.Status, run.Selection, run.Renderer,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	run.ID = id
	return nil
}

// UpdateRun updates a report run record (queued for serialized execution)
func (s *Store) UpdateRun(run *model.ReportRun) error {
	return s.writeQueue.enqueue(opUpdateRun, run)
}

// updateRunDirect updates a run record (direct database access, called by write queue)
func (s *Store) updateRunDirect(run *model.ReportRun) error {
	var finishedAt interface{}
	if run.FinishedAt != nil {
		finishedAt = formatTimestamp(*run.FinishedAt)
	}

	_, err := s.db.Exec(`
		UPDATE report_runs SET finished_at = ?, status = ?, chart_fallback = ?, pages = ?, bytes = ?,
		       checksum = ?, error_text = ?, emailed_to = ?
		WHERE id = ?`,
		finishedAt, run.Status, run.ChartFallback, run.Pages, run.Bytes,
		run.Checksum, run.ErrorText, run.EmailedTo, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update report run: %w", err)
	}
	return nil
}

// ListRuns retrieves the report runs of a session, newest first
func (s *Store) ListRuns(sessionID string) ([]*model.ReportRun, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, started_at, finished_at, status, selection, renderer,
		       chart_fallback, pages, bytes, checksum, error_text, emailed_to
		FROM report_runs WHERE session_id = ? ORDER BY started_at DESC, id DESC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*model.ReportRun, 0)
	for rows.Next() {
		run := &model.ReportRun{}
		var startedAtStr, finishedAtStr, checksum, errorText sql.NullString
		var emailedTo []byte

		err := rows.Scan(
			&run.ID, &run.SessionID, &startedAtStr, &finishedAtStr, &run.Status,
			&run.Selection, &run.Renderer, &run.ChartFallback, &run.Pages, &run.Bytes,
			&checksum, &errorText, &emailedTo,
		)
		if err != nil {
			return nil, err
		}

		run.StartedAt = timeOrZero(parseTimestamp(startedAtStr.String))
		if finishedAtStr.Valid {
			run.FinishedAt = parseTimestamp(finishedAtStr.String)
		}
		run.Checksum = checksum.String
		run.ErrorText = errorText.String
		if len(emailedTo) > 0 {
			if err := run.EmailedTo.Scan(emailedTo); err != nil {
				log.Printf("[STORE] WARNING: Failed to decode recipients of run %d: %v", run.ID, err)
			}
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// requireRow maps "no rows affected" to ErrSessionNotFound
func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session '%s': %w", id, model.ErrSessionNotFound)
	}
	return nil
}

// Close closes the database connection and shuts down the write queue
func (s *Store) Close() error {
	// Shutdown write queue first to ensure all pending writes complete
	if s.writeQueue != nil {
		s.writeQueue.shutdown()
	}
	return s.db.Close()
}
