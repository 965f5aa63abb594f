// Package cache provides the local persistent mirror of the remote
// service, backed by embedded SQLite with WAL mode.
//
// The cache is a derived copy, never authoritative: every successful
// remote read overwrites it, and on remote failure it serves the
// last-known-good snapshot. Rows are tagged with the owning identifier
// used for fallback queries (organizer id for events, event id for
// attendances).
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gatherhq/gather/internal/types"
)

// Store wraps the SQLite connection with cache-specific operations.
// All access goes through this type; callers never touch the connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a cache database at the given path, creating parent
// directories and the schema as needed. The caller must Close it.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}
	s.conn = nil
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// initSchema creates the tables and indexes. Idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		date TEXT NOT NULL,
		location TEXT,
		organizer_id TEXT NOT NULL,
		organizer_name TEXT,
		is_all_day INTEGER NOT NULL DEFAULT 0,
		tags TEXT,  -- JSON array
		max_attendees INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attendances (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		user_name TEXT,
		user_email TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (event_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_events_organizer ON events(organizer_id);
	CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);
	CREATE INDEX IF NOT EXISTS idx_attendances_event ON attendances(event_id);
	CREATE INDEX IF NOT EXISTS idx_attendances_created ON attendances(created_at);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return nil
}

// UpsertEvent inserts or overwrites an event keyed by id.
func (s *Store) UpsertEvent(ctx context.Context, event *types.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	tagsJSON, err := json.Marshal(event.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
	INSERT INTO events (
		id, title, description, date, location, organizer_id,
		organizer_name, is_all_day, tags, max_attendees, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		date = excluded.date,
		location = excluded.location,
		organizer_name = excluded.organizer_name,
		is_all_day = excluded.is_all_day,
		tags = excluded.tags,
		max_attendees = excluded.max_attendees,
		updated_at = excluded.updated_at
	`

	_, err = s.conn.ExecContext(ctx, query,
		event.ID,
		event.Title,
		event.Description,
		event.Date.UTC().Format(time.RFC3339),
		event.Location,
		event.OrganizerID,
		event.OrganizerName,
		boolToInt(event.IsAllDay),
		string(tagsJSON),
		intPtrToNull(event.MaxAttendees),
		event.CreatedAt.UTC().Format(time.RFC3339),
		event.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert event %s: %w", event.ID, err)
	}
	return nil
}

// EventsForOrganizer returns cached events for one organizer, or all
// cached events when organizerID is empty. Sorted by date ascending.
func (s *Store) EventsForOrganizer(ctx context.Context, organizerID string) ([]types.Event, error) {
	query := `
	SELECT id, title, description, date, location, organizer_id,
	       organizer_name, is_all_day, tags, max_attendees, created_at, updated_at
	FROM events
	`
	var args []any
	if organizerID != "" {
		query += " WHERE organizer_id = ?"
		args = append(args, organizerID)
	}
	query += " ORDER BY date ASC, id ASC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// EventByID returns a cached event, or (nil, nil) when absent.
func (s *Store) EventByID(ctx context.Context, id string) (*types.Event, error) {
	query := `
	SELECT id, title, description, date, location, organizer_id,
	       organizer_name, is_all_day, tags, max_attendees, created_at, updated_at
	FROM events
	WHERE id = ?
	`
	rows, err := s.conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query event %s: %w", id, err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// DeleteEvent removes an event and its attendances from the cache.
// Idempotent.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM attendances WHERE event_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete attendances for event %s: %w", id, err)
	}
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete event %s: %w", id, err)
	}
	return nil
}

// UpsertAttendance inserts or overwrites an attendance keyed by id,
// evicting any stale row holding the same (event_id, user_id) natural key
// under a different id.
func (s *Store) UpsertAttendance(ctx context.Context, att *types.Attendance) error {
	if err := att.Validate(); err != nil {
		return fmt.Errorf("invalid attendance: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	evict := `DELETE FROM attendances WHERE event_id = ? AND user_id = ? AND id <> ?`
	if _, err := tx.ExecContext(ctx, evict, att.EventID, att.UserID, att.ID); err != nil {
		return fmt.Errorf("failed to evict stale attendance: %w", err)
	}

	query := `
	INSERT INTO attendances (id, event_id, user_id, status, user_name, user_email, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		user_name = excluded.user_name,
		user_email = excluded.user_email,
		created_at = excluded.created_at
	`
	_, err = tx.ExecContext(ctx, query,
		att.ID,
		att.EventID,
		att.UserID,
		string(att.Status),
		att.UserName,
		att.UserEmail,
		att.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert attendance %s: %w", att.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attendance upsert: %w", err)
	}
	return nil
}

// AttendancesForEvent returns cached attendances for one event, most
// recent first. An empty eventID returns all cached attendances.
func (s *Store) AttendancesForEvent(ctx context.Context, eventID string) ([]types.Attendance, error) {
	query := `
	SELECT id, event_id, user_id, status, user_name, user_email, created_at
	FROM attendances
	`
	var args []any
	if eventID != "" {
		query += " WHERE event_id = ?"
		args = append(args, eventID)
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendances: %w", err)
	}
	defer rows.Close()

	return scanAttendances(rows)
}

// AttendanceByID returns a cached attendance, or (nil, nil) when absent.
func (s *Store) AttendanceByID(ctx context.Context, id string) (*types.Attendance, error) {
	query := `
	SELECT id, event_id, user_id, status, user_name, user_email, created_at
	FROM attendances
	WHERE id = ?
	`
	rows, err := s.conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance %s: %w", id, err)
	}
	defer rows.Close()

	atts, err := scanAttendances(rows)
	if err != nil {
		return nil, err
	}
	if len(atts) == 0 {
		return nil, nil
	}
	return &atts[0], nil
}

// AttendanceByVoter looks up the attendance holding the (event, user)
// natural key, or (nil, nil) when absent.
func (s *Store) AttendanceByVoter(ctx context.Context, eventID, userID string) (*types.Attendance, error) {
	query := `
	SELECT id, event_id, user_id, status, user_name, user_email, created_at
	FROM attendances
	WHERE event_id = ? AND user_id = ?
	`
	rows, err := s.conn.QueryContext(ctx, query, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance for event %s user %s: %w", eventID, userID, err)
	}
	defer rows.Close()

	atts, err := scanAttendances(rows)
	if err != nil {
		return nil, err
	}
	if len(atts) == 0 {
		return nil, nil
	}
	return &atts[0], nil
}

// DeleteAttendance removes an attendance from the cache. Idempotent.
func (s *Store) DeleteAttendance(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM attendances WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete attendance %s: %w", id, err)
	}
	return nil
}

// ClearAll wipes both tables. Called on sign-out so data never leaks
// across sessions of different users on the same device.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"attendances", "events"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}

// Stats describes the cache contents for the status command.
type Stats struct {
	Events      int
	Attendances int
}

// GetStats returns row counts for both tables.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&st.Events); err != nil {
		return st, fmt.Errorf("failed to count events: %w", err)
	}
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM attendances").Scan(&st.Attendances); err != nil {
		return st, fmt.Errorf("failed to count attendances: %w", err)
	}
	return st, nil
}

// scanEvents reads event rows into domain structs.
func scanEvents(rows *sql.Rows) ([]types.Event, error) {
	var events []types.Event

	for rows.Next() {
		var (
			e         types.Event
			date      string
			isAllDay  int
			tagsJSON  sql.NullString
			maxAtt    sql.NullInt64
			createdAt string
			updatedAt string
		)

		err := rows.Scan(
			&e.ID, &e.Title, &e.Description, &date, &e.Location,
			&e.OrganizerID, &e.OrganizerName, &isAllDay, &tagsJSON,
			&maxAtt, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		e.IsAllDay = isAllDay != 0
		e.Date = parseTime(date)
		e.CreatedAt = parseTime(createdAt)
		e.UpdatedAt = parseTime(updatedAt)
		e.Tags = parseTags(tagsJSON)
		if maxAtt.Valid {
			n := int(maxAtt.Int64)
			e.MaxAttendees = &n
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// scanAttendances reads attendance rows into domain structs.
func scanAttendances(rows *sql.Rows) ([]types.Attendance, error) {
	var atts []types.Attendance

	for rows.Next() {
		var (
			a         types.Attendance
			status    string
			createdAt string
		)
		err := rows.Scan(&a.ID, &a.EventID, &a.UserID, &status, &a.UserName, &a.UserEmail, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		a.Status = types.AttendanceStatus(status)
		a.CreatedAt = parseTime(createdAt)
		atts = append(atts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendances: %w", err)
	}
	return atts, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTags(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" || ns.String == "null" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(ns.String), &tags); err != nil {
		return []string{}
	}
	return tags
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intPtrToNull(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
