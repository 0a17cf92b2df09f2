package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			delegated_signer TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			is_active INTEGER NOT NULL,
			record BLOB NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner, created_at)`,
		`CREATE TABLE IF NOT EXISTS custody (
			session_id TEXT PRIMARY KEY,
			state TEXT NOT NULL DEFAULT 'resident',
			commit_seq INTEGER NOT NULL DEFAULT 0,
			delegated_at DATETIME,
			last_committed_at DATETIME,
			returned_at DATETIME,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_custody_state ON custody(state)`,
		`CREATE TABLE IF NOT EXISTS monitors (
			session_id TEXT PRIMARY KEY,
			pool_ref TEXT NOT NULL,
			position_ref TEXT NOT NULL,
			record BLOB NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session record with resident custody.
func (s *SQLiteStore) CreateSession(ctx context.Context, id uuid.UUID, session domain.Session, createdAt time.Time) error {
	record, err := session.MarshalBinary()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, owner, delegated_signer, expires_at, is_active, record, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), session.Owner.String(), session.DelegatedSigner.String(), session.ExpiresAt, session.IsActive, record, createdAt, createdAt); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO custody (session_id, state) VALUES (?, ?)`,
		id.String(), domain.CustodyResident); err != nil {
		return fmt.Errorf("failed to insert custody: %w", err)
	}
	return tx.Commit()
}

// GetSessionRecord returns the committed record bytes and custody for a
// session, or nil if it does not exist.
func (s *SQLiteStore) GetSessionRecord(ctx context.Context, id uuid.UUID) ([]byte, *domain.Custody, error) {
	var record []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM sessions WHERE session_id = ?`, id.String()).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	custody, err := s.GetCustody(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if custody == nil {
		return nil, nil, fmt.Errorf("session %s has no custody row", id)
	}
	return record, custody, nil
}

// UpdateSessionRecord overwrites the record while custody is still expect.
// Any other custody state is a protocol violation.
func (s *SQLiteStore) UpdateSessionRecord(ctx context.Context, id uuid.UUID, record []byte, expect domain.CustodyState) error {
	if expect.OnFastLayer() {
		return fmt.Errorf("%w: base layer cannot be written while delegated", domain.ErrProtocolStateViolation)
	}
	var session domain.Session
	if err := session.UnmarshalBinary(record); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET record = ?, is_active = ?, updated_at = ?
		 WHERE session_id = ? AND EXISTS (SELECT 1 FROM custody c WHERE c.session_id = sessions.session_id AND c.state = ?)`,
		record, session.IsActive, time.Now(), id.String(), expect)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.custodyMismatch(ctx, id, expect)
	}
	return nil
}

// ListSessions lists the owner's sessions as committed to the base layer.
func (s *SQLiteStore) ListSessions(ctx context.Context, owner domain.Identity) ([]SessionEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.session_id, s.record, s.created_at, c.state, c.commit_seq, c.delegated_at, c.last_committed_at, c.returned_at
		 FROM sessions s JOIN custody c ON c.session_id = s.session_id
		 WHERE s.owner = ? ORDER BY s.created_at ASC`, owner.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SessionEntry
	for rows.Next() {
		var (
			rawID  string
			record []byte
			entry  SessionEntry
		)
		var delegatedAt, committedAt, returnedAt sql.NullTime
		if err := rows.Scan(&rawID, &record, &entry.CreatedAt, &entry.Custody.State, &entry.Custody.CommitSeq, &delegatedAt, &committedAt, &returnedAt); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, err
		}
		if err := entry.Session.UnmarshalBinary(record); err != nil {
			return nil, err
		}
		entry.SessionID = id
		entry.Custody.SessionID = id
		entry.Custody.DelegatedAt = nullTime(delegatedAt)
		entry.Custody.LastCommittedAt = nullTime(committedAt)
		entry.Custody.ReturnedAt = nullTime(returnedAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListDelegatedSessions returns the IDs of sessions whose custody is on the
// fast layer.
func (s *SQLiteStore) ListDelegatedSessions(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM custody WHERE state = ? ORDER BY session_id`, domain.CustodyDelegated)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetCustody retrieves custody bookkeeping for a session.
func (s *SQLiteStore) GetCustody(ctx context.Context, id uuid.UUID) (*domain.Custody, error) {
	return getCustody(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getCustody(ctx context.Context, q queryer, id uuid.UUID) (*domain.Custody, error) {
	custody := domain.Custody{SessionID: id}
	var delegatedAt, committedAt, returnedAt sql.NullTime
	err := q.QueryRowContext(ctx,
		`SELECT state, commit_seq, delegated_at, last_committed_at, returned_at FROM custody WHERE session_id = ?`,
		id.String()).Scan(&custody.State, &custody.CommitSeq, &delegatedAt, &committedAt, &returnedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	custody.DelegatedAt = nullTime(delegatedAt)
	custody.LastCommittedAt = nullTime(committedAt)
	custody.ReturnedAt = nullTime(returnedAt)
	return &custody, nil
}

// SetCustody moves custody from one state to another without touching the
// record. It fails with ErrProtocolStateViolation if custody is not in from.
func (s *SQLiteStore) SetCustody(ctx context.Context, id uuid.UUID, from, to domain.CustodyState, at time.Time) (domain.Custody, error) {
	query := `UPDATE custody SET state = ? WHERE session_id = ? AND state = ?`
	args := []any{to, id.String(), from}
	switch to {
	case domain.CustodyDelegated:
		query = `UPDATE custody SET state = ?, delegated_at = ? WHERE session_id = ? AND state = ?`
		args = []any{to, at, id.String(), from}
	case domain.CustodyReturned:
		query = `UPDATE custody SET state = ?, returned_at = ? WHERE session_id = ? AND state = ?`
		args = []any{to, at, id.String(), from}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Custody{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Custody{}, err
	}
	if n == 0 {
		return domain.Custody{}, s.custodyMismatch(ctx, id, from)
	}
	custody, err := s.GetCustody(ctx, id)
	if err != nil {
		return domain.Custody{}, err
	}
	return *custody, nil
}

// CommitSessionRecord writes a delegated session's fast-layer record to the
// base layer and moves custody to `to` in one transaction. A record equal to
// the stored one is not rewritten and does not advance the commit sequence.
func (s *SQLiteStore) CommitSessionRecord(ctx context.Context, id uuid.UUID, record []byte, to domain.CustodyState, at time.Time) (domain.Custody, bool, error) {
	var session domain.Session
	if err := session.UnmarshalBinary(record); err != nil {
		return domain.Custody{}, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Custody{}, false, err
	}
	defer tx.Rollback()

	custody, err := getCustody(ctx, tx, id)
	if err != nil {
		return domain.Custody{}, false, err
	}
	if custody == nil {
		return domain.Custody{}, false, domain.ErrSessionNotFound
	}
	if custody.State != domain.CustodyDelegated {
		return domain.Custody{}, false, fmt.Errorf("%w: commit requires delegated custody, have %s", domain.ErrProtocolStateViolation, custody.State)
	}

	var current []byte
	if err := tx.QueryRowContext(ctx, `SELECT record FROM sessions WHERE session_id = ?`, id.String()).Scan(&current); err != nil {
		return domain.Custody{}, false, err
	}

	changed := !bytes.Equal(current, record)
	if changed {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET record = ?, is_active = ?, updated_at = ? WHERE session_id = ?`,
			record, session.IsActive, at, id.String()); err != nil {
			return domain.Custody{}, false, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE custody SET commit_seq = commit_seq + 1, last_committed_at = ? WHERE session_id = ?`,
			at, id.String()); err != nil {
			return domain.Custody{}, false, err
		}
	}
	if to != domain.CustodyDelegated {
		if _, err := tx.ExecContext(ctx,
			`UPDATE custody SET state = ?, returned_at = ? WHERE session_id = ?`,
			to, at, id.String()); err != nil {
			return domain.Custody{}, false, err
		}
	}

	updated, err := getCustody(ctx, tx, id)
	if err != nil {
		return domain.Custody{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Custody{}, false, err
	}
	return *updated, changed, nil
}

func (s *SQLiteStore) custodyMismatch(ctx context.Context, id uuid.UUID, expect domain.CustodyState) error {
	custody, err := s.GetCustody(ctx, id)
	if err != nil {
		return err
	}
	if custody == nil {
		return domain.ErrSessionNotFound
	}
	return fmt.Errorf("%w: expected custody %s, have %s", domain.ErrProtocolStateViolation, expect, custody.State)
}

// CreateMonitor inserts the session's monitor. A session has at most one.
func (s *SQLiteStore) CreateMonitor(ctx context.Context, monitor domain.Monitor, createdAt time.Time) error {
	record, err := monitor.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitors (session_id, pool_ref, position_ref, record, created_at) VALUES (?, ?, ?, ?, ?)`,
		monitor.SessionRef.String(), monitor.PoolRef.String(), monitor.PositionRef.String(), record, createdAt)
	if isConstraint(err, sqlite3.ErrConstraintPrimaryKey) {
		return domain.ErrMonitorExists
	}
	return err
}

// GetMonitor retrieves the monitor registered for a session.
func (s *SQLiteStore) GetMonitor(ctx context.Context, sessionID uuid.UUID) (*domain.Monitor, error) {
	var record []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM monitors WHERE session_id = ?`, sessionID.String()).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var monitor domain.Monitor
	if err := monitor.UnmarshalBinary(record); err != nil {
		return nil, err
	}
	return &monitor, nil
}

// UpdateMonitor overwrites a monitor's observed state.
func (s *SQLiteStore) UpdateMonitor(ctx context.Context, monitor domain.Monitor) error {
	record, err := monitor.MarshalBinary()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitors SET record = ? WHERE session_id = ?`, record, monitor.SessionRef.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrMonitorNotFound
	}
	return nil
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, session_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.SessionID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a session.
func (s *SQLiteStore) GetEvents(ctx context.Context, sessionID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, session_id, ts, type, payload FROM events WHERE session_id = ?`
	args := []interface{}{sessionID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(` AND type IN (%s)`, strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.SessionID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			event.Payload = []byte(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}
