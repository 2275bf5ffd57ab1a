// Package history records playback sessions in a SQLite database under the
// XDG data directory.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/llehouerou/ripple/internal/db"
)

const (
	appName    = "ripple"
	dbFileName = "history.db"
)

// ErrNotFound is returned when no play matches.
var ErrNotFound = errors.New("play not found")

// Outcomes recorded when a play ends.
const (
	OutcomeFinished = "finished"
	OutcomeStopped  = "stopped"
	OutcomeFailed   = "failed"
	OutcomeReplaced = "replaced"
)

// Play is written when a session starts.
type Play struct {
	Session string
	URL     string
	Live    bool
}

// End is written when a session ends.
type End struct {
	Outcome  string
	Code     int
	Status   int
	Message  string
	Position time.Duration
	Duration time.Duration
}

// Entry is one recorded play. EndedAt is nil while the play is open.
type Entry struct {
	ID        int64
	Session   string
	URL       string
	Live      bool
	StartedAt time.Time
	EndedAt   *time.Time
	Outcome   string
	Code      int
	Status    int
	Message   string
	Position  time.Duration
	Duration  time.Duration
}

// Store is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultPath returns the database path in the XDG data directory.
func DefaultPath() (string, error) {
	return xdg.DataFile(filepath.Join(appName, dbFileName))
}

// Open opens or creates the database at path. An empty path uses
// DefaultPath; ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite has a single writer and :memory: is per connection.
	conn.SetMaxOpenConns(1)

	if err := initSchema(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: conn, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records the start of a play and returns its id.
func (s *Store) Begin(ctx context.Context, p Play) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO plays (session, url, live, started_at)
		VALUES (?, ?, ?, ?)
	`, p.Session, p.URL, p.Live, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Finish closes the play id. Finishing an already closed play keeps the first
// outcome and returns nil.
func (s *Store) Finish(ctx context.Context, id int64, e End) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var ended sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT ended_at FROM plays WHERE id = ?`, id).Scan(&ended)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if ended.Valid {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE plays SET
				ended_at = ?, outcome = ?, code = ?, status = ?, message = ?,
				position_ms = ?, duration_ms = ?
			WHERE id = ?
		`, s.now().UnixMilli(), e.Outcome, e.Code, e.Status, e.Message,
			e.Position.Milliseconds(), e.Duration.Milliseconds(), id)
		return err
	})
}

// Get returns the play id.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectEntry+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Recent returns up to limit plays, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectEntry+` ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LastPosition returns where the most recent stopped play of url ended.
func (s *Store) LastPosition(ctx context.Context, url string) (time.Duration, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `
		SELECT position_ms FROM plays
		WHERE url = ? AND outcome = ?
		ORDER BY ended_at DESC, id DESC LIMIT 1
	`, url, OutcomeStopped).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Clear deletes every play and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plays`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectEntry = `
	SELECT id, session, url, live, started_at, ended_at, outcome, code, status,
		message, position_ms, duration_ms
	FROM plays`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e          Entry
		startedAt  int64
		endedAt    sql.NullInt64
		outcome    sql.NullString
		code       sql.NullInt64
		status     sql.NullInt64
		message    sql.NullString
		positionMs int64
		durationMs int64
	)
	err := row.Scan(&e.ID, &e.Session, &e.URL, &e.Live, &startedAt, &endedAt,
		&outcome, &code, &status, &message, &positionMs, &durationMs)
	if err != nil {
		return Entry{}, err
	}
	e.StartedAt = time.UnixMilli(startedAt)
	e.EndedAt = db.NullTime(endedAt)
	e.Outcome = db.NullStringValue(outcome)
	e.Code = int(db.NullInt64Value(code))
	e.Status = int(db.NullInt64Value(status))
	e.Message = db.NullStringValue(message)
	e.Position = time.Duration(positionMs) * time.Millisecond
	e.Duration = time.Duration(durationMs) * time.Millisecond
	return e, nil
}
