// Package journal keeps an audit trail of every reminder delivery attempt.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// FileName is the journal database name inside the data directory.
const FileName = "journal.db"

// Delivery is one attempt to notify about a due reminder.
type Delivery struct {
	ID         int64      `json:"id"`
	ReminderID uuid.UUID  `json:"reminder_id"`
	Title      string     `json:"title"`
	DueAt      time.Time  `json:"due_at"`
	FiredAt    time.Time  `json:"fired_at"`
	Success    bool       `json:"success"`
	Error      string     `json:"error,omitempty"`
	Next       *time.Time `json:"next_trigger,omitempty"`
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite single writer
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS deliveries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  reminder_id TEXT NOT NULL,
  title TEXT NOT NULL,
  due_at DATETIME NOT NULL,
  fired_at DATETIME NOT NULL,
  success INTEGER NOT NULL DEFAULT 0,
  error TEXT NOT NULL DEFAULT '',
  next_trigger DATETIME
);
CREATE INDEX IF NOT EXISTS idx_deliveries_fired ON deliveries(fired_at DESC);
CREATE INDEX IF NOT EXISTS idx_deliveries_reminder ON deliveries(reminder_id, fired_at DESC);
`
	_, err := db.Exec(schema)
	return err
}

type Repository interface {
	Record(ctx context.Context, d Delivery) (int64, error)
	Recent(ctx context.Context, limit int) ([]Delivery, error)
	ForReminder(ctx context.Context, id uuid.UUID, limit int) ([]Delivery, error)
	Prune(ctx context.Context, before time.Time) (int, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

func (r *sqliteRepo) Record(ctx context.Context, d Delivery) (int64, error) {
	var next any
	if d.Next != nil {
		next = d.Next.UTC()
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO deliveries (reminder_id,title,due_at,fired_at,success,error,next_trigger)
VALUES (?,?,?,?,?,?,?)`,
		d.ReminderID.String(), d.Title, d.DueAt.UTC(), d.FiredAt.UTC(), d.Success, d.Error, next)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const selectDeliveries = `
SELECT id,reminder_id,title,due_at,fired_at,success,error,next_trigger
FROM deliveries`

func (r *sqliteRepo) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := r.db.QueryContext(ctx, selectDeliveries+` ORDER BY fired_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanDeliveries(rows)
}

func (r *sqliteRepo) ForReminder(ctx context.Context, id uuid.UUID, limit int) ([]Delivery, error) {
	rows, err := r.db.QueryContext(ctx, selectDeliveries+` WHERE reminder_id=? ORDER BY fired_at DESC, id DESC LIMIT ?`, id.String(), limit)
	if err != nil {
		return nil, err
	}
	return scanDeliveries(rows)
}

func (r *sqliteRepo) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM deliveries WHERE fired_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanDeliveries(rows *sql.Rows) ([]Delivery, error) {
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var (
			d    Delivery
			id   string
			next sql.NullTime
		)
		if err := rows.Scan(&d.ID, &id, &d.Title, &d.DueAt, &d.FiredAt, &d.Success, &d.Error, &next); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("delivery %d: %w", d.ID, err)
		}
		d.ReminderID = parsed
		if next.Valid {
			t := next.Time
			d.Next = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
