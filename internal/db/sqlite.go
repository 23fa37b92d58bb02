package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ukydev/intersection-twin/internal/controller"
	"github.com/ukydev/intersection-twin/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteEventStore persists controller events in a local SQLite file. It is
// used when no MongoDB is configured.
type SQLiteEventStore struct {
	db     *sql.DB
	unitID string
}

// OpenSQLite opens (creating if needed) the event database at path.
func OpenSQLite(path, unitID string) (*SQLiteEventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; the dispatcher is the only caller of Publish anyway.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		PRAGMA busy_timeout = 5000;
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			unit_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			lane INTEGER,
			from_lane INTEGER,
			message TEXT NOT NULL,
			timestamp_ns INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS events_unit_time ON events (unit_id, timestamp_ns DESC);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteEventStore{db: db, unitID: unitID}, nil
}

func nullLane(l *int) sql.NullInt64 {
	if l == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*l), Valid: true}
}

func laneFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// Publish stores ev.
func (s *SQLiteEventStore) Publish(ctx context.Context, ev controller.Event) error {
	rec := NewRecord(s.unitID, ev)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (id, unit_id, kind, lane, from_lane, message, timestamp_ns) VALUES (?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.UnitID, rec.Kind, nullLane(rec.Lane), nullLane(rec.From), rec.Message, rec.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit events of the unit, newest first.
func (s *SQLiteEventStore) Recent(ctx context.Context, limit int64) ([]models.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, unit_id, kind, lane, from_lane, message, timestamp_ns FROM events WHERE unit_id = ? ORDER BY timestamp_ns DESC LIMIT ?",
		s.unitID, limit)
	if err != nil {
		return nil, fmt.Errorf("find events: %w", err)
	}
	defer rows.Close()

	events := []models.EventRecord{}
	for rows.Next() {
		var (
			rec        models.EventRecord
			lane, from sql.NullInt64
			ns         int64
		)
		if err := rows.Scan(&rec.ID, &rec.UnitID, &rec.Kind, &lane, &from, &rec.Message, &ns); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		rec.Lane = laneFromNull(lane)
		rec.From = laneFromNull(from)
		rec.Timestamp = time.Unix(0, ns).UTC()
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

// Close closes the database.
func (s *SQLiteEventStore) Close() error {
	return s.db.Close()
}
