// Package store keeps instantaneous power readings in a SQLite database
// and aggregates them per day.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"i4.energy/across/semgw/meter"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// MaxGap bounds how long a single sample is assumed to hold when
// estimating energy; a longer gap between readings is cut to MaxGap.
const MaxGap = 5 * time.Minute

// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// Summary aggregates the readings of one day.
type Summary struct {
	Day      string  `json:"day"`
	Samples  int     `json:"samples"`
	AvgWatts float64 `json:"avg_w"`
	MinWatts int32   `json:"min_w"`
	MaxWatts int32   `json:"max_w"`
	EnergyWh float64 `json:"energy_wh"`
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// One writer at a time; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Insert(ctx context.Context, r meter.Reading) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO readings (at_ms, watts, tid) VALUES (?, ?, ?)",
		r.Time.UnixMilli(), r.Watts, r.TID)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// Record makes the store a meter.Sink.
func (s *Store) Record(ctx context.Context, r meter.Reading) error {
	return s.Insert(ctx, r)
}

// Latest returns the most recent reading, or ErrNoReadings.
func (s *Store) Latest(ctx context.Context) (meter.Reading, error) {
	if s.closed.Load() {
		return meter.Reading{}, ErrClosed
	}

	var (
		at int64
		r  meter.Reading
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT at_ms, watts, tid FROM readings ORDER BY at_ms DESC, id DESC LIMIT 1",
	).Scan(&at, &r.Watts, &r.TID)
	if errors.Is(err, sql.ErrNoRows) {
		return meter.Reading{}, ErrNoReadings
	}
	if err != nil {
		return meter.Reading{}, fmt.Errorf("query latest reading: %w", err)
	}
	r.Time = time.UnixMilli(at)
	return r, nil
}

// DailySummary aggregates the calendar day containing day, in day's
// location. Energy is estimated by holding each sample until the next
// one, at most MaxGap. A day without readings yields ErrNoReadings.
func (s *Store) DailySummary(ctx context.Context, day time.Time) (Summary, error) {
	if s.closed.Load() {
		return Summary{}, ErrClosed
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	sum := Summary{Day: start.Format(time.DateOnly)}

	rows, err := s.db.QueryContext(ctx,
		"SELECT at_ms, watts FROM readings WHERE at_ms >= ? AND at_ms < ? ORDER BY at_ms, id",
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return Summary{}, fmt.Errorf("query readings for %s: %w", sum.Day, err)
	}
	defer rows.Close()

	var (
		total  int64
		prevAt int64
		prevW  int32
	)
	for rows.Next() {
		var (
			at int64
			w  int32
		)
		if err := rows.Scan(&at, &w); err != nil {
			return Summary{}, fmt.Errorf("scan reading: %w", err)
		}

		if sum.Samples == 0 {
			sum.MinWatts, sum.MaxWatts = w, w
		} else {
			sum.MinWatts = min(sum.MinWatts, w)
			sum.MaxWatts = max(sum.MaxWatts, w)
			held := min(time.Duration(at-prevAt)*time.Millisecond, MaxGap)
			sum.EnergyWh += float64(prevW) * held.Hours()
		}
		total += int64(w)
		sum.Samples++
		prevAt, prevW = at, w
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("read readings for %s: %w", sum.Day, err)
	}
	if sum.Samples == 0 {
		return Summary{}, fmt.Errorf("%s: %w", sum.Day, ErrNoReadings)
	}
	sum.AvgWatts = float64(total) / float64(sum.Samples)
	return sum, nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return s.db.Close()
}
