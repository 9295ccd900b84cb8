package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dsa110/mnc/pkg/mjd"
)

// Day is one stored daily report.
type Day struct {
	// Start is the UTC midnight the day begins at.
	Start     time.Time
	Blocks    int
	Observing int
	Fraction  float64
	Errors    int
	// Passes counts the blocks in which each criterion passed.
	Passes [3]int
	// Created is when the report was written.
	Created time.Time
}

// MJD returns the day's start as a Modified Julian Date.
func (d Day) MJD() float64 { return mjd.FromTime(d.Start) }

// ErrNotFound is returned by History.Get for a day without a report.
var ErrNotFound = errors.New("report: day not found")

// History persists daily reports in SQLite.
type History struct {
	db *sql.DB
}

// OpenHistory opens (creating if needed) the database at path.
func OpenHistory(path string) (*History, error) {
	if path == "" {
		return nil, fmt.Errorf("report: db path cannot be empty")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	h := &History{db: db}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: init schema: %w", err)
	}
	return h, nil
}

func (h *History) initSchema() error {
	_, err := h.db.Exec(`
	CREATE TABLE IF NOT EXISTS daily_fraction (
		start_unix INTEGER PRIMARY KEY,
		mjd        REAL    NOT NULL,
		blocks     INTEGER NOT NULL,
		observing  INTEGER NOT NULL,
		fraction   REAL    NOT NULL,
		errors     INTEGER NOT NULL,
		pass0      INTEGER NOT NULL,
		pass1      INTEGER NOT NULL,
		pass2      INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);`)
	return err
}

// Save writes d, replacing any earlier report for the same day.
func (h *History) Save(ctx context.Context, d Day) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO daily_fraction
			(start_unix, mjd, blocks, observing, fraction, errors, pass0, pass1, pass2, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (start_unix) DO UPDATE SET
			mjd = excluded.mjd,
			blocks = excluded.blocks,
			observing = excluded.observing,
			fraction = excluded.fraction,
			errors = excluded.errors,
			pass0 = excluded.pass0,
			pass1 = excluded.pass1,
			pass2 = excluded.pass2,
			created_at = excluded.created_at`,
		d.Start.Unix(), d.MJD(), d.Blocks, d.Observing, d.Fraction, d.Errors,
		d.Passes[0], d.Passes[1], d.Passes[2], d.Created.Unix())
	if err != nil {
		return fmt.Errorf("report: save %s: %w", d.Start.Format(time.DateOnly), err)
	}
	return nil
}

// Get returns the report for the day starting at start.
func (h *History) Get(ctx context.Context, start time.Time) (Day, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT start_unix, blocks, observing, fraction, errors, pass0, pass1, pass2, created_at
		FROM daily_fraction WHERE start_unix = ?`, start.Unix())
	d, err := scanDay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Day{}, ErrNotFound
	}
	if err != nil {
		return Day{}, fmt.Errorf("report: get %s: %w", start.Format(time.DateOnly), err)
	}
	return d, nil
}

// Recent returns up to n reports, newest first.
func (h *History) Recent(ctx context.Context, n int) ([]Day, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT start_unix, blocks, observing, fraction, errors, pass0, pass1, pass2, created_at
		FROM daily_fraction ORDER BY start_unix DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("report: recent: %w", err)
	}
	defer rows.Close()

	var out []Day
	for rows.Next() {
		d, err := scanDay(rows)
		if err != nil {
			return nil, fmt.Errorf("report: recent: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close closes the database.
func (h *History) Close() error { return h.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanDay(s scanner) (Day, error) {
	var d Day
	var start, created int64
	err := s.Scan(&start, &d.Blocks, &d.Observing, &d.Fraction, &d.Errors,
		&d.Passes[0], &d.Passes[1], &d.Passes[2], &created)
	if err != nil {
		return Day{}, err
	}
	d.Start = time.Unix(start, 0).UTC()
	d.Created = time.Unix(created, 0).UTC()
	return d, nil
}
