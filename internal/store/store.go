// Package store persists completed research runs. Postgres is the primary
// backend; Redis serves as a lightweight alternative for deployments without
// a database. Persistence is best effort: a store failure never fails a run.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"deepscribe/internal/engine"
)

// ReportRecord is a persisted run.
type ReportRecord struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Title     string    `json:"title"`
	Report    string    `json:"report"`
	Topics    []string  `json:"topics"`
	Sources   int       `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportStore is the persistence port shared by the CLI and HTTP surfaces.
type ReportStore interface {
	SaveReport(ctx context.Context, res engine.RunResult) error
	GetReport(ctx context.Context, id string) (ReportRecord, error)
	ListReports(ctx context.Context, limit int) ([]ReportRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned when a report id does not exist.
var ErrNotFound = fmt.Errorf("report not found")

// Postgres stores reports in the reports table.
type Postgres struct {
	DB *sql.DB
}

// NewPostgres opens a connection pool and verifies it.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Postgres{DB: db}, nil
}

func (p *Postgres) SaveReport(ctx context.Context, res engine.RunResult) error {
	topics, err := json.Marshal(res.Topics)
	if err != nil {
		return err
	}
	_, err = p.DB.ExecContext(ctx, `
        INSERT INTO reports (id, query, title, report, topics, source_count, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO NOTHING`,
		res.RunID, res.Query, res.Title, res.Report, topics, len(res.Sources), res.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}
	return nil
}

func (p *Postgres) GetReport(ctx context.Context, id string) (ReportRecord, error) {
	row := p.DB.QueryRowContext(ctx, `
        SELECT id, query, title, report, topics, source_count, created_at
        FROM reports WHERE id = $1`, id)
	rec, err := scanReport(row)
	if err == sql.ErrNoRows {
		return ReportRecord{}, ErrNotFound
	}
	return rec, err
}

func (p *Postgres) ListReports(ctx context.Context, limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.DB.QueryContext(ctx, `
        SELECT id, query, title, report, topics, source_count, created_at
        FROM reports ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var out []ReportRecord
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error { return p.DB.PingContext(ctx) }
func (p *Postgres) Close() error                   { return p.DB.Close() }

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(s scanner) (ReportRecord, error) {
	var rec ReportRecord
	var topics []byte
	if err := s.Scan(&rec.ID, &rec.Query, &rec.Title, &rec.Report, &topics, &rec.Sources, &rec.CreatedAt); err != nil {
		return ReportRecord{}, err
	}
	if len(topics) > 0 {
		if err := json.Unmarshal(topics, &rec.Topics); err != nil {
			return ReportRecord{}, fmt.Errorf("decoding topics: %w", err)
		}
	}
	return rec, nil
}
