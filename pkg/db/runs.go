package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run kinds.
const (
	KindCritical = "critical"
	KindAnalyze  = "analyze"
	KindOptimize = "optimize"
)

// Run is one recorded invocation.
type Run struct {
	RunID          int64
	URL            string
	Domain         string
	Kind           string
	OriginalScore  *float64
	OptimizedScore *float64
	CriticalBytes  int
	SelectedCount  int
	OutputDir      string
	CreatedAt      time.Time
}

// InsertRun records r, returning the new run_id.
func (db *DB) InsertRun(r Run) (int64, error) {
	if r.URL == "" || r.Kind == "" {
		return 0, fmt.Errorf("failed to insert run: url and kind are required")
	}
	result, err := db.Exec(`
		INSERT INTO runs (url, domain, kind, original_score, optimized_score,
		                  critical_bytes, selected_count, output_dir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.URL, r.Domain, r.Kind, nullFloat(r.OriginalScore), nullFloat(r.OptimizedScore),
		r.CriticalBytes, r.SelectedCount, r.OutputDir)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}
	return id, nil
}

const runColumns = `run_id, url, domain, kind, original_score, optimized_score,
	       critical_bytes, selected_count, output_dir, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	var orig, opt sql.NullFloat64
	var outputDir sql.NullString
	if err := s.Scan(&r.RunID, &r.URL, &r.Domain, &r.Kind, &orig, &opt,
		&r.CriticalBytes, &r.SelectedCount, &outputDir, &r.CreatedAt); err != nil {
		return Run{}, err
	}
	if orig.Valid {
		r.OriginalScore = &orig.Float64
	}
	if opt.Valid {
		r.OptimizedScore = &opt.Float64
	}
	r.OutputDir = outputDir.String
	return r, nil
}

// ListRuns returns runs newest first. A non-positive limit returns all.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, run_id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recent run for url, or nil when there is none.
func (db *DB) LatestRun(url string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE url = ? ORDER BY created_at DESC, run_id DESC LIMIT 1`, url)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return &r, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
