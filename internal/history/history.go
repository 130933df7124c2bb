// Package history records analysis reports in a local SQLite database so
// successive runs of the same pipeline can be compared.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/errors"
	"github.com/felixgeelhaar/pipescope/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	report_id TEXT NOT NULL,
	pipeline TEXT NOT NULL,
	source_file TEXT NOT NULL,
	provider TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	job_count INTEGER NOT NULL,
	finding_count INTEGER NOT NULL,
	critical INTEGER NOT NULL,
	high INTEGER NOT NULL,
	duration_secs REAL NOT NULL,
	optimized_secs REAL NOT NULL,
	report_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_pipeline ON analyses(pipeline);
CREATE INDEX IF NOT EXISTS idx_analyses_report ON analyses(report_id);
`

// Entry is one recorded analysis
type Entry struct {
	Seq           int64           `json:"seq"`
	ReportID      string          `json:"report_id"`
	Pipeline      string          `json:"pipeline"`
	SourceFile    string          `json:"source_file"`
	Provider      domain.Provider `json:"provider"`
	RecordedAt    time.Time       `json:"recorded_at"`
	JobCount      int             `json:"job_count"`
	FindingCount  int             `json:"finding_count"`
	Critical      int             `json:"critical"`
	High          int             `json:"high"`
	DurationSecs  float64         `json:"duration_secs"`
	OptimizedSecs float64         `json:"optimized_secs"`
}

// Filter narrows List
type Filter struct {
	Pipeline string
	Limit    int
}

// Trend compares the two most recent analyses of a pipeline
type Trend struct {
	Previous           Entry   `json:"previous"`
	Latest             Entry   `json:"latest"`
	DurationDeltaSecs  float64 `json:"duration_delta_secs"`
	OptimizedDeltaSecs float64 `json:"optimized_delta_secs"`
	FindingDelta       int     `json:"finding_delta"`
}

// Store is a SQLite-backed analysis history
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Open creates or opens the history database at path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to create %s", filepath.Dir(path)), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file
func (s *Store) Path() string {
	return s.path
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores r and returns the new entry
func (s *Store) Record(ctx context.Context, r *report.AnalysisReport) (Entry, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal report: %w", err)
	}
	e := Entry{
		ReportID:      r.ID,
		Pipeline:      r.PipelineName,
		SourceFile:    r.SourceFile,
		Provider:      r.Provider,
		RecordedAt:    s.now().UTC(),
		JobCount:      r.JobCount,
		FindingCount:  len(r.Findings),
		Critical:      r.Summary.Critical,
		High:          r.Summary.High,
		DurationSecs:  r.TotalEstimatedDurationSecs,
		OptimizedSecs: r.OptimizedDurationSecs,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (report_id, pipeline, source_file, provider, recorded_at, job_count,
			finding_count, critical, high, duration_secs, optimized_secs, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ReportID, e.Pipeline, e.SourceFile, string(e.Provider), e.RecordedAt.Format(time.RFC3339Nano),
		e.JobCount, e.FindingCount, e.Critical, e.High, e.DurationSecs, e.OptimizedSecs, string(body))
	if err != nil {
		return Entry{}, fmt.Errorf("record analysis: %w", err)
	}
	if e.Seq, err = res.LastInsertId(); err != nil {
		return Entry{}, fmt.Errorf("record analysis: %w", err)
	}
	return e, nil
}

const entryColumns = `id, report_id, pipeline, source_file, provider, recorded_at, job_count,
	finding_count, critical, high, duration_secs, optimized_secs`

// List returns entries newest first
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM analyses`
	var args []any
	if f.Pipeline != "" {
		query += ` WHERE pipeline = ?`
		args = append(args, f.Pipeline)
	}
	query += ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return entries, nil
}

// Get returns the most recent report recorded under reportID
func (s *Store) Get(ctx context.Context, reportID string) (*report.AnalysisReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT report_json FROM analyses WHERE report_id = ? ORDER BY id DESC LIMIT 1`, reportID).Scan(&body)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeFileNotFound, fmt.Sprintf("no recorded report %s", reportID)).
			WithSuggestion("Run 'pipescope history' to list recorded reports")
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return report.Decode([]byte(body), s.path)
}

// Trend compares the latest two analyses of pipeline. ok is false when fewer
// than two are recorded.
func (s *Store) Trend(ctx context.Context, pipeline string) (Trend, bool, error) {
	entries, err := s.List(ctx, Filter{Pipeline: pipeline, Limit: 2})
	if err != nil || len(entries) < 2 {
		return Trend{}, false, err
	}
	latest, prev := entries[0], entries[1]
	return Trend{
		Previous:           prev,
		Latest:             latest,
		DurationDeltaSecs:  latest.DurationSecs - prev.DurationSecs,
		OptimizedDeltaSecs: latest.OptimizedSecs - prev.OptimizedSecs,
		FindingDelta:       latest.FindingCount - prev.FindingCount,
	}, true, nil
}

// Prune keeps the newest keep entries per pipeline and returns how many were removed
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM analyses WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY pipeline ORDER BY id DESC) AS rn FROM analyses
			) WHERE rn > ?
		)`, max(keep, 0))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e        Entry
		provider string
		recorded string
	)
	if err := row.Scan(&e.Seq, &e.ReportID, &e.Pipeline, &e.SourceFile, &provider, &recorded,
		&e.JobCount, &e.FindingCount, &e.Critical, &e.High, &e.DurationSecs, &e.OptimizedSecs); err != nil {
		return Entry{}, fmt.Errorf("scan analysis: %w", err)
	}
	e.Provider = domain.Provider(provider)
	t, err := time.Parse(time.RFC3339Nano, recorded)
	if err != nil {
		return Entry{}, fmt.Errorf("scan analysis: recorded_at %q: %w", recorded, err)
	}
	e.RecordedAt = t
	return e, nil
}
