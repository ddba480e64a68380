// Package store keeps a SQLite history of soak runs and their cycles.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

type Store struct {
	db *sql.DB
}

type RunRecord struct {
	ID              string
	InstanceID      string
	Project         string
	Profile         string
	Port            string
	BaudRate        int
	Cycles          int
	Delay           time.Duration
	Commands        []string
	Status          string
	TotalCommands   int
	Errors          int
	Timeouts        int
	CyclesCompleted int
	StartedAt       time.Time
	FinishedAt      time.Time
}

type CycleRecord struct {
	Cycle      int
	Accepted   bool
	Commands   int
	Errors     int
	Timeouts   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) CreateRun(ctx context.Context, rec RunRecord) error {
	commands, err := json.Marshal(rec.Commands)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	if rec.Status == "" {
		rec.Status = StatusRunning
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, instance_id, project, profile, port, baud_rate, cycles, delay_ms, commands, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.InstanceID,
		rec.Project,
		rec.Profile,
		rec.Port,
		rec.BaudRate,
		rec.Cycles,
		rec.Delay.Milliseconds(),
		string(commands),
		rec.Status,
		formatTime(rec.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) AddCycle(ctx context.Context, runID string, r domain.CycleResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles
		(run_id, cycle, accepted, commands, errors, timeouts, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, cycle) DO NOTHING
	`,
		runID,
		r.Cycle,
		r.Accepted,
		r.Counters.Commands,
		r.Counters.Errors,
		r.Counters.Timeouts,
		formatTime(r.StartedAt),
		formatTime(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("add cycle %d: %w", r.Cycle, err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, runID, status string, sum domain.Summary) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, total_commands = ?, errors = ?, timeouts = ?, cycles_completed = ?, finished_at = ?
		WHERE id = ?
	`,
		status,
		sum.Commands,
		sum.Errors,
		sum.Timeouts,
		sum.CyclesCompleted,
		formatTime(time.Now()),
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: run %s not found", runID)
	}
	return nil
}

// ListRuns returns the most recent runs first. instanceID filters when set.
func (s *Store) ListRuns(ctx context.Context, instanceID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, project, profile, port, baud_rate, cycles, delay_ms, commands,
		       status, total_commands, errors, timeouts, cycles_completed, started_at, finished_at
		FROM runs
		WHERE ? = '' OR instance_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, instanceID, instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			rec      RunRecord
			delayMS  int64
			commands string
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(
			&rec.ID, &rec.InstanceID, &rec.Project, &rec.Profile, &rec.Port,
			&rec.BaudRate, &rec.Cycles, &delayMS, &commands,
			&rec.Status, &rec.TotalCommands, &rec.Errors, &rec.Timeouts, &rec.CyclesCompleted,
			&started, &finished,
		); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}

		rec.Delay = time.Duration(delayMS) * time.Millisecond
		if err := json.Unmarshal([]byte(commands), &rec.Commands); err != nil {
			return nil, fmt.Errorf("list runs: decode commands of %s: %w", rec.ID, err)
		}
		rec.StartedAt = parseTime(started)
		if finished.Valid {
			rec.FinishedAt = parseTime(finished.String)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (s *Store) Cycles(ctx context.Context, runID string) ([]CycleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle, accepted, commands, errors, timeouts, started_at, finished_at
		FROM cycles
		WHERE run_id = ?
		ORDER BY cycle
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var cycles []CycleRecord
	for rows.Next() {
		var (
			c                 CycleRecord
			started, finished string
		)
		if err := rows.Scan(&c.Cycle, &c.Accepted, &c.Commands, &c.Errors, &c.Timeouts, &started, &finished); err != nil {
			return nil, fmt.Errorf("list cycles: %w", err)
		}
		c.StartedAt = parseTime(started)
		c.FinishedAt = parseTime(finished)
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	return cycles, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
