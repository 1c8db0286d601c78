package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flow-metrics/metrics"
)

const (
	DefaultSchema = "flow_metrics"
	runsTable     = "runs"
)

// RunInsert is one analysis run to persist
type RunInsert struct {
	ID          string
	GeneratedAt time.Time
	Source      string
	Report      metrics.Report
}

// RunSummary is the headline of a persisted run
type RunSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	GeneratedAt time.Time `json:"generated_at"`
	Source      string    `json:"source"`
	SampleSize  int       `json:"sample_size"`
	WithCycle   int       `json:"with_cycle"`
	Excluded    int       `json:"excluded"`
	CycleMedian *float64  `json:"cycle_median"`
	CycleP85    *float64  `json:"cycle_p85"`
	LeadMedian  *float64  `json:"lead_median"`
}

type Postgres struct {
	pool   *pgxpool.Pool
	schema string
}

func NewPostgres(ctx context.Context, databaseURL, schema string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}

	if schema == "" {
		schema = DefaultSchema
	}
	return &Postgres{pool: pool, schema: schema}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) table() string {
	return qualifiedTable(p.schema)
}

func qualifiedTable(schema string) string {
	return pgx.Identifier{schema, runsTable}.Sanitize()
}

func schemaDDL(schema string) string {
	table := qualifiedTable(schema)
	return fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;
CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	generated_at TIMESTAMPTZ NOT NULL,
	source TEXT NOT NULL,
	sample_size INT NOT NULL,
	with_cycle INT NOT NULL,
	excluded INT NOT NULL,
	cycle_median DOUBLE PRECISION,
	cycle_p85 DOUBLE PRECISION,
	lead_median DOUBLE PRECISION,
	report JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_created_at_idx ON %s (created_at DESC);
`, pgx.Identifier{schema}.Sanitize(), table, table)
}

// EnsureSchema creates the schema and runs table when missing
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaDDL(p.schema)); err != nil {
		return fmt.Errorf("ensure history schema: %w", err)
	}
	return nil
}

// InsertRun stores a run and its full report, returning the run id
func (p *Postgres) InsertRun(ctx context.Context, run RunInsert) (string, error) {
	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}

	reportJSON, err := json.Marshal(run.Report)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	excluded := 0
	for _, n := range run.Report.Excluded {
		excluded += n
	}
	o := run.Report.Overall

	_, err = p.pool.Exec(
		ctx,
		fmt.Sprintf(`INSERT INTO %s (id, generated_at, source, sample_size, with_cycle, excluded,
		 cycle_median, cycle_p85, lead_median, report)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, p.table()),
		id,
		run.GeneratedAt,
		run.Source,
		o.SampleSize,
		o.WithCycle,
		excluded,
		o.CycleMedian,
		o.CycleP85,
		o.LeadMedian,
		reportJSON,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// ListRuns returns the most recent runs, newest first
func (p *Postgres) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := p.pool.Query(
		ctx,
		fmt.Sprintf(`SELECT id::text, created_at, generated_at, source, sample_size, with_cycle, excluded,
		 cycle_median, cycle_p85, lead_median
		 FROM %s
		 ORDER BY created_at DESC
		 LIMIT $1`, p.table()),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(
			&r.ID,
			&r.CreatedAt,
			&r.GeneratedAt,
			&r.Source,
			&r.SampleSize,
			&r.WithCycle,
			&r.Excluded,
			&r.CycleMedian,
			&r.CycleP85,
			&r.LeadMedian,
		); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadReport fetches the stored report of one run
func (p *Postgres) LoadReport(ctx context.Context, id string) (metrics.Report, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT report FROM %s WHERE id = $1`, p.table()), id).Scan(&payload)
	if err != nil {
		return metrics.Report{}, fmt.Errorf("load run %s: %w", id, err)
	}

	var report metrics.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return metrics.Report{}, fmt.Errorf("decode run %s: %w", id, err)
	}
	return report, nil
}
