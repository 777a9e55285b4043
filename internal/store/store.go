package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/errander/internal/executor"
)

// Store is the durable run repository over Postgres.
type Store struct {
	DB *sql.DB
}

// NewWithDSN opens and pings a Postgres connection.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Create(ctx context.Context, rec *executor.RunRecord) error {
	logJSON, artJSON, err := encode(rec)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO runs (id, status, log, artifacts, started_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, string(rec.Status), logJSON, artJSON, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, rec *executor.RunRecord) error {
	logJSON, artJSON, err := encode(rec)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE runs SET status = $2, log = $3, artifacts = $4, finished_at = $5 WHERE id = $1`,
		rec.ID, string(rec.Status), logJSON, artJSON, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", rec.ID)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*executor.RunRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, status, log, artifacts, started_at, finished_at FROM runs WHERE id = $1`, id)
	rec, err := scan(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get run: %w", err)
	}
	return rec, true, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]*executor.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, status, log, artifacts, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*executor.RunRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func encode(rec *executor.RunRecord) ([]byte, []byte, error) {
	logJSON, err := json.Marshal(rec.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("encode log: %w", err)
	}
	artJSON, err := json.Marshal(rec.Artifacts)
	if err != nil {
		return nil, nil, fmt.Errorf("encode artifacts: %w", err)
	}
	return logJSON, artJSON, nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scan(row scannable) (*executor.RunRecord, error) {
	var rec executor.RunRecord
	var status string
	var logJSON, artJSON []byte
	var finished sql.NullTime
	if err := row.Scan(&rec.ID, &status, &logJSON, &artJSON, &rec.StartedAt, &finished); err != nil {
		return nil, err
	}
	rec.Status = executor.Status(status)
	if err := json.Unmarshal(logJSON, &rec.Log); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	if len(artJSON) > 0 {
		if err := json.Unmarshal(artJSON, &rec.Artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts: %w", err)
		}
	}
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	return &rec, nil
}

var _ executor.RunRepository = (*Store)(nil)
