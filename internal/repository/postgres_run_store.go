package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"Rotator/internal/domain/models"
	"Rotator/internal/domain/repository"
)

const stateRowID = "current"

// RunSchema is the DDL for the rebalance log and the state row.
var RunSchema = []string{
	`CREATE TABLE IF NOT EXISTS rebalance_log (
    id             BIGSERIAL PRIMARY KEY,
    run_id         TEXT NOT NULL UNIQUE,
    ts             TIMESTAMPTZ NOT NULL,
    finished_at    TIMESTAMPTZ,
    trigger_type   TEXT NOT NULL,
    regime         JSONB NOT NULL,
    scores         JSONB NOT NULL,
    targets        JSONB NOT NULL,
    orders         JSONB NOT NULL,
    account_equity DOUBLE PRECISION NOT NULL,
    success        BOOLEAN NOT NULL,
    error          TEXT,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS algorithm_state (
    id              TEXT PRIMARY KEY,
    last_rebalance  TIMESTAMPTZ,
    next_rebalance  TIMESTAMPTZ,
    current_targets JSONB,
    latest_scores   JSONB,
    regime          JSONB,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}

// PostgresRunStore implements RunStore with sqlx.
type PostgresRunStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPostgresRunStore(db *sqlx.DB, timeout time.Duration) *PostgresRunStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostgresRunStore{db: db, timeout: timeout}
}

func (s *PostgresRunStore) Init(ctx context.Context) error {
	for _, stmt := range RunSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init run schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresRunStore) AppendRebalanceLog(ctx context.Context, r *models.RebalanceResult) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	regime, err := jsonArg(r.Regime)
	if err != nil {
		return err
	}
	scores, err := jsonArg(orEmpty(r.Scores))
	if err != nil {
		return err
	}
	targets, err := jsonArg(orEmpty(r.Targets))
	if err != nil {
		return err
	}
	orders, err := jsonArg(orEmpty(r.OrdersPlaced))
	if err != nil {
		return err
	}

	var finished interface{}
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt
	}
	var errMsg interface{}
	if r.Error != "" {
		errMsg = r.Error
	}

	const q = `
		INSERT INTO rebalance_log
		(run_id, ts, finished_at, trigger_type, regime, scores, targets, orders, account_equity, success, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := s.db.ExecContext(ctx, q,
		r.RunID, r.Timestamp, finished, string(r.TriggerType),
		regime, scores, targets, orders,
		r.AccountEquity, r.Success, errMsg,
	); err != nil {
		return fmt.Errorf("insert rebalance log: %w", err)
	}
	return nil
}

type rebalanceRow struct {
	RunID         string         `db:"run_id"`
	Timestamp     time.Time      `db:"ts"`
	FinishedAt    sql.NullTime   `db:"finished_at"`
	TriggerType   string         `db:"trigger_type"`
	Regime        []byte         `db:"regime"`
	Scores        []byte         `db:"scores"`
	Targets       []byte         `db:"targets"`
	Orders        []byte         `db:"orders"`
	AccountEquity float64        `db:"account_equity"`
	Success       bool           `db:"success"`
	Error         sql.NullString `db:"error"`
}

// GetRebalanceLogs returns the newest limit entries, newest first.
func (s *PostgresRunStore) GetRebalanceLogs(ctx context.Context, limit int) ([]models.RebalanceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
		SELECT run_id, ts, finished_at, trigger_type, regime, scores, targets, orders,
		       account_equity, success, error
		FROM rebalance_log
		ORDER BY id DESC
		LIMIT $1`
	var rows []rebalanceRow
	if err := s.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("select rebalance logs: %w", err)
	}

	out := make([]models.RebalanceResult, 0, len(rows))
	for _, row := range rows {
		r := models.RebalanceResult{
			RunID:         row.RunID,
			Timestamp:     row.Timestamp.UTC(),
			TriggerType:   models.TriggerType(row.TriggerType),
			AccountEquity: row.AccountEquity,
			Success:       row.Success,
			Error:         row.Error.String,
		}
		if row.FinishedAt.Valid {
			r.FinishedAt = row.FinishedAt.Time.UTC()
		}
		if err := unmarshalAll(
			field{row.Regime, &r.Regime},
			field{row.Scores, &r.Scores},
			field{row.Targets, &r.Targets},
			field{row.Orders, &r.OrdersPlaced},
		); err != nil {
			return nil, fmt.Errorf("decode rebalance log %s: %w", row.RunID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

type stateRow struct {
	LastRebalance  sql.NullTime `db:"last_rebalance"`
	NextRebalance  sql.NullTime `db:"next_rebalance"`
	CurrentTargets []byte       `db:"current_targets"`
	LatestScores   []byte       `db:"latest_scores"`
	Regime         []byte       `db:"regime"`
}

func (s *PostgresRunStore) LoadAlgorithmState(ctx context.Context) (*models.AlgorithmState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
		SELECT last_rebalance, next_rebalance, current_targets, latest_scores, regime
		FROM algorithm_state
		WHERE id = $1`
	var row stateRow
	if err := s.db.GetContext(ctx, &row, q, stateRowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("load algorithm state: %w", err)
	}

	st := &models.AlgorithmState{}
	if row.LastRebalance.Valid {
		t := row.LastRebalance.Time.UTC()
		st.LastRebalance = &t
	}
	if row.NextRebalance.Valid {
		t := row.NextRebalance.Time.UTC()
		st.NextScheduled = &t
	}
	if err := unmarshalAll(
		field{row.CurrentTargets, &st.CurrentTargets},
		field{row.LatestScores, &st.LatestScores},
		field{row.Regime, &st.Regime},
	); err != nil {
		return nil, fmt.Errorf("decode algorithm state: %w", err)
	}
	return st, nil
}

// SaveAlgorithmState merges patch into the state row; NULL arguments keep
// the stored column.
func (s *PostgresRunStore) SaveAlgorithmState(ctx context.Context, patch models.StatePatch) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var last, next interface{}
	if patch.LastRebalance != nil {
		last = *patch.LastRebalance
	}
	if patch.NextScheduled != nil {
		next = *patch.NextScheduled
	}
	var targets, scores, regime interface{}
	var err error
	if patch.CurrentTargets != nil {
		if targets, err = jsonArg(patch.CurrentTargets); err != nil {
			return err
		}
	}
	if patch.LatestScores != nil {
		if scores, err = jsonArg(patch.LatestScores); err != nil {
			return err
		}
	}
	if patch.Regime != nil {
		if regime, err = jsonArg(patch.Regime); err != nil {
			return err
		}
	}

	const q = `
		INSERT INTO algorithm_state (id, last_rebalance, next_rebalance, current_targets, latest_scores, regime, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			last_rebalance  = COALESCE(EXCLUDED.last_rebalance, algorithm_state.last_rebalance),
			next_rebalance  = COALESCE(EXCLUDED.next_rebalance, algorithm_state.next_rebalance),
			current_targets = COALESCE(EXCLUDED.current_targets, algorithm_state.current_targets),
			latest_scores   = COALESCE(EXCLUDED.latest_scores, algorithm_state.latest_scores),
			regime          = COALESCE(EXCLUDED.regime, algorithm_state.regime),
			updated_at      = now()`
	if _, err := s.db.ExecContext(ctx, q, stateRowID, last, next, targets, scores, regime); err != nil {
		return fmt.Errorf("save algorithm state: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// jsonArg encodes v as a JSON string; lib/pq would send []byte as bytea.
func jsonArg(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return string(b), nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

type field struct {
	raw  []byte
	dest interface{}
}

func unmarshalAll(fields ...field) error {
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return err
		}
	}
	return nil
}

var _ repository.RunStore = (*PostgresRunStore)(nil)
