package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"Rotator/internal/domain/models"
	"Rotator/internal/domain/repository"
	applogger "Rotator/pkg/logger"
)

// BarSchema returns the DDL for the daily bar table. ReplacingMergeTree keeps
// the highest version per (symbol, date), so re-fetched days overwrite.
func BarSchema(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    symbol  LowCardinality(String),
    date    Date,
    open    Float64,
    high    Float64,
    low     Float64,
    close   Float64,
    volume  UInt64,
    version UInt64
) ENGINE = ReplacingMergeTree(version)
ORDER BY (symbol, date)`, table),
	}
}

// ClickHouseBarStore implements BarStore on ClickHouse.
type ClickHouseBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
	now   func() time.Time
}

func NewClickHouseBarStore(db *sql.DB, table string, l *applogger.Logger) *ClickHouseBarStore {
	return &ClickHouseBarStore{db: db, table: table, l: l.Component("bar-store"), now: time.Now}
}

func (s *ClickHouseBarStore) Init(ctx context.Context) error {
	for _, stmt := range BarSchema(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init bar schema: %w", err)
		}
	}
	return nil
}

// UpsertBars writes all bars in a single INSERT so one call lands as one block.
func (s *ClickHouseBarStore) UpsertBars(ctx context.Context, bars []models.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}
	version := uint64(s.now().UnixNano())
	values := make([]string, 0, len(bars))
	args := make([]interface{}, 0, len(bars)*8)
	for _, b := range bars {
		if b.Symbol == "" || b.Date.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, b.Symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, version)
	}
	if len(values) == 0 {
		return nil
	}

	q := fmt.Sprintf("INSERT INTO %s (symbol, date, open, high, low, close, volume, version) VALUES %s",
		s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.l.Error("upsert bars failed", applogger.Int("rows", len(values)), applogger.Error(err))
		return fmt.Errorf("upsert bars: %w", err)
	}
	return nil
}

func (s *ClickHouseBarStore) GetBars(ctx context.Context, symbol string, limit int) ([]models.DailyBar, error) {
	q := fmt.Sprintf(`SELECT symbol, date, open, high, low, close, volume
FROM %s FINAL
WHERE symbol = ?
ORDER BY date DESC
LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("get bars %s: %w", symbol, err)
	}
	defer rows.Close()

	out := make([]models.DailyBar, 0, limit)
	for rows.Next() {
		var b models.DailyBar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = b.Date.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *ClickHouseBarStore) GetLatestDates(ctx context.Context, symbols []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(symbols)), ", ")
	args := make([]interface{}, len(symbols))
	for i, s := range symbols {
		args[i] = s
	}

	q := fmt.Sprintf("SELECT symbol, max(date) FROM %s WHERE symbol IN (%s) GROUP BY symbol", s.table, placeholders)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("latest bar dates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var symbol string
		var latest time.Time
		if err := rows.Scan(&symbol, &latest); err != nil {
			return nil, fmt.Errorf("scan latest date: %w", err)
		}
		out[symbol] = latest.UTC()
	}
	return out, rows.Err()
}

func (s *ClickHouseBarStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var _ repository.BarStore = (*ClickHouseBarStore)(nil)
