package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"MarketSignal/internal/domain/models"
	domrepo "MarketSignal/internal/domain/repository"
	pkgch "MarketSignal/pkg/clickhouse"
	applogger "MarketSignal/pkg/logger"
	xutil "MarketSignal/pkg/util"
)

var _ domrepo.BarRepository = (*CHPriceBarStore)(nil)

// insertChunk caps the rows sent in one INSERT.
const insertChunk = 1000

// CHPriceBarStore implements BarStore backed by a ClickHouse daily bar table.
type CHPriceBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHPriceBarStore reads and writes database.table, e.g. "marketsignal.daily_bars".
func NewCHPriceBarStore(ch *pkgch.Client, database, table string) *CHPriceBarStore {
	return &CHPriceBarStore{db: ch.DB(), table: database + "." + table, l: applogger.NewNop()}
}

// SetLogger injects a structured logger.
func (s *CHPriceBarStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHPriceBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	start := time.Now()
	const qtpl = `
        SELECT date, open, high, low, close, volume, transactions
        FROM %s FINAL
        WHERE symbol = ? AND date >= ? AND date <= ?
        ORDER BY date ASC
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), symbol, xutil.Day(from), xutil.Day(to))
	if err != nil {
		s.logFailure("get_bars query error", symbol, err)
		return nil, fmt.Errorf("get bars: %w", err)
	}
	defer rows.Close()

	out, err := scanBars(rows, 256)
	if err != nil {
		s.logFailure("get_bars scan error", symbol, err)
		return nil, err
	}
	s.l.Debug("clickhouse get_bars ok",
		applogger.String("table", s.table),
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHPriceBarStore) GetLatestBars(ctx context.Context, symbol string, n int) ([]models.PriceBar, error) {
	if n <= 0 {
		return nil, nil
	}
	start := time.Now()
	const qtpl = `
        SELECT date, open, high, low, close, volume, transactions
        FROM %s FINAL
        WHERE symbol = ?
        ORDER BY date DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), symbol, n)
	if err != nil {
		s.logFailure("latest_bars query error", symbol, err)
		return nil, fmt.Errorf("get latest bars: %w", err)
	}
	defer rows.Close()

	out, err := scanBars(rows, n)
	if err != nil {
		s.logFailure("latest_bars scan error", symbol, err)
		return nil, err
	}
	s.l.Debug("clickhouse latest_bars ok",
		applogger.String("table", s.table),
		applogger.String("symbol", symbol),
		applogger.Int("limit", n),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// PutBars inserts bars in chunks of multi-row VALUES. The ReplacingMergeTree
// keeps the latest row per (symbol, date).
func (s *CHPriceBarStore) PutBars(ctx context.Context, symbol string, bars []models.PriceBar) (int, error) {
	start := time.Now()
	written := 0
	for lo := 0; lo < len(bars); lo += insertChunk {
		hi := min(lo+insertChunk, len(bars))
		q, args := insertBarsQuery(s.table, symbol, bars[lo:hi])
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.logFailure("put_bars insert error", symbol, err)
			return written, fmt.Errorf("put bars: %w", err)
		}
		written += len(args) / barColumns
	}
	s.l.Debug("clickhouse put_bars ok",
		applogger.String("table", s.table),
		applogger.String("symbol", symbol),
		applogger.Int("rows", written),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return written, nil
}

const barColumns = 8

// insertBarsQuery builds one INSERT for bars, skipping undated ones. It
// returns an empty query when nothing is left.
func insertBarsQuery(table, symbol string, bars []models.PriceBar) (string, []any) {
	values := make([]string, 0, len(bars))
	args := make([]any, 0, len(bars)*barColumns)
	for _, b := range bars {
		if b.Date.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, xutil.Day(b.Date), symbol, b.Open, b.High, b.Low, b.Close, b.Volume, b.Transactions)
	}
	if len(values) == 0 {
		return "", nil
	}
	q := fmt.Sprintf("INSERT INTO %s (date, symbol, open, high, low, close, volume, transactions) VALUES %s",
		table, strings.Join(values, ","))
	return q, args
}

// Health pings the underlying pool.
func (s *CHPriceBarStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHPriceBarStore) logFailure(msg, symbol string, err error) {
	s.l.Error("clickhouse "+msg,
		applogger.String("table", s.table),
		applogger.String("symbol", symbol),
		applogger.Error(err),
	)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanBars reads rows into bars sorted oldest first.
func scanBars(rows rowScanner, capHint int) ([]models.PriceBar, error) {
	out := make([]models.PriceBar, 0, capHint)
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Transactions); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = b.Date.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
