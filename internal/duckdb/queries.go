package duckdb

import (
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/spool/internal/model"
)

// totalsSource describes how one kind's table rolls up into MetricTotal rows.
type totalsSource struct {
	kind  model.Kind
	table string
	value string
	ts    string
}

var totalsSources = []totalsSource{
	{model.KindCount, "count_events", "COUNT(*)", "ts"},
	{model.KindAmount, "amount_events", "CAST(COALESCE(SUM(amount), 0) AS BIGINT)", "ts"},
	{model.KindStatus, "status_events", "arg_max(value, ts)", "ts"},
	{model.KindInterval, "interval_results", "CAST(COALESCE(SUM(duration), 0) AS BIGINT)", "start_ts"},
}

// metricTables lists every table TableRowCounts reports on.
var metricTables = []string{"count_events", "amount_events", "status_events", "interval_results"}

// Totals aggregates stored events per kind and metric, ordered by kind then
// metric name.
func (s *Store) Totals(opts model.QueryOpts) ([]model.MetricTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var out []model.MetricTotal
	for _, src := range totalsSources {
		if opts.Kind != "" && !strings.EqualFold(opts.Kind, src.kind.String()) {
			continue
		}

		where, args := "", []any{}
		if opts.Metric != "" {
			where, args = "WHERE metric = ?", append(args, opts.Metric)
		}
		// Table and column names come from totalsSources, never from input.
		query := fmt.Sprintf(`SELECT metric, COUNT(*), %s, MAX(%s) FROM %s %s GROUP BY metric ORDER BY metric`,
			src.value, src.ts, src.table, where)

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("totals %s: %w", src.kind, err)
		}
		for rows.Next() {
			t := model.MetricTotal{Kind: src.kind.String()}
			var last time.Time
			if err := rows.Scan(&t.Metric, &t.Events, &t.Value, &last); err != nil {
				rows.Close()
				return nil, fmt.Errorf("totals %s: %w", src.kind, err)
			}
			t.LastSeen = last.UTC()
			out = append(out, t)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("totals %s: %w", src.kind, err)
		}
	}
	return out, nil
}

// TableRowCounts returns the row count of each metric table.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	counts := make(map[string]int64, len(metricTables))
	for _, table := range metricTables {
		var n int64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// DeleteBefore removes every stored event older than cutoff and returns the
// number of rows deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var total int64
	for _, src := range totalsSources {
		res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s < ?", src.table, src.ts), cutoff)
		if err != nil {
			return 0, fmt.Errorf("delete from %s: %w", src.table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}
