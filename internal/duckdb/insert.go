package duckdb

import (
	"context"
	"fmt"

	"github.com/tinytelemetry/spool/internal/model"
)

// ProcessCountEvents appends counts in one transaction.
func (s *Store) ProcessCountEvents(events []model.CountEvent) error {
	return s.insertBatch(
		`INSERT INTO count_events (metric, description, ts) VALUES (?, ?, ?)`,
		len(events), func(i int) []any {
			e := events[i]
			return []any{e.Metric.Name, e.Metric.Description, e.Time}
		})
}

// ProcessAmountEvents appends amounts in one transaction.
func (s *Store) ProcessAmountEvents(events []model.AmountEvent) error {
	return s.insertBatch(
		`INSERT INTO amount_events (metric, description, amount, ts) VALUES (?, ?, ?, ?)`,
		len(events), func(i int) []any {
			e := events[i]
			return []any{e.Metric.Name, e.Metric.Description, e.Amount, e.Time}
		})
}

// ProcessStatusEvents appends status samples in one transaction.
func (s *Store) ProcessStatusEvents(events []model.StatusEvent) error {
	return s.insertBatch(
		`INSERT INTO status_events (metric, description, value, ts) VALUES (?, ?, ?, ?)`,
		len(events), func(i int) []any {
			e := events[i]
			return []any{e.Metric.Name, e.Metric.Description, e.Value, e.Time}
		})
}

// ProcessIntervalEvents appends completed intervals in one transaction.
func (s *Store) ProcessIntervalEvents(results []model.IntervalResult) error {
	unit := s.IntervalUnit
	return s.insertBatch(
		`INSERT INTO interval_results (metric, description, interval_id, duration, start_ts, unit) VALUES (?, ?, ?, ?, ?, ?)`,
		len(results), func(i int) []any {
			r := results[i]
			return []any{r.Start.Metric.Name, r.Start.Metric.Description, r.Start.ID.String(), r.Duration, r.Start.Time, unit}
		})
}

// insertBatch runs query once per row inside a single transaction. Any row
// failure rolls back the whole batch so the engine sees the error.
func (s *Store) insertBatch(query string, n int, row func(i int) []any) error {
	if n == 0 {
		return nil
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTx(ctx, query, n, row)
}

func (s *Store) insertTx(ctx context.Context, query string, n int, row func(i int) []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return fmt.Errorf("row %d insert: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
