// Package duckdb persists flushed metric batches and answers totals queries.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tinytelemetry/spool/internal/duckdb/migrate"
	"github.com/tinytelemetry/spool/internal/model"
)

// DefaultQueryTimeout bounds every statement issued by the store.
const DefaultQueryTimeout = 30 * time.Second

// Store is a DuckDB-backed model.Consumer. Writes come from one flush worker;
// reads come from the HTTP and socket servers.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string

	// QueryTimeout bounds each insert transaction and query.
	QueryTimeout time.Duration

	// IntervalUnit labels stored interval durations.
	IntervalUnit string
}

var (
	_ model.Consumer     = (*Store)(nil)
	_ model.TotalsReader = (*Store)(nil)
)

// NewStore opens or creates a DuckDB database and applies pending
// migrations. An empty dbPath opens an in-memory database.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	qt := DefaultQueryTimeout
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), qt)
	defer cancel()
	if _, err := migrate.New(db).Up(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:           db,
		dbPath:       dbPath,
		QueryTimeout: qt,
		IntervalUnit: "millisecond",
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file, empty for in-memory stores.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}
