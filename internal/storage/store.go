package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cristim67/audio-analysis-platform/internal/data"
)

const schema = `
CREATE TABLE IF NOT EXISTS sensor_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	client TEXT,
	source TEXT,
	temperature REAL,
	humidity REAL,
	raw_data TEXT
);
CREATE INDEX IF NOT EXISTS idx_timestamp ON sensor_data(timestamp);
`

// Store is the SQLite persistence adapter behind the telemetry
// buffer. It owns a small connection pool; writes go through
// BatchInsert in a single transaction per batch.
type Store struct {
	pool   *sqlitex.Pool
	path   string
	logger zerolog.Logger
}

// StoreConfig holds the parameters for opening a store. Path is
// required; the file is created if it does not exist.
type StoreConfig struct {
	Path     string
	PoolSize int
	Logger   zerolog.Logger
}

// OpenStore opens (creating if needed) the SQLite database and
// ensures the schema exists.
func OpenStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: path is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{PoolSize: poolSize})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}

	s := &Store{pool: pool, path: cfg.Path, logger: cfg.Logger}
	if err := s.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: acquiring connection: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("store: creating schema: %w", err)
	}
	return nil
}

// BatchInsert writes a batch of events in one transaction and returns
// the number of rows inserted. The well-known temperature and
// humidity fields get their own columns; the full flattened event is
// kept as JSON in raw_data.
func (s *Store) BatchInsert(ctx context.Context, events []data.SensorEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: acquiring connection: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("store: beginning transaction: %w", err)
	}
	defer endTransaction(&err)

	inserted := 0
	for _, ev := range events {
		raw, merr := json.Marshal(ev)
		if merr != nil {
			// Unmarshalable payloads never make it this far; skip
			// rather than poison the whole batch.
			s.logger.Warn().Err(merr).Msg("skipping unmarshalable event in batch")
			continue
		}

		var temperature, humidity any
		if v, ok := ev.Float("temperature"); ok {
			temperature = v
		}
		if v, ok := ev.Float("humidity"); ok {
			humidity = v
		}

		err = sqlitex.Execute(conn,
			`INSERT INTO sensor_data (timestamp, client, source, temperature, humidity, raw_data)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{ev.Timestamp, ev.Client, ev.Source, temperature, humidity, string(raw)},
			})
		if err != nil {
			return inserted, fmt.Errorf("store: inserting event: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

// TotalCount returns the number of rows ever persisted.
func (s *Store) TotalCount(ctx context.Context) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: acquiring connection: %w", err)
	}
	defer s.pool.Put(conn)

	var total int64
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM sensor_data`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			total = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("store: counting rows: %w", err)
	}
	return total, nil
}

// FileSize reports the database file size in bytes, 0 when the file
// does not exist yet.
func (s *Store) FileSize() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func (s *Store) Close() error {
	return s.pool.Close()
}
