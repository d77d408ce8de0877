package state

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-dispatch/pkg/errors"
	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

// PostgresStore keeps one row per stream in a table it creates on open.
type PostgresStore struct {
	pool   *pgxpool.Pool
	table  string
	logger *zap.Logger
}

// NewPostgresStore connects to dsn and ensures the state table exists.
func NewPostgresStore(ctx context.Context, dsn, table string, logger *zap.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "connection string is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse PostgreSQL connection string")
	}
	poolConfig.MaxConns = 4
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create PostgreSQL connection pool")
	}

	s := &PostgresStore{
		pool:   pool,
		table:  pgx.Identifier{table}.Sanitize(),
		logger: logger.With(zap.String("component", "state_store"), zap.String("table", table)),
	}
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s.logger.Info("postgres state store ready")
	return s, nil
}

func (s *PostgresStore) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	stream     TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to create state table")
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (map[string]stream.State, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT stream, state FROM %s", s.table))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to load state")
	}
	defer rows.Close()

	out := make(map[string]stream.State)
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan state row")
		}
		var st stream.State
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to decode state row").
				WithDetail("stream", name)
		}
		out[name] = st
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to load state")
	}
	return out, nil
}

// Save implements Store. All streams are upserted in one transaction.
func (s *PostgresStore) Save(ctx context.Context, snapshot map[string]stream.State) error {
	upsert := fmt.Sprintf(`INSERT INTO %s (stream, state, updated_at) VALUES ($1, $2, now())
ON CONFLICT (stream) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`, s.table)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for name, st := range snapshot {
			raw, err := json.Marshal(st)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode state").WithDetail("stream", name)
			}
			batch.Queue(upsert, name, raw)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to save state")
		}
		s.logger.Debug("state saved", zap.Int("streams", len(snapshot)))
		return nil
	})
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
