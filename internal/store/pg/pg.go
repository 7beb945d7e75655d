// Package pg stores authData records in Postgres through the pgx
// database/sql driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dropDatabas3/authdata/internal/store/core"
)

type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

type Store struct{ db *sql.DB }

// New opens dsn with the pool tuning in cfg and checks the connection.
func New(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime != "" {
		d, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: connMaxLifetime: %w", err)
		}
		db.SetConnMaxLifetime(d)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: postgres ping failed: %w", err)
	}
	return NewWithDB(db), nil
}

func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// DB expone la conexión para migraciones.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Get(ctx context.Context, userID string) (core.Record, error) {
	const query = `SELECT version, auth_data FROM user_auth_data WHERE user_id = $1`
	var (
		version int64
		raw     []byte
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&version, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, core.ErrNotFound
	}
	if err != nil {
		return core.Record{}, err
	}
	p, err := core.DecodeProviders(raw)
	if err != nil {
		return core.Record{}, err
	}
	return core.Record{UserID: userID, Providers: p, Version: version}, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, userID string, expected int64, rec core.Record) (core.Record, error) {
	data, err := core.EncodeProviders(rec.Providers)
	if err != nil {
		return core.Record{}, err
	}
	var res sql.Result
	if expected == 0 {
		const insert = `
			INSERT INTO user_auth_data (user_id, auth_data, version, updated_at)
			VALUES ($1, $2, 1, NOW())
			ON CONFLICT (user_id) DO NOTHING`
		res, err = s.db.ExecContext(ctx, insert, userID, data)
	} else {
		const update = `
			UPDATE user_auth_data SET auth_data = $2, version = version + 1, updated_at = NOW()
			WHERE user_id = $1 AND version = $3`
		res, err = s.db.ExecContext(ctx, update, userID, data, expected)
	}
	if err != nil {
		return core.Record{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Record{}, err
	}
	if n == 0 {
		return core.Record{}, core.ErrConflict
	}
	next := rec.Clone()
	next.UserID = userID
	next.Version = expected + 1
	return next, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }
