// Package redis stores authData records as redis hashes. Writes use
// WATCH/MULTI so a concurrent writer makes the transaction fail instead of
// overwriting.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/authdata/internal/store/core"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Store struct {
	client rdb.UniversalClient
	prefix string
	owned  bool
}

// New connects to cfg.Addr and checks the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := rdb.NewClient(&rdb.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: redis ping failed: %w", err)
	}
	s := NewWithClient(client, cfg.Prefix)
	s.owned = true
	return s, nil
}

// NewWithClient wraps an existing client. Close leaves it open.
func NewWithClient(client rdb.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "authdata:"
	}
	return &Store{client: client, prefix: prefix}
}

// Client is the underlying client, shared with the MFA attempt limiter.
func (s *Store) Client() rdb.UniversalClient { return s.client }

func (s *Store) key(userID string) string { return s.prefix + "user:" + userID }

const (
	fieldVersion = "version"
	fieldData    = "data"
)

func (s *Store) Get(ctx context.Context, userID string) (core.Record, error) {
	return s.read(ctx, s.client, userID)
}

// hashReader is satisfied by both the client and a WATCH transaction.
type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *rdb.SliceCmd
}

func (s *Store) read(ctx context.Context, c hashReader, userID string) (core.Record, error) {
	vals, err := c.HMGet(ctx, s.key(userID), fieldVersion, fieldData).Result()
	if err != nil {
		return core.Record{}, err
	}
	if vals[0] == nil {
		return core.Record{}, core.ErrNotFound
	}
	version, err := strconv.ParseInt(fmt.Sprint(vals[0]), 10, 64)
	if err != nil {
		return core.Record{}, fmt.Errorf("%w: version: %v", core.ErrInvalid, err)
	}
	data, _ := vals[1].(string)
	p, err := core.DecodeProviders([]byte(data))
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
	key := s.key(userID)
	next := rec.Clone()
	next.UserID = userID
	next.Version = expected + 1

	err = s.client.Watch(ctx, func(tx *rdb.Tx) error {
		cur, err := s.read(ctx, tx, userID)
		switch {
		case errors.Is(err, core.ErrNotFound):
			cur.Version = 0
		case err != nil:
			return err
		}
		if cur.Version != expected {
			return core.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe rdb.Pipeliner) error {
			pipe.HSet(ctx, key, fieldVersion, next.Version, fieldData, string(data))
			return nil
		})
		return err
	}, key)
	if errors.Is(err, rdb.TxFailedErr) {
		return core.Record{}, core.ErrConflict
	}
	if err != nil {
		return core.Record{}, err
	}
	return next, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
