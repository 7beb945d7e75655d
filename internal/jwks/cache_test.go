package jwks_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authdata/internal/jwks"
	"github.com/dropDatabas3/authdata/internal/jwks/jwkstest"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newCache(clk *clock, maxKeys int) *jwks.Cache {
	return jwks.New(jwks.Config{Now: clk.Now, MaxKeys: maxKeys})
}

func TestKeyIsCachedUntilMaxAge(t *testing.T) {
	k := jwkstest.NewRSAKey(t, "k1")
	srv := jwkstest.NewServer(t, k)
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	src := newCache(clk, 0).Source(srv.URL, jwks.Options{MaxAge: time.Hour})
	ctx := context.Background()

	got, err := src.Key(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "k1", got.KeyID)
	assert.Equal(t, clk.Now(), got.FetchedAt)

	_, err = src.Key(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Fetches())

	clk.Advance(time.Hour)
	_, err = src.Key(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Fetches(), "expired set must be refetched")
}

func TestUnknownKidRefetchesAndReplacesWholesale(t *testing.T) {
	k1 := jwkstest.NewRSAKey(t, "k1")
	k2 := jwkstest.NewECKey(t, "k2")
	srv := jwkstest.NewServer(t, k1)
	clk := &clock{now: time.Now()}
	src := newCache(clk, 0).Source(srv.URL, jwks.Options{MaxAge: time.Hour})
	ctx := context.Background()

	_, err := src.Key(ctx, "k1")
	require.NoError(t, err)

	// rotation: provider republishes with only k2
	srv.SetKeys(k2)
	got, err := src.Key(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, "k2", got.KeyID)
	assert.Equal(t, 2, srv.Fetches())

	// k1 is gone because the set was replaced, not merged
	_, err = src.Key(ctx, "k1")
	require.ErrorIs(t, err, jwks.ErrKeyNotFound)
	assert.Equal(t, 3, srv.Fetches())
}

func TestCacheControlMaxAge(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewRSAKey(t, "g1"))
	srv.SetCacheControl("public, max-age=60, must-revalidate")
	clk := &clock{now: time.Now()}
	src := newCache(clk, 0).Source(srv.URL, jwks.Options{HonorCacheControl: true})
	ctx := context.Background()

	_, err := src.Key(ctx, "g1")
	require.NoError(t, err)
	clk.Advance(30 * time.Second)
	_, err = src.Key(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Fetches())

	clk.Advance(31 * time.Second)
	_, err = src.Key(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Fetches())
}

func TestNoCacheControlAndNoMaxAgeIsNotCached(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewRSAKey(t, "g1"))
	src := newCache(&clock{now: time.Now()}, 0).Source(srv.URL, jwks.Options{HonorCacheControl: true})
	for i := 0; i < 3; i++ {
		_, err := src.Key(context.Background(), "g1")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, srv.Fetches())
}

func TestSetOverMaxEntriesIsTruncatedNotRefetched(t *testing.T) {
	srv := jwkstest.NewServer(t,
		jwkstest.NewECKey(t, "a"), jwkstest.NewECKey(t, "b"), jwkstest.NewECKey(t, "c"),
		jwkstest.NewECKey(t, "d"), jwkstest.NewECKey(t, "e"), jwkstest.NewECKey(t, "f"))
	c := newCache(&clock{now: time.Now()}, 0)
	src := c.Source(srv.URL, jwks.Options{MaxEntries: 5, MaxAge: time.Hour})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := src.Key(ctx, "a")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, srv.Fetches())
	assert.Equal(t, 1, c.Len())

	// "f" fell outside the bound: one refetch, then it is cached too
	got, err := src.Key(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "f", got.KeyID)
	_, err = src.Key(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Fetches())
}

func TestTruncatedSetIsNotRevalidatedWithETag(t *testing.T) {
	srv := jwkstest.NewServer(t,
		jwkstest.NewECKey(t, "a"), jwkstest.NewECKey(t, "b"), jwkstest.NewECKey(t, "c"))
	srv.SetETag(`"v1"`)
	src := newCache(&clock{now: time.Now()}, 0).Source(srv.URL, jwks.Options{MaxEntries: 2, MaxAge: time.Hour})
	ctx := context.Background()

	_, err := src.Key(ctx, "a")
	require.NoError(t, err)
	got, err := src.Key(ctx, "c")
	require.NoError(t, err, "a 304 must not stand in for the keys left out")
	assert.Equal(t, "c", got.KeyID)
}

func TestSharedFetchSurvivesCanceledCaller(t *testing.T) {
	key := jwkstest.NewRSAKey(t, "k1")
	body, err := json.Marshal(map[string]any{"keys": []any{key.JWK()}})
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(started)
		}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	c := newCache(&clock{now: time.Now()}, 0)
	opts := jwks.Options{MaxAge: time.Hour}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Key(ctxA, srv.URL, "k1", opts)
		errA <- err
	}()
	<-started

	type result struct {
		key jwks.SigningKey
		err error
	}
	resB := make(chan result, 1)
	go func() {
		k, err := c.Key(context.Background(), srv.URL, "k1", opts)
		resB <- result{k, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller kept waiting on the shared fetch")
	}

	close(release)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Equal(t, "k1", r.key.KeyID)
	case <-time.After(5 * time.Second):
		t.Fatal("second caller never got the key")
	}
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, 1, c.Len())
}

func TestMaxKeysEvictsOldestSet(t *testing.T) {
	older := jwkstest.NewServer(t, jwkstest.NewRSAKey(t, "o1"), jwkstest.NewRSAKey(t, "o2"))
	newer := jwkstest.NewServer(t, jwkstest.NewRSAKey(t, "n1"), jwkstest.NewRSAKey(t, "n2"))
	clk := &clock{now: time.Now()}
	c := newCache(clk, 3)
	ctx := context.Background()
	opts := jwks.Options{MaxAge: time.Hour}

	_, err := c.Key(ctx, older.URL, "o1", opts)
	require.NoError(t, err)
	clk.Advance(time.Second)
	_, err = c.Key(ctx, newer.URL, "n1", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	// the older provider's set was dropped whole; the newer one stays cached
	_, err = c.Key(ctx, newer.URL, "n2", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, newer.Fetches())
	_, err = c.Key(ctx, older.URL, "o2", opts)
	require.NoError(t, err)
	assert.Equal(t, 2, older.Fetches())
}

func TestFetchErrors(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewRSAKey(t, "k"))
	srv.SetStatus(http.StatusInternalServerError)
	src := newCache(&clock{now: time.Now()}, 0).Source(srv.URL, jwks.Options{MaxAge: time.Hour})

	_, err := src.Key(context.Background(), "k")
	var fe *jwks.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusInternalServerError, fe.Status)
	assert.False(t, errors.Is(err, jwks.ErrKeyNotFound))
}

func TestETagRevalidation(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewRSAKey(t, "k"))
	srv.SetETag(`"v1"`)
	clk := &clock{now: time.Now()}
	src := newCache(clk, 0).Source(srv.URL, jwks.Options{MaxAge: time.Minute})
	ctx := context.Background()

	first, err := src.Key(ctx, "k")
	require.NoError(t, err)
	clk.Advance(time.Minute + time.Second)

	second, err := src.Key(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Fetches())
	assert.Equal(t, first.PublicKey, second.PublicKey)
}

func TestInvalidate(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewRSAKey(t, "k"))
	c := newCache(&clock{now: time.Now()}, 0)
	opts := jwks.Options{MaxAge: time.Hour}
	_, err := c.Key(context.Background(), srv.URL, "k", opts)
	require.NoError(t, err)
	c.Invalidate(srv.URL)
	_, err = c.Key(context.Background(), srv.URL, "k", opts)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Fetches())
}
