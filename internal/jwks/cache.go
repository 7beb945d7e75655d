// Package jwks fetches and caches provider signing keys.
//
// A Cache holds one key set per JWKS URI. A set is replaced wholesale on every
// fetch; keys are never merged across fetches or shared between URIs. A set
// expires when its max age elapses (or the provider's Cache-Control max-age,
// when the source honors it) and is refetched when a requested kid is missing.
package jwks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/authdata/internal/metrics"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
)

const (
	maxBodyBytes = 1 << 20
	// fetchTimeout bounds a shared fetch when the HTTP client has no timeout.
	fetchTimeout = 10 * time.Second
)

// ErrKeyNotFound means the kid is absent from a freshly fetched key set.
var ErrKeyNotFound = errors.New("jwks: key not found")

// FetchError reports a failed key set download.
type FetchError struct {
	URI    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("jwks: fetch %s: http %d", e.URI, e.Status)
	}
	return fmt.Sprintf("jwks: fetch %s: %v", e.URI, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options bound the key set of one source.
type Options struct {
	// MaxEntries caps the keys cached from one set. A larger set is cached
	// with the requested kid plus the first others by kid; 0 disables the cap.
	MaxEntries int
	// MaxAge is the lifetime of a set from the moment it was fetched.
	MaxAge time.Duration
	// HonorCacheControl lets the response's Cache-Control max-age shorten
	// MaxAge (or define it when MaxAge is zero).
	HonorCacheControl bool
}

// Config configures a Cache.
type Config struct {
	HTTPClient *http.Client
	// MaxKeys bounds the keys held across all sources. When exceeded, the
	// oldest-fetched sets are discarded whole. 0 disables the bound.
	MaxKeys int
	// Now overrides the clock (tests).
	Now func() time.Time
}

type keySet struct {
	uri       string
	keys      map[string]SigningKey
	etag      string
	fetchedAt time.Time
	expiresAt time.Time
}

// Cache is safe for concurrent use. Concurrent misses on the same URI share
// one fetch, which outlives the caller that started it.
type Cache struct {
	client  *http.Client
	maxKeys int
	now     func() time.Time

	items *gocache.Cache // uri -> *keySet
	group singleflight.Group
	mu    sync.Mutex // serializes store + eviction
}

// New builds a Cache.
func New(cfg Config) *Cache {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		client:  client,
		maxKeys: cfg.MaxKeys,
		now:     now,
		items:   gocache.New(gocache.NoExpiration, time.Minute),
	}
}

// Source binds a URI and its options. It is what provider adapters hold.
type Source struct {
	cache *Cache
	uri   string
	opts  Options
}

// Source returns a handle for uri with opts.
func (c *Cache) Source(uri string, opts Options) *Source {
	return &Source{cache: c, uri: uri, opts: opts}
}

// URI is the key set endpoint of s.
func (s *Source) URI() string { return s.uri }

// Key resolves kid through the cache.
func (s *Source) Key(ctx context.Context, kid string) (SigningKey, error) {
	return s.cache.Key(ctx, s.uri, kid, s.opts)
}

// Key returns the signing key kid of the set published at uri. A cached,
// unexpired set answers directly; otherwise (or when kid is unknown to it)
// the set is refetched.
func (c *Cache) Key(ctx context.Context, uri, kid string, opts Options) (SigningKey, error) {
	if set, ok := c.lookup(uri); ok && c.now().Before(set.expiresAt) {
		if k, ok := set.keys[kid]; ok {
			return k, nil
		}
	}
	set, err := c.refresh(ctx, uri, kid, opts)
	if err != nil {
		return SigningKey{}, err
	}
	k, ok := set.keys[kid]
	if !ok {
		return SigningKey{}, fmt.Errorf("%w: %q", ErrKeyNotFound, kid)
	}
	return k, nil
}

// Fetch downloads the set at uri without caching it.
func (c *Cache) Fetch(ctx context.Context, uri string) (map[string]SigningKey, error) {
	set, err := c.fetch(ctx, uri, nil, Options{})
	if err != nil {
		return nil, err
	}
	return set.keys, nil
}

// Invalidate drops the cached set of uri.
func (c *Cache) Invalidate(uri string) {
	c.items.Delete(uri)
}

// Len is the number of cached sets.
func (c *Cache) Len() int {
	return c.items.ItemCount()
}

func (c *Cache) lookup(uri string) (*keySet, bool) {
	v, ok := c.items.Get(uri)
	if !ok {
		return nil, false
	}
	set, ok := v.(*keySet)
	return set, ok
}

// refresh fetches uri once for all concurrent callers and returns the full
// fetched set; only the bounded view of it is cached. Each caller stops
// waiting when its own ctx is done, the fetch itself does not.
func (c *Cache) refresh(ctx context.Context, uri, kid string, opts Options) (*keySet, error) {
	ch := c.group.DoChan(uri, func() (any, error) {
		fctx, cancel := c.fetchContext(ctx)
		defer cancel()
		prev, _ := c.lookup(uri)
		set, err := c.fetch(fctx, uri, prev, opts)
		if err != nil {
			return nil, err
		}
		c.store(bounded(fctx, set, kid, opts.MaxEntries))
		return set, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*keySet), nil
	case <-ctx.Done():
		return nil, &FetchError{URI: uri, Err: ctx.Err()}
	}
}

func (c *Cache) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	fctx := context.WithoutCancel(ctx)
	if c.client.Timeout > 0 {
		return fctx, func() {}
	}
	return context.WithTimeout(fctx, fetchTimeout)
}

// bounded keeps at most max keys of set, always including kid. A truncated
// set carries no ETag so a 304 can never revive it in place of the full set.
func bounded(ctx context.Context, set *keySet, kid string, max int) *keySet {
	if max <= 0 || len(set.keys) <= max {
		return set
	}
	others := make([]string, 0, len(set.keys))
	for k := range set.keys {
		if k != kid {
			others = append(others, k)
		}
	}
	sort.Strings(others)

	cp := *set
	cp.keys = make(map[string]SigningKey, max)
	if k, ok := set.keys[kid]; ok {
		cp.keys[kid] = k
	}
	for _, k := range others {
		if len(cp.keys) >= max {
			break
		}
		cp.keys[k] = set.keys[k]
	}
	cp.etag = ""
	metrics.JWKSEvictions.Add(float64(len(set.keys) - len(cp.keys)))
	logger.From(ctx).Debug("jwks set over entry bound, truncated",
		logger.JWKSURI(set.uri), logger.Count(len(set.keys)), logger.KeyID(kid))
	return &cp
}

func (c *Cache) fetch(ctx context.Context, uri string, prev *keySet, opts Options) (set *keySet, err error) {
	log := logger.From(ctx).With(logger.Component("jwks"), logger.JWKSURI(uri))
	start := time.Now()
	defer func() {
		metrics.ObserveJWKSFetch(start, err)
		if err != nil {
			log.Warn("jwks fetch failed", logger.Err(err))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &FetchError{URI: uri, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if prev != nil && prev.etag != "" {
		req.Header.Set("If-None-Match", prev.etag)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URI: uri, Err: err}
	}
	defer resp.Body.Close()

	now := c.now()
	ttl := ttlFor(resp.Header, opts)

	if resp.StatusCode == http.StatusNotModified && prev != nil {
		cp := *prev
		cp.fetchedAt = now
		cp.expiresAt = now.Add(ttl)
		log.Debug("jwks not modified", logger.Count(len(cp.keys)))
		return &cp, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URI: uri, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{URI: uri, Err: err}
	}
	if len(body) > maxBodyBytes {
		return nil, &FetchError{URI: uri, Err: errors.New("response exceeds 1 MiB")}
	}
	keys, err := ParseSet(body, now)
	if err != nil {
		return nil, &FetchError{URI: uri, Err: err}
	}
	log.Debug("jwks fetched", logger.Count(len(keys)), logger.Duration(ttl))
	return &keySet{
		uri:       uri,
		keys:      keys,
		etag:      resp.Header.Get("ETag"),
		fetchedAt: now,
		expiresAt: now.Add(ttl),
	}, nil
}

func (c *Cache) store(set *keySet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !set.expiresAt.After(set.fetchedAt) {
		c.items.Delete(set.uri)
		return
	}
	// kept past expiry so the next fetch can revalidate with If-None-Match
	retention := 2 * set.expiresAt.Sub(set.fetchedAt)
	c.items.Set(set.uri, set, retention)
	c.evictLocked(set.uri)
}

// evictLocked discards the oldest-fetched sets, other than keep, until the
// total key count fits maxKeys.
func (c *Cache) evictLocked(keep string) {
	if c.maxKeys <= 0 {
		return
	}
	items := c.items.Items()
	total := 0
	others := make([]*keySet, 0, len(items))
	for uri, it := range items {
		set, ok := it.Object.(*keySet)
		if !ok {
			continue
		}
		total += len(set.keys)
		if uri != keep {
			others = append(others, set)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i].fetchedAt.Before(others[j].fetchedAt) })
	for _, set := range others {
		if total <= c.maxKeys {
			return
		}
		c.items.Delete(set.uri)
		total -= len(set.keys)
		metrics.JWKSEvictions.Inc()
	}
}

func ttlFor(h http.Header, opts Options) time.Duration {
	ttl := opts.MaxAge
	if opts.HonorCacheControl {
		if ma, ok := cacheControlMaxAge(h.Get("Cache-Control")); ok && (ttl <= 0 || ma < ttl) {
			ttl = ma
		}
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}

// cacheControlMaxAge extracts max-age; no-store and no-cache yield zero.
func cacheControlMaxAge(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		switch {
		case part == "no-store" || part == "no-cache":
			return 0, true
		case strings.HasPrefix(part, "max-age="):
			n, err := strconv.Atoi(strings.TrimPrefix(part, "max-age="))
			if err != nil || n < 0 {
				return 0, false
			}
			return time.Duration(n) * time.Second, true
		}
	}
	return 0, false
}
