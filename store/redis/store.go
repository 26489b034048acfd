// Package redis provides a kv.Backend over Redis using a redigo connection pool.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/xraph/coinledger/kv"
)

// compile-time interface checks
var (
	_ kv.Backend = (*Store)(nil)
	_ kv.Applier = (*Store)(nil)
)

const (
	scanCount = 256
	mgetChunk = 512

	// commitSeqKey is bumped by every write batch so that transactions which
	// scanned a range can WATCH a single key for phantoms.
	commitSeqKey = "\x00commit_seq"
)

// Store implements kv.Backend on Redis strings. Keys are namespaced so several
// ledgers can share one database.
type Store struct {
	pool      *redis.Pool
	namespace string
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace prefixes every key with ns (e.g. "coinledger:").
func WithNamespace(ns string) Option {
	return func(s *Store) {
		s.namespace = ns
	}
}

// New creates a Store over an existing pool.
func New(pool *redis.Pool, opts ...Option) *Store {
	s := &Store{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewPool creates a pool dialing addr over TCP.
func NewPool(addr string, maxIdle, maxActive int) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     maxIdle,
		MaxActive:   maxActive,
		IdleTimeout: 240 * time.Second,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *redis.Pool { return s.pool }

func (s *Store) conn(ctx context.Context) (redis.Conn, error) {
	c, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("coinledger/redis: get connection: %w", err)
	}
	return c, nil
}

func (s *Store) key(k string) string { return s.namespace + k }

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	defer c.Close()

	ok, err := redis.Bool(c.Do("EXISTS", s.key(key)))
	if err != nil {
		return false, fmt.Errorf("coinledger/redis: exists %s: %w", key, err)
	}
	return ok, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return connView{s: s, c: c}.Get(ctx, key)
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.Apply(ctx, kv.ReadSet{}, []kv.Write{{Key: key, Value: value}})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.Apply(ctx, kv.ReadSet{}, []kv.Write{{Key: key, Delete: true}})
}

// Scan walks the keyspace with SCAN MATCH and fetches values with MGET.
// Keys deleted between the two steps are skipped.
func (s *Store) Scan(ctx context.Context, prefix string) ([]kv.Entry, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return connView{s: s, c: c}.Scan(ctx, prefix)
}

// Apply watches the keys of rs, validates them on the same connection and
// writes the batch inside MULTI/EXEC. A watched key touched by another
// client aborts EXEC, which is reported as kv.ErrConflict.
func (s *Store) Apply(ctx context.Context, rs kv.ReadSet, writes []kv.Write) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	watch := make([]any, 0, len(rs.Reads)+1)
	for _, key := range rs.Keys() {
		watch = append(watch, s.key(key))
	}
	if len(rs.Ranges) > 0 {
		watch = append(watch, s.key(commitSeqKey))
	}
	if len(watch) > 0 {
		if _, err := c.Do("WATCH", watch...); err != nil {
			return fmt.Errorf("coinledger/redis: watch: %w", err)
		}
	}

	if err := rs.Validate(ctx, connView{s: s, c: c}); err != nil {
		_, _ = c.Do("UNWATCH") //nolint:errcheck // already failing
		return err
	}
	if len(writes) == 0 {
		if _, err := c.Do("UNWATCH"); err != nil {
			return fmt.Errorf("coinledger/redis: unwatch: %w", err)
		}
		return nil
	}

	if err := c.Send("MULTI"); err != nil {
		return fmt.Errorf("coinledger/redis: multi: %w", err)
	}
	for _, w := range writes {
		if w.Delete {
			err = c.Send("DEL", s.key(w.Key))
		} else {
			err = c.Send("SET", s.key(w.Key), w.Value)
		}
		if err != nil {
			return fmt.Errorf("coinledger/redis: queue %s: %w", w.Key, err)
		}
	}
	if err := c.Send("INCR", s.key(commitSeqKey)); err != nil {
		return fmt.Errorf("coinledger/redis: queue commit seq: %w", err)
	}

	reply, err := c.Do("EXEC")
	if err != nil {
		return fmt.Errorf("coinledger/redis: exec: %w", err)
	}
	if reply == nil {
		return kv.ErrConflict
	}
	return nil
}

// Migrate is a no-op; Redis is schemaless.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.Do("PING"); err != nil {
		return fmt.Errorf("coinledger/redis: ping: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// escapeGlob escapes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// connView reads through one borrowed connection, so reads issued after
// WATCH belong to the same client.
type connView struct {
	s *Store
	c redis.Conn
}

func (v connView) Get(_ context.Context, key string) ([]byte, error) {
	value, err := redis.Bytes(v.c.Do("GET", v.s.key(key)))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("coinledger/redis: get %s: %w", key, err)
	}
	return value, nil
}

func (v connView) Scan(ctx context.Context, prefix string) ([]kv.Entry, error) {
	full := v.s.key(prefix)
	pattern := escapeGlob(full) + "*"
	seq := v.s.key(commitSeqKey)

	seen := make(map[string]struct{})
	cursor := 0
	for {
		reply, err := redis.Values(v.c.Do("SCAN", cursor, "MATCH", pattern, "COUNT", scanCount))
		if err != nil {
			return nil, fmt.Errorf("coinledger/redis: scan %s: %w", prefix, err)
		}

		var batch []string
		if _, err := redis.Scan(reply, &cursor, &batch); err != nil {
			return nil, fmt.Errorf("coinledger/redis: scan reply: %w", err)
		}
		for _, k := range batch {
			if strings.HasPrefix(k, full) && k != seq {
				seen[k] = struct{}{}
			}
		}

		if cursor == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	entries := make([]kv.Entry, 0, len(keys))
	for chunk := range slices.Chunk(keys, mgetChunk) {
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}

		values, err := redis.Values(v.c.Do("MGET", args...))
		if err != nil {
			return nil, fmt.Errorf("coinledger/redis: mget: %w", err)
		}
		for i, item := range values {
			b, ok := item.([]byte)
			if !ok {
				continue
			}
			entries = append(entries, kv.Entry{
				Key:   strings.TrimPrefix(chunk[i], v.s.namespace),
				Value: b,
			})
		}
	}
	return entries, nil
}
