// Package kv defines the key-value contract consumed from the host state store,
// and a buffered transaction overlay that gives read-your-writes and commits
// all writes of one operation together.
package kv

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("kv: key not found")

	// ErrClosed is returned by backends after Close.
	ErrClosed = errors.New("kv: store is closed")

	// ErrTxDone is returned when a committed or discarded transaction is used.
	ErrTxDone = errors.New("kv: transaction already finished")

	// ErrConflict is returned by Commit when a key or range the transaction
	// read changed before its writes could be applied. The caller may retry
	// the whole transaction.
	ErrConflict = errors.New("kv: read conflict")
)

// Entry is a key/value pair returned by Scan.
type Entry struct {
	Key   string
	Value []byte
}

// Reader is the read half of Stub, used to validate a ReadSet.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Scan(ctx context.Context, prefix string) ([]Entry, error)
}

// Stub is the minimal state API. Implementations must be safe for concurrent use.
type Stub interface {
	// Has reports whether key holds a value.
	Has(ctx context.Context, key string) (bool, error)

	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value at key, overwriting any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Scan returns every entry whose key starts with prefix, sorted by key.
	Scan(ctx context.Context, prefix string) ([]Entry, error)
}

// Backend is a Stub with a lifecycle.
type Backend interface {
	Stub

	// Migrate prepares the backend schema (tables, indexes). Idempotent.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Write is one buffered mutation.
type Write struct {
	Key    string
	Value  []byte
	Delete bool
}

// Applier is implemented by backends that can check a read-set and apply a
// batch of writes as one atomic step. Apply returns ErrConflict when rs no
// longer holds, and must then leave the store untouched.
type Applier interface {
	Apply(ctx context.Context, rs ReadSet, writes []Write) error
}

// ApplyWrites applies writes with an empty read-set.
func ApplyWrites(ctx context.Context, s Stub, writes []Write) error {
	return ApplyChecked(ctx, s, ReadSet{}, writes)
}

// ApplyChecked applies writes through the Applier when s implements it.
// Otherwise it validates rs against s and writes one by one in order, which
// is only safe when nothing else writes to s concurrently.
func ApplyChecked(ctx context.Context, s Stub, rs ReadSet, writes []Write) error {
	if a, ok := s.(Applier); ok {
		return a.Apply(ctx, rs, writes)
	}
	if err := rs.Validate(ctx, s); err != nil {
		return err
	}

	for _, w := range writes {
		var err error
		if w.Delete {
			err = s.Delete(ctx, w.Key)
		} else {
			err = s.Put(ctx, w.Key, w.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Compact keeps the last write of each key, in first-write order.
func Compact(writes []Write) []Write {
	last := make(map[string]int, len(writes))
	order := make([]string, 0, len(writes))
	for i, w := range writes {
		if _, ok := last[w.Key]; !ok {
			order = append(order, w.Key)
		}
		last[w.Key] = i
	}
	if len(order) == len(writes) {
		return writes
	}

	out := make([]Write, 0, len(order))
	for _, key := range order {
		out = append(out, writes[last[key]])
	}
	return out
}

// HasPrefix is strings.HasPrefix, kept here so backends filter scans the same way.
func HasPrefix(key, prefix string) bool {
	return strings.HasPrefix(key, prefix)
}

// PrefixEnd returns the smallest string greater than every string with the
// given prefix, or false when no such bound exists. Ordered backends scan a
// prefix as the range [prefix, PrefixEnd(prefix)).
func PrefixEnd(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}
