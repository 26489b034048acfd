package kv

import (
	"bytes"
	"context"
	"errors"
)

// Read is the first base value a transaction observed for Key.
type Read struct {
	Key   string
	Value []byte
	Found bool
}

// RangeRead is the base content a transaction observed under Prefix.
type RangeRead struct {
	Prefix  string
	Entries []Entry
}

// ReadSet is everything a transaction read from its base. It holds as long
// as every key still has the observed value and every range the observed
// entries.
type ReadSet struct {
	Reads  []Read
	Ranges []RangeRead
}

// Empty reports whether nothing was read.
func (rs ReadSet) Empty() bool {
	return len(rs.Reads) == 0 && len(rs.Ranges) == 0
}

// Keys returns the point-read keys.
func (rs ReadSet) Keys() []string {
	keys := make([]string, len(rs.Reads))
	for i, r := range rs.Reads {
		keys[i] = r.Key
	}
	return keys
}

// Validate re-reads rs through r and returns ErrConflict on the first
// difference. Callers make r a view that cannot change until their writes
// land: a locked map, a watched connection, a database transaction.
func (rs ReadSet) Validate(ctx context.Context, r Reader) error {
	for _, read := range rs.Reads {
		v, err := r.Get(ctx, read.Key)
		switch {
		case errors.Is(err, ErrNotFound):
			if read.Found {
				return ErrConflict
			}
		case err != nil:
			return err
		case !read.Found || !bytes.Equal(v, read.Value):
			return ErrConflict
		}
	}

	for _, rr := range rs.Ranges {
		entries, err := r.Scan(ctx, rr.Prefix)
		if err != nil {
			return err
		}
		if !SameEntries(entries, rr.Entries) {
			return ErrConflict
		}
	}
	return nil
}

// SameEntries reports whether a and b hold the same keys and values in the same order.
func SameEntries(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || !bytes.Equal(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}
