package kv

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
)

// Tx buffers writes over a base Stub. Reads see the buffered writes.
// Nothing reaches the base until Commit.
//
// Tx is optimistic: the first base value of every key and every scanned
// range is recorded, and Commit hands that read-set to the base together
// with the writes. A base that changed in between fails the commit with
// ErrConflict.
type Tx struct {
	mu      sync.Mutex
	base    Stub
	pending map[string]*Write
	order   []string
	reads   map[string]Read
	ranges  []RangeRead
	done    bool
}

var _ Stub = (*Tx)(nil)

// Begin starts a transaction over base.
func Begin(base Stub) *Tx {
	return &Tx{
		base:    base,
		pending: make(map[string]*Write),
		reads:   make(map[string]Read),
	}
}

// Has implements Stub.
func (t *Tx) Has(ctx context.Context, key string) (bool, error) {
	_, err := t.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Get implements Stub.
func (t *Tx) Get(ctx context.Context, key string) ([]byte, error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil, ErrTxDone
	}
	if w, ok := t.pending[key]; ok {
		t.mu.Unlock()
		if w.Delete {
			return nil, ErrNotFound
		}
		return slices.Clone(w.Value), nil
	}
	if r, ok := t.reads[key]; ok {
		t.mu.Unlock()
		if !r.Found {
			return nil, ErrNotFound
		}
		return slices.Clone(r.Value), nil
	}
	t.mu.Unlock()

	v, err := t.base.Get(ctx, key)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	t.mu.Lock()
	if _, ok := t.reads[key]; !ok {
		t.reads[key] = Read{Key: key, Value: slices.Clone(v), Found: found}
	}
	t.mu.Unlock()

	if !found {
		return nil, ErrNotFound
	}
	return v, nil
}

// Put implements Stub.
func (t *Tx) Put(_ context.Context, key string, value []byte) error {
	return t.buffer(Write{Key: key, Value: slices.Clone(value)})
}

// Delete implements Stub.
func (t *Tx) Delete(_ context.Context, key string) error {
	return t.buffer(Write{Key: key, Delete: true})
}

func (t *Tx) buffer(w Write) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return ErrTxDone
	}
	if _, ok := t.pending[w.Key]; !ok {
		t.order = append(t.order, w.Key)
	}
	t.pending[w.Key] = &w
	return nil
}

// Scan implements Stub, merging buffered writes over the base scan.
func (t *Tx) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	entries, err := t.base.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil, ErrTxDone
	}

	observed := make([]Entry, len(entries))
	for i, e := range entries {
		observed[i] = Entry{Key: e.Key, Value: slices.Clone(e.Value)}
	}
	t.ranges = append(t.ranges, RangeRead{Prefix: prefix, Entries: observed})

	merged := make(map[string][]byte, len(entries))
	for _, e := range entries {
		merged[e.Key] = e.Value
	}
	for key, w := range t.pending {
		if !HasPrefix(key, prefix) {
			continue
		}
		if w.Delete {
			delete(merged, key)
		} else {
			merged[key] = slices.Clone(w.Value)
		}
	}

	result := make([]Entry, 0, len(merged))
	for key, value := range merged {
		result = append(result, Entry{Key: key, Value: value})
	}
	slices.SortFunc(result, func(a, b Entry) int { return strings.Compare(a.Key, b.Key) })
	return result, nil
}

// Writes returns the buffered writes in first-write order.
func (t *Tx) Writes() []Write {
	t.mu.Lock()
	defer t.mu.Unlock()

	writes := make([]Write, 0, len(t.order))
	for _, key := range t.order {
		writes = append(writes, *t.pending[key])
	}
	return writes
}

// ReadSet returns what the transaction has read from its base so far,
// point reads in key order.
func (t *Tx) ReadSet() ReadSet {
	t.mu.Lock()
	defer t.mu.Unlock()

	rs := ReadSet{
		Reads:  make([]Read, 0, len(t.reads)),
		Ranges: slices.Clone(t.ranges),
	}
	for _, r := range t.reads {
		rs.Reads = append(rs.Reads, r)
	}
	slices.SortFunc(rs.Reads, func(a, b Read) int { return strings.Compare(a.Key, b.Key) })
	return rs
}

// Commit validates the read-set and flushes the buffered writes to the base
// in one step, then finishes the transaction. It returns ErrConflict when
// something the transaction read has changed; nothing is written then.
func (t *Tx) Commit(ctx context.Context) error {
	writes := t.Writes()
	rs := t.ReadSet()

	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return ErrTxDone
	}
	t.done = true
	t.mu.Unlock()

	if len(writes) == 0 && rs.Empty() {
		return nil
	}
	return ApplyChecked(ctx, t.base, rs, writes)
}

// Discard drops the buffered writes.
func (t *Tx) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done = true
	t.pending = nil
	t.order = nil
	t.reads = nil
	t.ranges = nil
}
