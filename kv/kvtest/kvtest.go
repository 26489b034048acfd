// Package kvtest holds the behavioural contract every kv.Backend must satisfy.
// Backend packages call Run from their own tests.
package kvtest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/coinledger/kv"
)

// Factory returns a fresh, migrated, empty backend.
type Factory func(t *testing.T) kv.Backend

// Writers is the number of concurrent transactions ConcurrentIncrement runs.
const Writers = 20

// Run exercises b against the kv.Stub and kv.Applier contracts.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		_, err := b.Get(ctx, "absent")
		require.ErrorIs(t, err, kv.ErrNotFound)

		ok, err := b.Has(ctx, "absent")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("PutGetOverwrite", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Put(ctx, "k", []byte("v1")))
		require.NoError(t, b.Put(ctx, "k", []byte("v2")))

		v, err := b.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("v2"), v)

		ok, err := b.Has(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Put(ctx, "k", []byte("v")))
		require.NoError(t, b.Delete(ctx, "k"))
		require.NoError(t, b.Delete(ctx, "k"))

		_, err := b.Get(ctx, "k")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("ScanPrefix", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		for _, k := range []string{"a/2", "a/1", "ab/1", "b/1", "a%/1", "a_/1"} {
			require.NoError(t, b.Put(ctx, k, []byte(k)))
		}

		entries, err := b.Scan(ctx, "a/")
		require.NoError(t, err)
		require.Equal(t, []kv.Entry{
			{Key: "a/1", Value: []byte("a/1")},
			{Key: "a/2", Value: []byte("a/2")},
		}, entries)

		// Wildcard characters in the prefix match literally.
		entries, err = b.Scan(ctx, "a%")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "a%/1", entries[0].Key)

		entries, err = b.Scan(ctx, "a_")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "a_/1", entries[0].Key)

		entries, err = b.Scan(ctx, "zzz")
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("TxCommit", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Put(ctx, "p/keep", []byte("1")))
		require.NoError(t, b.Put(ctx, "p/drop", []byte("2")))

		tx := kv.Begin(b)
		require.NoError(t, tx.Put(ctx, "p/new", []byte("3")))
		require.NoError(t, tx.Delete(ctx, "p/drop"))

		// Buffered writes are visible inside the transaction only.
		entries, err := tx.Scan(ctx, "p/")
		require.NoError(t, err)
		require.Equal(t, []kv.Entry{
			{Key: "p/keep", Value: []byte("1")},
			{Key: "p/new", Value: []byte("3")},
		}, entries)

		ok, err := b.Has(ctx, "p/new")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, tx.Commit(ctx))

		entries, err = b.Scan(ctx, "p/")
		require.NoError(t, err)
		require.Equal(t, []kv.Entry{
			{Key: "p/keep", Value: []byte("1")},
			{Key: "p/new", Value: []byte("3")},
		}, entries)
	})

	t.Run("TxDiscard", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		tx := kv.Begin(b)
		require.NoError(t, tx.Put(ctx, "k", []byte("v")))
		tx.Discard()

		ok, err := b.Has(ctx, "k")
		require.NoError(t, err)
		require.False(t, ok)
		require.ErrorIs(t, tx.Commit(ctx), kv.ErrTxDone)
	})

	t.Run("ApplyBatch", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Put(ctx, "x", []byte("old")))
		require.NoError(t, kv.ApplyWrites(ctx, b, []kv.Write{
			{Key: "x", Delete: true},
			{Key: "y", Value: []byte("1")},
			{Key: "y", Value: []byte("2")},
		}))

		_, err := b.Get(ctx, "x")
		require.ErrorIs(t, err, kv.ErrNotFound)

		v, err := b.Get(ctx, "y")
		require.NoError(t, err)
		require.Equal(t, []byte("2"), v)
	})

	t.Run("StaleReadConflicts", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Put(ctx, "balance", []byte("10")))

		tx := kv.Begin(b)
		v, err := tx.Get(ctx, "balance")
		require.NoError(t, err)
		require.Equal(t, []byte("10"), v)
		require.NoError(t, tx.Put(ctx, "balance", []byte("15")))
		require.NoError(t, tx.Put(ctx, "log", []byte("+5")))

		require.NoError(t, b.Put(ctx, "balance", []byte("11")))

		require.ErrorIs(t, tx.Commit(ctx), kv.ErrConflict)

		v, err = b.Get(ctx, "balance")
		require.NoError(t, err)
		require.Equal(t, []byte("11"), v)
		_, err = b.Get(ctx, "log")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("AbsentReadConflicts", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		tx := kv.Begin(b)
		ok, err := tx.Has(ctx, "marker")
		require.NoError(t, err)
		require.False(t, ok)
		require.NoError(t, tx.Put(ctx, "marker", []byte("tx")))

		require.NoError(t, b.Put(ctx, "marker", []byte("other")))

		require.ErrorIs(t, tx.Commit(ctx), kv.ErrConflict)
		v, err := b.Get(ctx, "marker")
		require.NoError(t, err)
		require.Equal(t, []byte("other"), v)
	})

	t.Run("ScanPhantomConflicts", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Put(ctx, "acct/a", []byte("1")))

		tx := kv.Begin(b)
		entries, err := tx.Scan(ctx, "acct/")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.NoError(t, tx.Put(ctx, "sum", []byte("1")))

		require.NoError(t, b.Put(ctx, "acct/b", []byte("2")))

		require.ErrorIs(t, tx.Commit(ctx), kv.ErrConflict)
		_, err = b.Get(ctx, "sum")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("ReadOnlyCommit", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Put(ctx, "k", []byte("v")))

		tx := kv.Begin(b)
		_, err := tx.Get(ctx, "k")
		require.NoError(t, err)
		_, err = tx.Scan(ctx, "")
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))

		tx = kv.Begin(b)
		_, err = tx.Get(ctx, "k")
		require.NoError(t, err)
		require.NoError(t, b.Delete(ctx, "k"))
		require.ErrorIs(t, tx.Commit(ctx), kv.ErrConflict)
	})

	t.Run("ConcurrentIncrement", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Put(ctx, "counter", []byte("0")))

		var wg sync.WaitGroup
		errs := make(chan error, Writers)
		for range Writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- increment(ctx, b, "counter")
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		v, err := b.Get(ctx, "counter")
		require.NoError(t, err)
		require.Equal(t, strconv.Itoa(Writers), string(v))
	})

	t.Run("Ping", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Ping(context.Background()))
	})
}

// increment adds one to the integer at key, retrying on conflict.
func increment(ctx context.Context, b kv.Stub, key string) error {
	for {
		tx := kv.Begin(b)
		v, err := tx.Get(ctx, key)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return err
		}
		if err := tx.Put(ctx, key, []byte(strconv.Itoa(n+1))); err != nil {
			return err
		}

		err = tx.Commit(ctx)
		if errors.Is(err, kv.ErrConflict) {
			continue
		}
		return err
	}
}
