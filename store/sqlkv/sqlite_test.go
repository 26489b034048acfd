package sqlkv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/coinledger/kv"
	"github.com/xraph/coinledger/kv/kvtest"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteContract(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Backend {
		return newSQLiteStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	require.NoError(t, s.Migrate(ctx))

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}

func TestScanIsCaseSensitive(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "coin/O/C", []byte("upper")))
	require.NoError(t, s.Put(ctx, "coin/o/c", []byte("lower")))

	entries, err := s.Scan(ctx, "coin/O/")
	require.NoError(t, err)
	require.Equal(t, []kv.Entry{{Key: "coin/O/C", Value: []byte("upper")}}, entries)
}

func TestApplyConflictRollsBack(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", []byte("2")))

	err := s.Apply(ctx, kv.ReadSet{Reads: []kv.Read{{Key: "a", Value: []byte("1"), Found: true}}},
		[]kv.Write{{Key: "b", Value: []byte("x")}})
	require.ErrorIs(t, err, kv.ErrConflict)

	_, err = s.Get(ctx, "b")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

type sqlStateErr string

func (e sqlStateErr) Error() string    { return "sqlstate " + string(e) }
func (e sqlStateErr) SQLState() string { return string(e) }

func TestIsSerializationFailure(t *testing.T) {
	require.True(t, isSerializationFailure(sqlStateErr("40001")))
	require.True(t, isSerializationFailure(errors.Join(errors.New("commit"), sqlStateErr("40P01"))))
	require.False(t, isSerializationFailure(sqlStateErr("23505")))
	require.False(t, isSerializationFailure(errors.New("plain")))
}
