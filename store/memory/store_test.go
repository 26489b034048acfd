package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/coinledger/kv"
	"github.com/xraph/coinledger/kv/kvtest"
)

func TestStoreContract(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Backend {
		return New()
	})
}

func TestStoreClosed(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	require.Equal(t, 1, s.Len())
	require.NoError(t, s.Close())

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, kv.ErrClosed)
	require.ErrorIs(t, s.Put(ctx, "k", nil), kv.ErrClosed)
	require.ErrorIs(t, s.Ping(ctx), kv.ErrClosed)
}

func TestStoreGetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("abc")))

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	v[0] = 'z'

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)
}
