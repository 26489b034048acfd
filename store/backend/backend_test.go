package backend_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"

	"github.com/xraph/coinledger/coin"
	"github.com/xraph/coinledger/store/backend"
	"github.com/xraph/coinledger/store/memory"
)

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		cfg  backend.Config
	}{
		{"Default", backend.Config{}},
		{"MemoryMsgpack", backend.Config{Driver: backend.DriverMemory, Codec: "msgpack"}},
		{"Redis", backend.Config{Driver: backend.DriverRedis, DSN: mr.Addr(), Namespace: "t:"}},
		{"SQLite", backend.Config{Driver: backend.DriverSQLite, DSN: filepath.Join(t.TempDir(), "coins.db")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, err := backend.Open(ctx, tt.cfg)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })

			require.NoError(t, s.Migrate(ctx))
			require.NoError(t, s.Ping(ctx))

			c, err := coin.New("C", 2, "O")
			require.NoError(t, err)
			require.NoError(t, s.PutCoin(ctx, c))
			got, err := s.GetCoin(ctx, c.UID)
			require.NoError(t, err)
			assert.Equal(t, c.UID, got.UID)
		})
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []backend.Config{
		{Driver: "etcd"},
		{Driver: backend.DriverRedis},
		{Driver: backend.DriverSQLite},
		{Codec: "xml"},
	} {
		_, err := backend.Open(ctx, cfg)
		assert.Error(t, err, "%+v", cfg)
	}
}

func TestFromGroveRejects(t *testing.T) {
	_, err := backend.FromGrove(nil, backend.DriverPostgres)
	assert.Error(t, err)

	_, err = backend.FromGrove(&grove.DB{}, backend.DriverRedis)
	assert.Error(t, err)
}

func TestWrap(t *testing.T) {
	s, err := backend.Wrap(memory.New(), backend.Config{Codec: "msgpack"})
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))

	_, err = backend.Wrap(memory.New(), backend.Config{Codec: "xml"})
	assert.Error(t, err)
}
