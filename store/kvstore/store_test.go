package kvstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/coinledger"
	"github.com/xraph/coinledger/coin"
	"github.com/xraph/coinledger/kv"
	"github.com/xraph/coinledger/store"
	"github.com/xraph/coinledger/store/kvstore"
	"github.com/xraph/coinledger/store/memory"
	"github.com/xraph/coinledger/types"
)

func newCoin(t *testing.T, owner, id string) *coin.Coin {
	t.Helper()
	c, err := coin.New(id, 2, owner)
	require.NoError(t, err)
	return c
}

func account(coinUID, object, available, held string) *coin.Account {
	a := coin.NewAccount(coinUID, object)
	a.Balance.Available = types.MustParseAmount(available)
	a.Balance.Held = types.MustParseAmount(held)
	return a
}

func TestCodecs(t *testing.T) {
	for _, name := range []string{kvstore.CodecJSON, kvstore.CodecMsgpack} {
		t.Run(name, func(t *testing.T) {
			codec, err := kvstore.CodecByName(name)
			require.NoError(t, err)
			assert.Equal(t, name, codec.Name())

			ctx := context.Background()
			s := kvstore.New(memory.New(), kvstore.WithCodec(codec))

			c := newCoin(t, "O", "C")
			c.Balance.Available = types.MustParseAmount("12.34")
			c.Balance.Held = types.MustParseAmount("0.01")
			require.NoError(t, s.PutCoin(ctx, c))

			got, err := s.GetCoin(ctx, c.UID)
			require.NoError(t, err)
			assert.Equal(t, c.UID, got.UID)
			assert.Equal(t, "C", got.CoinID)
			assert.Equal(t, "O", got.OwnerUID)
			assert.Equal(t, 2, got.Decimals)
			assert.True(t, got.Balance.Equal(c.Balance))

			a := account(c.UID, "alice", "1.5", "0")
			require.NoError(t, s.SaveAccount(ctx, a))
			gotA, err := s.GetAccount(ctx, c.UID, "alice")
			require.NoError(t, err)
			assert.Equal(t, "alice", gotA.ObjectUID)
			assert.Equal(t, "1.5", gotA.Balance.Available.String())
		})
	}

	_, err := kvstore.CodecByName("xml")
	assert.Error(t, err)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := kvstore.New(memory.New())

	_, err := s.GetCoin(ctx, "coin/O/C")
	assert.ErrorIs(t, err, coinledger.ErrCoinNotFound)

	_, err = s.GetAccount(ctx, "coin/O/C", "alice")
	assert.ErrorIs(t, err, coinledger.ErrAccountNotFound)
}

func TestSaveAccountElidesEmpty(t *testing.T) {
	ctx := context.Background()
	s := kvstore.New(memory.New())

	require.NoError(t, s.SaveAccount(ctx, account("coin/O/C", "alice", "5", "0")))
	has, err := s.HasState(ctx, kvstore.AccountKey("coin/O/C", "alice"))
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.SaveAccount(ctx, account("coin/O/C", "alice", "0.00", "0")))
	has, err = s.HasState(ctx, kvstore.AccountKey("coin/O/C", "alice"))
	require.NoError(t, err)
	assert.False(t, has)

	// Saving an empty account that never existed writes nothing.
	require.NoError(t, s.SaveAccount(ctx, coin.NewAccount("coin/O/C", "bob")))
	list, err := s.ListAccounts(ctx, "coin/O/C")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListAccountsIsolatesCoins(t *testing.T) {
	ctx := context.Background()
	s := kvstore.New(memory.New())

	coins := []string{"coin/O/C", "coin/O/C2", "coin/O/C/x", "coin/O%2FC/x"}
	for _, uid := range coins {
		require.NoError(t, s.SaveAccount(ctx, account(uid, "alice", "1", "0")))
		require.NoError(t, s.SaveAccount(ctx, account(uid, "bob/1", "0", "2")))
	}

	for _, uid := range coins {
		list, err := s.ListAccounts(ctx, uid)
		require.NoError(t, err)
		require.Len(t, list, 2, uid)
		for _, a := range list {
			assert.Equal(t, uid, a.CoinUID)
		}
		assert.Equal(t, "alice", list[0].ObjectUID)
		assert.Equal(t, "bob/1", list[1].ObjectUID)
	}
}

func TestPutPrincipal(t *testing.T) {
	ctx := context.Background()
	s := kvstore.New(memory.New())

	require.NoError(t, s.PutPrincipal(ctx, "alice"))
	has, err := s.HasState(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, has)

	for _, uid := range []string{"", "coin/O/C", kvstore.AccountKey("coin/O/C", "alice")} {
		err := s.PutPrincipal(ctx, uid)
		assert.ErrorIs(t, err, coinledger.ErrInvalidInput, uid)
	}

	require.NoError(t, s.DeletePrincipal(ctx, "alice"))
	has, err = s.HasState(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAtomic(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	s := kvstore.New(backend)

	c := newCoin(t, "O", "C")

	t.Run("Commit", func(t *testing.T) {
		err := s.Atomic(ctx, func(tx store.Store) error {
			require.NoError(t, tx.PutCoin(ctx, c))
			require.NoError(t, tx.SaveAccount(ctx, account(c.UID, "alice", "1", "0")))

			// Reads inside the transaction see its own writes.
			_, err := tx.GetCoin(ctx, c.UID)
			require.NoError(t, err)

			// Nothing reaches the backend before commit.
			assert.Equal(t, 0, backend.Len())
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, backend.Len())
	})

	t.Run("Discard", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.Atomic(ctx, func(tx store.Store) error {
			require.NoError(t, tx.DeleteCoin(ctx, c.UID))
			require.NoError(t, tx.SaveAccount(ctx, account(c.UID, "bob", "3", "0")))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 2, backend.Len())

		_, err = s.GetCoin(ctx, c.UID)
		assert.NoError(t, err)
	})

	t.Run("Nested", func(t *testing.T) {
		err := s.Atomic(ctx, func(outer store.Store) error {
			err := outer.Atomic(ctx, func(inner store.Store) error {
				return inner.SaveAccount(ctx, account(c.UID, "carol", "7", "0"))
			})
			require.NoError(t, err)

			// The inner call joined the outer transaction.
			_, err = backend.Get(ctx, kvstore.AccountKey(c.UID, "carol"))
			assert.Error(t, err)

			_, err = outer.GetAccount(ctx, c.UID, "carol")
			return err
		})
		require.NoError(t, err)

		a, err := s.GetAccount(ctx, c.UID, "carol")
		require.NoError(t, err)
		assert.Equal(t, "7", a.Balance.Available.String())
	})
}

// racingBackend lets another writer bump the coin before each of the first
// n commits, so those commits see a stale read.
type racingBackend struct {
	*memory.Store
	n     int
	bump  func()
	tries int
}

func (b *racingBackend) Apply(ctx context.Context, rs kv.ReadSet, writes []kv.Write) error {
	b.tries++
	if b.n > 0 {
		b.n--
		b.bump()
	}
	return b.Store.Apply(ctx, rs, writes)
}

func TestAtomicRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	backend := &racingBackend{Store: memory.New()}
	s := kvstore.New(backend)

	c := newCoin(t, "O", "C")
	require.NoError(t, s.PutCoin(ctx, c))
	backend.tries = 0

	direct := kvstore.New(backend.Store)
	backend.bump = func() {
		other, err := direct.GetCoin(ctx, c.UID)
		require.NoError(t, err)
		other.Balance.Held = other.Balance.Held.Add(types.MustParseAmount("1"))
		require.NoError(t, direct.PutCoin(ctx, other))
	}
	backend.n = 2

	runs := 0
	err := s.Atomic(ctx, func(tx store.Store) error {
		runs++
		got, err := tx.GetCoin(ctx, c.UID)
		if err != nil {
			return err
		}
		got.Balance.Available = got.Balance.Available.Add(types.MustParseAmount("5"))
		return tx.PutCoin(ctx, got)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, runs)
	assert.Equal(t, 3, backend.tries)

	got, err := s.GetCoin(ctx, c.UID)
	require.NoError(t, err)
	assert.Equal(t, "5", got.Balance.Available.String())
	assert.Equal(t, "2", got.Balance.Held.String())
}

func TestAtomicGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	backend := &racingBackend{Store: memory.New()}
	s := kvstore.New(backend, kvstore.WithMaxAttempts(2))

	c := newCoin(t, "O", "C")
	require.NoError(t, s.PutCoin(ctx, c))

	direct := kvstore.New(backend.Store)
	backend.bump = func() {
		c.Balance.Held = c.Balance.Held.Add(types.MustParseAmount("1"))
		require.NoError(t, direct.PutCoin(ctx, c))
	}
	backend.n = 10

	runs := 0
	err := s.Atomic(ctx, func(tx store.Store) error {
		runs++
		_, err := tx.GetCoin(ctx, c.UID)
		return err
	})
	assert.ErrorIs(t, err, kv.ErrConflict)
	assert.Equal(t, 2, runs)
}

func TestAtomicDoesNotRetryOtherErrors(t *testing.T) {
	ctx := context.Background()
	s := kvstore.New(memory.New())

	runs := 0
	err := s.Atomic(ctx, func(tx store.Store) error {
		runs++
		_, err := tx.GetCoin(ctx, "coin/O/NOPE")
		return err
	})
	assert.ErrorIs(t, err, coinledger.ErrCoinNotFound)
	assert.Equal(t, 1, runs)
}
