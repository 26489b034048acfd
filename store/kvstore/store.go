// Package kvstore implements store.Store over a kv.Backend.
//
// Key layout:
//
//	<principal uid>                               principal marker
//	coin/<owner>/<coin id>                        coin aggregate
//	coin_account/<esc(coin uid)>/<esc(object)>    account balance
//
// Each path segment of an account key is escaped so the prefix of one coin
// never matches the accounts of another coin whose uid extends it.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/coinledger"
	"github.com/xraph/coinledger/coin"
	"github.com/xraph/coinledger/kv"
	"github.com/xraph/coinledger/store"
)

// AccountPrefix is the namespace every account key lives under.
const AccountPrefix = "coin_account/"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// DefaultMaxAttempts bounds how often Atomic runs a transaction that keeps
// losing to concurrent commits.
const DefaultMaxAttempts = 64

// Store implements store.Store.
type Store struct {
	backend     kv.Backend
	stub        kv.Stub
	codec       Codec
	inTx        bool
	maxAttempts uint
}

// Option configures a Store.
type Option func(*Store)

// WithCodec sets the record codec. Default is JSON.
func WithCodec(c Codec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// WithMaxAttempts sets how many times Atomic runs a transaction before
// giving up with kv.ErrConflict. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = uint(n)
		}
	}
}

// New creates a Store over backend.
func New(backend kv.Backend, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		stub:        backend,
		codec:       JSONCodec{},
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying backend.
func (s *Store) Backend() kv.Backend { return s.backend }

// AccountKey returns the state key of the (coin, object) account.
func AccountKey(coinUID, objectUID string) string {
	return AccountKeyPrefix(coinUID) + url.PathEscape(objectUID)
}

// AccountKeyPrefix returns the common prefix of every account key of coinUID.
func AccountKeyPrefix(coinUID string) string {
	return AccountPrefix + url.PathEscape(coinUID) + "/"
}

// ==================== State ====================

func (s *Store) HasState(ctx context.Context, key string) (bool, error) {
	return s.stub.Has(ctx, key)
}

// ==================== Principals ====================

// PutPrincipal records uid as an existing principal. Coin and account
// namespaces are reserved.
func (s *Store) PutPrincipal(ctx context.Context, uid string) error {
	if uid == "" || coin.IsUID(uid) || strings.HasPrefix(uid, AccountPrefix) {
		return fmt.Errorf("%w: principal uid %q", coinledger.ErrInvalidInput, uid)
	}
	data, err := s.codec.Marshal(&principalRecord{UID: uid})
	if err != nil {
		return fmt.Errorf("kvstore: encode principal: %w", err)
	}
	return s.stub.Put(ctx, uid, data)
}

func (s *Store) DeletePrincipal(ctx context.Context, uid string) error {
	return s.stub.Delete(ctx, uid)
}

// ==================== Coins ====================

func (s *Store) GetCoin(ctx context.Context, uid string) (*coin.Coin, error) {
	data, err := s.stub.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, coinledger.ErrCoinNotFound
		}
		return nil, err
	}

	var r coinRecord
	if err := s.codec.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("kvstore: decode coin %s: %w", uid, err)
	}
	return fromCoinRecord(&r)
}

func (s *Store) PutCoin(ctx context.Context, c *coin.Coin) error {
	data, err := s.codec.Marshal(toCoinRecord(c))
	if err != nil {
		return fmt.Errorf("kvstore: encode coin %s: %w", c.UID, err)
	}
	return s.stub.Put(ctx, c.UID, data)
}

func (s *Store) DeleteCoin(ctx context.Context, uid string) error {
	return s.stub.Delete(ctx, uid)
}

// ==================== Accounts ====================

func (s *Store) GetAccount(ctx context.Context, coinUID, objectUID string) (*coin.Account, error) {
	data, err := s.stub.Get(ctx, AccountKey(coinUID, objectUID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, coinledger.ErrAccountNotFound
		}
		return nil, err
	}
	return s.decodeAccount(data)
}

// SaveAccount writes a, or deletes it when its balance is empty.
func (s *Store) SaveAccount(ctx context.Context, a *coin.Account) error {
	if a.IsEmpty() {
		return s.DeleteAccount(ctx, a.CoinUID, a.ObjectUID)
	}

	data, err := s.codec.Marshal(toAccountRecord(a))
	if err != nil {
		return fmt.Errorf("kvstore: encode account %s/%s: %w", a.CoinUID, a.ObjectUID, err)
	}
	return s.stub.Put(ctx, AccountKey(a.CoinUID, a.ObjectUID), data)
}

func (s *Store) DeleteAccount(ctx context.Context, coinUID, objectUID string) error {
	return s.stub.Delete(ctx, AccountKey(coinUID, objectUID))
}

func (s *Store) ListAccounts(ctx context.Context, coinUID string) ([]*coin.Account, error) {
	entries, err := s.stub.Scan(ctx, AccountKeyPrefix(coinUID))
	if err != nil {
		return nil, err
	}

	accounts := make([]*coin.Account, 0, len(entries))
	for _, e := range entries {
		a, err := s.decodeAccount(e.Value)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (s *Store) decodeAccount(data []byte) (*coin.Account, error) {
	var r accountRecord
	if err := s.codec.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("kvstore: decode account: %w", err)
	}
	return fromAccountRecord(&r)
}

// ==================== Transactions ====================

// Atomic runs fn in a kv.Tx and commits it. When the commit fails with
// kv.ErrConflict, fn is run again on a fresh transaction after a short
// jittered backoff, up to the configured number of attempts. fn must not
// have side effects outside the store view it is given.
func (s *Store) Atomic(ctx context.Context, fn func(store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	attempt := func() (struct{}, error) {
		tx := kv.Begin(s.backend)
		view := &Store{
			backend: s.backend,
			stub:    tx,
			codec:   s.codec,
			inTx:    true,
		}

		if err := fn(view); err != nil {
			tx.Discard()
			return struct{}{}, backoff.Permanent(err)
		}
		err := tx.Commit(ctx)
		if err != nil && !errors.Is(err, kv.ErrConflict) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(conflictBackOff()),
		backoff.WithMaxTries(s.maxAttempts),
		backoff.WithMaxElapsedTime(0),
	)
	return err
}

func conflictBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	return b
}

// ==================== Core ====================

func (s *Store) Migrate(ctx context.Context) error { return s.backend.Migrate(ctx) }

func (s *Store) Ping(ctx context.Context) error { return s.backend.Ping(ctx) }

func (s *Store) Close() error { return s.backend.Close() }
