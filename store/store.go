// Package store defines the persistence contract for coins, accounts and
// principals. The kvstore package implements it over any kv.Backend.
package store

import (
	"context"

	"github.com/xraph/coinledger/coin"
)

// Store is the unified storage interface used by the ledger engine and service.
type Store interface {
	// State methods
	HasState(ctx context.Context, key string) (bool, error)

	// Principal methods
	PutPrincipal(ctx context.Context, uid string) error
	DeletePrincipal(ctx context.Context, uid string) error

	// Coin methods
	GetCoin(ctx context.Context, uid string) (*coin.Coin, error)
	PutCoin(ctx context.Context, c *coin.Coin) error
	DeleteCoin(ctx context.Context, uid string) error

	// Account methods. SaveAccount deletes the record instead of writing an
	// empty balance, so an account exists only while it holds something.
	GetAccount(ctx context.Context, coinUID, objectUID string) (*coin.Account, error)
	SaveAccount(ctx context.Context, a *coin.Account) error
	DeleteAccount(ctx context.Context, coinUID, objectUID string) error
	ListAccounts(ctx context.Context, coinUID string) ([]*coin.Account, error)

	// Atomic runs fn against a transactional view of the store. Writes made
	// through that view are committed together when fn returns nil and
	// discarded otherwise. Nested calls join the outer transaction.
	Atomic(ctx context.Context, fn func(Store) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
