// Package coinledger provides a double-entry balance ledger for fungible coins
// held by arbitrary principals inside a key-value state store.
//
// coinledger is designed as a library. The engine keeps two kinds of record
// consistent:
//
//   - a coin aggregate with the total available and held balance of all holders
//   - one account per (coin, holder) with that holder's available and held balance
//
// After every committed operation the coin's available balance equals the sum
// of its accounts' available balances, and likewise for held. An account whose
// balance is zero is not stored at all, so "the account exists" means "the
// holder owns something".
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/coinledger"
//	    "github.com/xraph/coinledger/store/kvstore"
//	    "github.com/xraph/coinledger/store/memory"
//	)
//
//	l := coinledger.New(kvstore.New(memory.New()))
//
//	c, err := l.Create(ctx, "GOLD", 2, "user/issuer")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	_, err = l.Emit(ctx, c.UID, "user/alice", coinledger.MustParseAmount("100.00"))
//	_, err = l.Hold(ctx, c.UID, "user/alice", coinledger.MustParseAmount("40.00"))
//	_, err = l.TransferFromHeld(ctx, c.UID, "user/alice", "user/bob", coinledger.MustParseAmount("40.00"))
//
// # Operations
//
// Single-account operations move the same amount on the coin aggregate and on
// the account: Emit, EmitHeld, Burn, BurnHeld, Hold, Unhold, Nullify and
// NullifyHeld. Transfers move an amount between two accounts: Transfer,
// TransferToHeld, TransferFromHeld and TransferFromToHeld. A debit larger than
// the bucket it draws from fails with ErrInsufficientBalance and writes nothing.
//
// The engine does not check that holders exist and does not reject transfers
// to self; the service package does both, and publishes events to plugins.
//
// # Amounts
//
// Amounts are arbitrary-precision decimals (see types.Amount). They are stored
// as decimal strings and never converted to floating point.
//
// # Storage
//
// The store.Store contract is implemented by store/kvstore over any kv.Backend:
// store/memory, store/redis, store/postgres, store/sqlite or store/mongo.
package coinledger
