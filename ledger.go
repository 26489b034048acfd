package coinledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/xraph/coinledger/coin"
	"github.com/xraph/coinledger/store"
	"github.com/xraph/coinledger/types"
)

// DefaultRemoveBatchSize is the number of account deletions committed together
// while removing a coin.
const DefaultRemoveBatchSize = 100

// Ledger is the balance-mutation engine. Every operation re-reads the coin and
// the accounts it touches inside one store transaction, computes the new
// balances with the pure functions of package coin, and commits all writes
// together, so re-running an operation after a store conflict is safe.
type Ledger struct {
	store  store.Store
	logger *slog.Logger

	removeBatchSize int
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:           s,
		logger:          slog.Default(),
		removeBatchSize: DefaultRemoveBatchSize,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithRemoveBatchSize sets how many account deletions Remove commits at once.
func WithRemoveBatchSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.removeBatchSize = n
		}
	}
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Movement is the result of a single-account operation.
type Movement struct {
	Coin    *coin.Coin    `json:"coin"`
	Account *coin.Account `json:"account"`
	// Amount is the amount moved; for nullify operations, the amount cleared.
	Amount types.Amount `json:"amount"`
}

// TransferResult is the result of a transfer. Object and Target are the same
// record when the object transfers to itself.
type TransferResult struct {
	Coin   *coin.Coin    `json:"coin"`
	Object *coin.Account `json:"object"`
	Target *coin.Account `json:"target"`
	Amount types.Amount  `json:"amount"`
}

// ──────────────────────────────────────────────────
// Coin Management
// ──────────────────────────────────────────────────

// Create creates a zero-balance coin coinID owned by ownerUID.
func (l *Ledger) Create(ctx context.Context, coinID string, decimals int, ownerUID string) (*coin.Coin, error) {
	c, err := coin.New(coinID, decimals, ownerUID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	err = l.store.Atomic(ctx, func(s store.Store) error {
		exists, err := s.HasState(ctx, c.UID)
		if err != nil {
			return err
		}
		if exists {
			return ErrCoinAlreadyExists
		}
		return s.PutCoin(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("coin created", "coin_uid", c.UID, "decimals", c.Decimals, "owner_uid", c.OwnerUID)
	return c, nil
}

// Get retrieves a coin by uid.
func (l *Ledger) Get(ctx context.Context, coinUID string) (*coin.Coin, error) {
	return l.store.GetCoin(ctx, coinUID)
}

// Remove deletes every account of the coin, then the coin itself. Accounts are
// deleted in batches, each batch atomic. An interrupted removal leaves only
// whole batches behind and is completed by calling Remove again; removing a
// coin that no longer exists sweeps leftover accounts and succeeds.
func (l *Ledger) Remove(ctx context.Context, coinUID string) error {
	accounts, err := l.store.ListAccounts(ctx, coinUID)
	if err != nil {
		return err
	}

	for batch := range slices.Chunk(accounts, l.removeBatchSize) {
		err := l.store.Atomic(ctx, func(s store.Store) error {
			for _, a := range batch {
				if err := s.DeleteAccount(ctx, a.CoinUID, a.ObjectUID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("coinledger: remove %s accounts: %w", coinUID, err)
		}
	}

	if err := l.store.DeleteCoin(ctx, coinUID); err != nil {
		return fmt.Errorf("coinledger: remove %s: %w", coinUID, err)
	}

	l.logger.Debug("coin removed", "coin_uid", coinUID, "accounts", len(accounts))
	return nil
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

// AccountGet returns the account of objectUID. An account that does not exist
// is returned as a zero-balance placeholder.
func (l *Ledger) AccountGet(ctx context.Context, coinUID, objectUID string) (*coin.Account, error) {
	if _, err := l.store.GetCoin(ctx, coinUID); err != nil {
		return nil, err
	}
	return loadAccount(ctx, l.store, coinUID, objectUID)
}

// AccountList returns every non-empty account of the coin, ordered by key.
func (l *Ledger) AccountList(ctx context.Context, coinUID string) ([]*coin.Account, error) {
	if _, err := l.store.GetCoin(ctx, coinUID); err != nil {
		return nil, err
	}
	return l.store.ListAccounts(ctx, coinUID)
}

// Verify checks that the coin aggregate equals the sum of its accounts.
func (l *Ledger) Verify(ctx context.Context, coinUID string) error {
	return l.store.Atomic(ctx, func(s store.Store) error {
		c, err := s.GetCoin(ctx, coinUID)
		if err != nil {
			return err
		}
		accounts, err := s.ListAccounts(ctx, coinUID)
		if err != nil {
			return err
		}

		var sum coin.Balance
		for _, a := range accounts {
			sum.Available = sum.Available.Add(a.Balance.Available)
			sum.Held = sum.Held.Add(a.Balance.Held)
		}
		if !sum.Equal(c.Balance) {
			return fmt.Errorf("%w: %s aggregate %s/%s, accounts %s/%s", ErrBalanceMismatch, coinUID,
				c.Balance.Available, c.Balance.Held, sum.Available, sum.Held)
		}
		return nil
	})
}

func loadAccount(ctx context.Context, s store.Store, coinUID, objectUID string) (*coin.Account, error) {
	a, err := s.GetAccount(ctx, coinUID, objectUID)
	if errors.Is(err, ErrAccountNotFound) {
		return coin.NewAccount(coinUID, objectUID), nil
	}
	return a, err
}

// ──────────────────────────────────────────────────
// Single-account operations
// ──────────────────────────────────────────────────

// Emit issues v to the object's available balance.
func (l *Ledger) Emit(ctx context.Context, coinUID, objectUID string, v types.Amount) (*Movement, error) {
	return l.Apply(ctx, coin.OpEmit, coinUID, objectUID, v)
}

// EmitHeld issues v to the object's held balance.
func (l *Ledger) EmitHeld(ctx context.Context, coinUID, objectUID string, v types.Amount) (*Movement, error) {
	return l.Apply(ctx, coin.OpEmitHeld, coinUID, objectUID, v)
}

// Burn destroys v of the object's available balance.
func (l *Ledger) Burn(ctx context.Context, coinUID, objectUID string, v types.Amount) (*Movement, error) {
	return l.Apply(ctx, coin.OpBurn, coinUID, objectUID, v)
}

// BurnHeld destroys v of the object's held balance.
func (l *Ledger) BurnHeld(ctx context.Context, coinUID, objectUID string, v types.Amount) (*Movement, error) {
	return l.Apply(ctx, coin.OpBurnHeld, coinUID, objectUID, v)
}

// Hold moves v from the object's available to its held balance.
func (l *Ledger) Hold(ctx context.Context, coinUID, objectUID string, v types.Amount) (*Movement, error) {
	return l.Apply(ctx, coin.OpHold, coinUID, objectUID, v)
}

// Unhold moves v from the object's held to its available balance.
func (l *Ledger) Unhold(ctx context.Context, coinUID, objectUID string, v types.Amount) (*Movement, error) {
	return l.Apply(ctx, coin.OpUnhold, coinUID, objectUID, v)
}

// Nullify clears the object's available balance. Movement.Amount is the
// amount cleared, possibly zero.
func (l *Ledger) Nullify(ctx context.Context, coinUID, objectUID string) (*Movement, error) {
	return l.Apply(ctx, coin.OpNullify, coinUID, objectUID, types.Zero)
}

// NullifyHeld clears the object's held balance.
func (l *Ledger) NullifyHeld(ctx context.Context, coinUID, objectUID string) (*Movement, error) {
	return l.Apply(ctx, coin.OpNullifyHeld, coinUID, objectUID, types.Zero)
}

// Apply runs op against the coin and the object's account. Nothing is written
// if op fails validation or moves a zero amount.
func (l *Ledger) Apply(ctx context.Context, op coin.Op, coinUID, objectUID string, v types.Amount) (*Movement, error) {
	if objectUID == "" {
		return nil, fmt.Errorf("%w: empty object uid", ErrInvalidInput)
	}

	var res *Movement
	err := l.store.Atomic(ctx, func(s store.Store) error {
		c, err := s.GetCoin(ctx, coinUID)
		if err != nil {
			return err
		}
		a, err := loadAccount(ctx, s, coinUID, objectUID)
		if err != nil {
			return err
		}

		r, err := coin.Apply(op, c.Balance, a.Balance, v)
		if err != nil {
			return err
		}
		c.Balance = r.Coin
		a.Balance = r.Account
		res = &Movement{Coin: c, Account: a, Amount: r.Amount}

		if r.Amount.IsZero() {
			return nil
		}
		if err := s.PutCoin(ctx, c); err != nil {
			return err
		}
		return s.SaveAccount(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("coin operation applied",
		"op", op,
		"coin_uid", coinUID,
		"object_uid", objectUID,
		"amount", res.Amount.String(),
	)
	return res, nil
}

// ──────────────────────────────────────────────────
// Transfers
// ──────────────────────────────────────────────────

// Transfer moves v from the object's available to the target's available balance.
func (l *Ledger) Transfer(ctx context.Context, coinUID, objectUID, targetUID string, v types.Amount) (*TransferResult, error) {
	return l.ApplyTransfer(ctx, coin.Transfer, coinUID, objectUID, targetUID, v)
}

// TransferToHeld moves v from the object's available to the target's held balance.
func (l *Ledger) TransferToHeld(ctx context.Context, coinUID, objectUID, targetUID string, v types.Amount) (*TransferResult, error) {
	return l.ApplyTransfer(ctx, coin.TransferToHeld, coinUID, objectUID, targetUID, v)
}

// TransferFromHeld moves v from the object's held to the target's available balance.
func (l *Ledger) TransferFromHeld(ctx context.Context, coinUID, objectUID, targetUID string, v types.Amount) (*TransferResult, error) {
	return l.ApplyTransfer(ctx, coin.TransferFromHeld, coinUID, objectUID, targetUID, v)
}

// TransferFromToHeld moves v from the object's held to the target's held balance.
func (l *Ledger) TransferFromToHeld(ctx context.Context, coinUID, objectUID, targetUID string, v types.Amount) (*TransferResult, error) {
	return l.ApplyTransfer(ctx, coin.TransferFromToHeld, coinUID, objectUID, targetUID, v)
}

// ApplyTransfer runs a transfer of the given kind. The engine does not reject
// objectUID == targetUID: the debit and credit then apply to the same account,
// making a plain transfer a no-op and the held variants a hold or unhold.
func (l *Ledger) ApplyTransfer(ctx context.Context, kind coin.TransferKind, coinUID, objectUID, targetUID string, v types.Amount) (*TransferResult, error) {
	if objectUID == "" || targetUID == "" {
		return nil, fmt.Errorf("%w: empty object or target uid", ErrInvalidInput)
	}
	from, to := kind.Buckets()

	var res *TransferResult
	err := l.store.Atomic(ctx, func(s store.Store) error {
		c, err := s.GetCoin(ctx, coinUID)
		if err != nil {
			return err
		}
		object, err := loadAccount(ctx, s, coinUID, objectUID)
		if err != nil {
			return err
		}

		target := object
		var r coin.TransferResult
		if objectUID == targetUID {
			r, err = coin.ApplyTransferSelf(kind, c.Balance, object.Balance, v)
		} else {
			target, err = loadAccount(ctx, s, coinUID, targetUID)
			if err != nil {
				return err
			}
			r, err = coin.ApplyTransfer(kind, c.Balance, object.Balance, target.Balance, v)
		}
		if err != nil {
			return err
		}

		c.Balance = r.Coin
		object.Balance = r.Object
		target.Balance = r.Target
		res = &TransferResult{Coin: c, Object: object, Target: target, Amount: v}

		if v.IsZero() {
			return nil
		}
		if from != to {
			if err := s.PutCoin(ctx, c); err != nil {
				return err
			}
		}
		if err := s.SaveAccount(ctx, object); err != nil {
			return err
		}
		if target == object {
			return nil
		}
		return s.SaveAccount(ctx, target)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("coin transfer applied",
		"kind", kind,
		"coin_uid", coinUID,
		"object_uid", objectUID,
		"target_uid", targetUID,
		"amount", v.String(),
	)
	return res, nil
}
