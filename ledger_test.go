package coinledger_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/xraph/coinledger"
	"github.com/xraph/coinledger/coin"
	"github.com/xraph/coinledger/kv"
	"github.com/xraph/coinledger/store/kvstore"
	"github.com/xraph/coinledger/store/memory"
	"github.com/xraph/coinledger/types"
)

func amt(s string) types.Amount { return types.MustParseAmount(s) }

type fixture struct {
	ledger  *coinledger.Ledger
	store   *kvstore.Store
	backend *memory.Store
	coin    *coin.Coin
}

func newFixture(t *testing.T, opts ...coinledger.Option) *fixture {
	t.Helper()

	backend := memory.New()
	s := kvstore.New(backend)
	l := coinledger.New(s, opts...)

	c, err := l.Create(context.Background(), "C", 2, "O")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return &fixture{ledger: l, store: s, backend: backend, coin: c}
}

func (f *fixture) coinBalance(t *testing.T) coin.Balance {
	t.Helper()
	c, err := f.ledger.Get(context.Background(), f.coin.UID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return c.Balance
}

func (f *fixture) account(t *testing.T, object string) (*coin.Account, bool) {
	t.Helper()
	a, err := f.store.GetAccount(context.Background(), f.coin.UID, object)
	if errors.Is(err, coinledger.ErrAccountNotFound) {
		return nil, false
	}
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	return a, true
}

func (f *fixture) verify(t *testing.T) {
	t.Helper()
	if err := f.ledger.Verify(context.Background(), f.coin.UID); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestHoldAndTransferFromHeldScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ledger.Emit(ctx, f.coin.UID, "alice", amt("100.00")); err != nil {
		t.Fatal(err)
	}
	b := f.coinBalance(t)
	if f.coin.Format(b.Available) != "100.00" {
		t.Errorf("coin available: got %s", f.coin.Format(b.Available))
	}
	alice, ok := f.account(t, "alice")
	if !ok || f.coin.Format(alice.Balance.Available) != "100.00" {
		t.Fatalf("alice after emit: %+v", alice)
	}

	if _, err := f.ledger.Hold(ctx, f.coin.UID, "alice", amt("40.00")); err != nil {
		t.Fatal(err)
	}
	b = f.coinBalance(t)
	if f.coin.Format(b.Available) != "60.00" || f.coin.Format(b.Held) != "40.00" {
		t.Errorf("coin after hold: %s/%s", f.coin.Format(b.Available), f.coin.Format(b.Held))
	}
	alice, _ = f.account(t, "alice")
	if f.coin.Format(alice.Balance.Available) != "60.00" || f.coin.Format(alice.Balance.Held) != "40.00" {
		t.Errorf("alice after hold: %+v", alice.Balance)
	}

	res, err := f.ledger.TransferFromHeld(ctx, f.coin.UID, "alice", "bob", amt("40.00"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Target.Balance.Available.Equal(amt("40")) {
		t.Errorf("result target: %+v", res.Target.Balance)
	}

	alice, ok = f.account(t, "alice")
	if !ok || !alice.Balance.Equal(coin.Balance{Available: amt("60")}) {
		t.Errorf("alice after transfer: %+v", alice)
	}
	bob, ok := f.account(t, "bob")
	if !ok || f.coin.Format(bob.Balance.Available) != "40.00" {
		t.Errorf("bob after transfer: %+v", bob)
	}
	b = f.coinBalance(t)
	if f.coin.Format(b.Available) != "100.00" || f.coin.Format(b.Held) != "0.00" {
		t.Errorf("coin after transfer: %s/%s", f.coin.Format(b.Available), f.coin.Format(b.Held))
	}
	f.verify(t)
}

func TestAccountElidedWhenEmptied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ledger.EmitHeld(ctx, f.coin.UID, "alice", amt("40.00")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.TransferFromHeld(ctx, f.coin.UID, "alice", "bob", amt("40.00")); err != nil {
		t.Fatal(err)
	}

	if a, ok := f.account(t, "alice"); ok {
		t.Errorf("alice should be elided, got %+v", a.Balance)
	}
	has, err := f.store.HasState(ctx, kvstore.AccountKey(f.coin.UID, "alice"))
	if err != nil || has {
		t.Errorf("alice record still stored: %v %v", has, err)
	}

	b := f.coinBalance(t)
	if !b.Held.IsZero() || !b.Available.Equal(amt("40")) {
		t.Errorf("coin: %+v", b)
	}
	f.verify(t)
}

func TestEmitBurnRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.coinBalance(t)

	if _, err := f.ledger.Emit(ctx, f.coin.UID, "A", amt("100")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.Burn(ctx, f.coin.UID, "A", amt("100")); err != nil {
		t.Fatal(err)
	}

	if !f.coinBalance(t).Equal(before) {
		t.Errorf("coin balance not restored: %+v", f.coinBalance(t))
	}
	if _, ok := f.account(t, "A"); ok {
		t.Error("account A should be elided")
	}
}

func TestInsufficientBalanceLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name string
		run  func(ctx context.Context, l *coinledger.Ledger, uid string) error
	}{
		{"Burn", func(ctx context.Context, l *coinledger.Ledger, uid string) error {
			_, err := l.Burn(ctx, uid, "alice", amt("10.01"))
			return err
		}},
		{"BurnHeld", func(ctx context.Context, l *coinledger.Ledger, uid string) error {
			_, err := l.BurnHeld(ctx, uid, "alice", amt("5.01"))
			return err
		}},
		{"Hold", func(ctx context.Context, l *coinledger.Ledger, uid string) error {
			_, err := l.Hold(ctx, uid, "alice", amt("11"))
			return err
		}},
		{"Unhold", func(ctx context.Context, l *coinledger.Ledger, uid string) error {
			_, err := l.Unhold(ctx, uid, "alice", amt("6"))
			return err
		}},
		{"Transfer", func(ctx context.Context, l *coinledger.Ledger, uid string) error {
			_, err := l.Transfer(ctx, uid, "alice", "bob", amt("10.5"))
			return err
		}},
		{"TransferToHeld", func(ctx context.Context, l *coinledger.Ledger, uid string) error {
			_, err := l.TransferToHeld(ctx, uid, "alice", "bob", amt("10.5"))
			return err
		}},
		{"TransferFromHeld", func(ctx context.Context, l *coinledger.Ledger, uid string) error {
			_, err := l.TransferFromHeld(ctx, uid, "alice", "bob", amt("5.5"))
			return err
		}},
		{"TransferFromToHeld", func(ctx context.Context, l *coinledger.Ledger, uid string) error {
			_, err := l.TransferFromToHeld(ctx, uid, "alice", "bob", amt("5.5"))
			return err
		}},
		{"BurnMissingAccount", func(ctx context.Context, l *coinledger.Ledger, uid string) error {
			_, err := l.Burn(ctx, uid, "nobody", amt("1"))
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			if _, err := f.ledger.Emit(ctx, f.coin.UID, "alice", amt("10")); err != nil {
				t.Fatal(err)
			}
			if _, err := f.ledger.EmitHeld(ctx, f.coin.UID, "alice", amt("5")); err != nil {
				t.Fatal(err)
			}
			keys := f.backend.Len()
			before, _ := f.account(t, "alice")
			coinBefore := f.coinBalance(t)

			err := tt.run(ctx, f.ledger, f.coin.UID)
			if !errors.Is(err, coinledger.ErrInsufficientBalance) {
				t.Fatalf("expected ErrInsufficientBalance, got %v", err)
			}

			after, _ := f.account(t, "alice")
			if !after.Balance.Equal(before.Balance) {
				t.Errorf("alice changed: %+v -> %+v", before.Balance, after.Balance)
			}
			if !f.coinBalance(t).Equal(coinBefore) {
				t.Errorf("coin changed")
			}
			if f.backend.Len() != keys {
				t.Errorf("key count changed: %d -> %d", keys, f.backend.Len())
			}
		})
	}
}

func TestTransferConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ledger.Emit(ctx, f.coin.UID, "A", amt("75.25")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.Emit(ctx, f.coin.UID, "B", amt("1")); err != nil {
		t.Fatal(err)
	}
	before := f.coinBalance(t)

	if _, err := f.ledger.Transfer(ctx, f.coin.UID, "A", "B", amt("75.25")); err != nil {
		t.Fatal(err)
	}

	if !f.coinBalance(t).Equal(before) {
		t.Errorf("coin changed: %+v", f.coinBalance(t))
	}
	if _, ok := f.account(t, "A"); ok {
		t.Error("A should be elided")
	}
	b, _ := f.account(t, "B")
	if !b.Balance.Available.Equal(amt("76.25")) {
		t.Errorf("B: %+v", b.Balance)
	}
}

func TestTransferToSelf(t *testing.T) {
	tests := []struct {
		name string
		kind coin.TransferKind
		v    string
		want coin.Balance
	}{
		{"Transfer", coin.Transfer, "3", coin.Balance{Available: amt("10"), Held: amt("5")}},
		{"ToHeld", coin.TransferToHeld, "3", coin.Balance{Available: amt("7"), Held: amt("8")}},
		{"FromHeld", coin.TransferFromHeld, "5", coin.Balance{Available: amt("15"), Held: amt("0")}},
		{"FromToHeld", coin.TransferFromToHeld, "5", coin.Balance{Available: amt("10"), Held: amt("5")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			if _, err := f.ledger.Emit(ctx, f.coin.UID, "A", amt("10")); err != nil {
				t.Fatal(err)
			}
			if _, err := f.ledger.EmitHeld(ctx, f.coin.UID, "A", amt("5")); err != nil {
				t.Fatal(err)
			}

			res, err := f.ledger.ApplyTransfer(ctx, tt.kind, f.coin.UID, "A", "A", amt(tt.v))
			if err != nil {
				t.Fatal(err)
			}
			if res.Object != res.Target {
				t.Error("self transfer should return one account")
			}

			a, _ := f.account(t, "A")
			if !a.Balance.Equal(tt.want) {
				t.Errorf("A: got %+v, want %+v", a.Balance, tt.want)
			}
			f.verify(t)
		})
	}
}

func TestNullify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ledger.Emit(ctx, f.coin.UID, "A", amt("12.5")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.EmitHeld(ctx, f.coin.UID, "A", amt("2")); err != nil {
		t.Fatal(err)
	}

	m, err := f.ledger.Nullify(ctx, f.coin.UID, "A")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Amount.Equal(amt("12.5")) {
		t.Errorf("cleared: got %s", m.Amount)
	}

	m, err = f.ledger.Nullify(ctx, f.coin.UID, "A")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Amount.IsZero() {
		t.Errorf("second nullify should clear nothing, got %s", m.Amount)
	}

	m, err = f.ledger.NullifyHeld(ctx, f.coin.UID, "A")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Amount.Equal(amt("2")) {
		t.Errorf("cleared held: got %s", m.Amount)
	}
	if _, ok := f.account(t, "A"); ok {
		t.Error("A should be elided")
	}
	if !f.coinBalance(t).IsEmpty() {
		t.Errorf("coin: %+v", f.coinBalance(t))
	}
}

func TestZeroAmountDoesNotMaterializeAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	keys := f.backend.Len()

	if _, err := f.ledger.Emit(ctx, f.coin.UID, "ghost", types.Zero); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.Nullify(ctx, f.coin.UID, "ghost"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.Transfer(ctx, f.coin.UID, "ghost", "spirit", types.Zero); err != nil {
		t.Fatal(err)
	}
	if f.backend.Len() != keys {
		t.Errorf("zero-amount operations wrote state")
	}

	a, err := f.ledger.AccountGet(ctx, f.coin.UID, "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if !a.IsEmpty() || a.ObjectUID != "ghost" {
		t.Errorf("placeholder: %+v", a)
	}
}

func TestOperationsOnMissingCoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ledger.Emit(ctx, "coin/O/NOPE", "A", amt("1")); !errors.Is(err, coinledger.ErrCoinNotFound) {
		t.Errorf("Emit: expected ErrCoinNotFound, got %v", err)
	}
	if _, err := f.ledger.Transfer(ctx, "coin/O/NOPE", "A", "B", amt("1")); !errors.Is(err, coinledger.ErrCoinNotFound) {
		t.Errorf("Transfer: expected ErrCoinNotFound, got %v", err)
	}
	if _, err := f.ledger.AccountList(ctx, "coin/O/NOPE"); !coinledger.IsNotFound(err) {
		t.Errorf("AccountList: expected not found, got %v", err)
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ledger.Create(ctx, "C", 2, "O"); !errors.Is(err, coinledger.ErrCoinAlreadyExists) {
		t.Errorf("duplicate: expected ErrCoinAlreadyExists, got %v", err)
	}
	if _, err := f.ledger.Create(ctx, "A/B", 2, "O"); !errors.Is(err, coinledger.ErrInvalidInput) {
		t.Errorf("bad id: expected ErrInvalidInput, got %v", err)
	}
	if f.coin.UID != "coin/O/C" {
		t.Errorf("UID: got %s", f.coin.UID)
	}
}

func TestRemoveCascades(t *testing.T) {
	f := newFixture(t, coinledger.WithRemoveBatchSize(2))
	ctx := context.Background()

	// A second coin whose uid extends the first must keep its accounts.
	other, err := f.ledger.Create(ctx, "CC", 2, "O")
	if err != nil {
		t.Fatal(err)
	}
	for _, holder := range []string{"a", "b", "c", "d", "e"} {
		if _, err := f.ledger.Emit(ctx, f.coin.UID, holder, amt("1")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.ledger.Emit(ctx, other.UID, "a", amt("1")); err != nil {
		t.Fatal(err)
	}

	if err := f.ledger.Remove(ctx, f.coin.UID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.Get(ctx, f.coin.UID); !errors.Is(err, coinledger.ErrCoinNotFound) {
		t.Errorf("coin still present: %v", err)
	}
	left, err := f.store.ListAccounts(ctx, f.coin.UID)
	if err != nil || len(left) != 0 {
		t.Errorf("accounts left: %d, %v", len(left), err)
	}

	kept, err := f.ledger.AccountList(ctx, other.UID)
	if err != nil || len(kept) != 1 {
		t.Errorf("other coin accounts: %d, %v", len(kept), err)
	}

	// Removing again is a no-op.
	if err := f.ledger.Remove(ctx, f.coin.UID); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

// flakyBackend fails every Apply after the first n.
type flakyBackend struct {
	*memory.Store
	n int
}

var errFlaky = errors.New("flaky backend")

func (b *flakyBackend) Apply(ctx context.Context, rs kv.ReadSet, writes []kv.Write) error {
	if len(writes) == 0 {
		return b.Store.Apply(ctx, rs, writes)
	}
	if b.n <= 0 {
		return errFlaky
	}
	b.n--
	return b.Store.Apply(ctx, rs, writes)
}

func TestRemoveResumesAfterFailure(t *testing.T) {
	backend := &flakyBackend{Store: memory.New(), n: 1000}
	s := kvstore.New(backend)
	l := coinledger.New(s, coinledger.WithRemoveBatchSize(2))
	ctx := context.Background()

	c, err := l.Create(ctx, "C", 0, "O")
	if err != nil {
		t.Fatal(err)
	}
	for _, holder := range []string{"a", "b", "c", "d", "e"} {
		if _, err := l.Emit(ctx, c.UID, holder, amt("1")); err != nil {
			t.Fatal(err)
		}
	}

	backend.n = 1
	if err := l.Remove(ctx, c.UID); !errors.Is(err, errFlaky) {
		t.Fatalf("expected errFlaky, got %v", err)
	}
	left, _ := s.ListAccounts(ctx, c.UID)
	if len(left) != 3 {
		t.Errorf("expected one committed batch, %d accounts left", len(left))
	}

	backend.n = 1000
	if err := l.Remove(ctx, c.UID); err != nil {
		t.Fatal(err)
	}
	left, _ = s.ListAccounts(ctx, c.UID)
	if len(left) != 0 {
		t.Errorf("accounts left after retry: %d", len(left))
	}
	if has, _ := s.HasState(ctx, c.UID); has {
		t.Error("coin still present")
	}
}

func TestFailedCommitWritesNothing(t *testing.T) {
	backend := &flakyBackend{Store: memory.New(), n: 1}
	s := kvstore.New(backend)
	l := coinledger.New(s)
	ctx := context.Background()

	c, err := l.Create(ctx, "C", 0, "O")
	if err != nil {
		t.Fatal(err)
	}
	keys := backend.Len()

	if _, err := l.Emit(ctx, c.UID, "A", amt("5")); !errors.Is(err, errFlaky) {
		t.Fatalf("expected errFlaky, got %v", err)
	}
	if backend.Len() != keys {
		t.Error("partial write after failed commit")
	}
	got, err := l.Get(ctx, c.UID)
	if err != nil || !got.Balance.IsEmpty() {
		t.Errorf("coin: %+v %v", got, err)
	}
}

func TestInvariantHoldsOverRandomOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))
	holders := []string{"a", "b", "c", "d"}
	amounts := []string{"0", "0.01", "1", "2.5", "10", "33.33"}

	for i := range 500 {
		object := holders[rng.IntN(len(holders))]
		target := holders[rng.IntN(len(holders))]
		v := amt(amounts[rng.IntN(len(amounts))])

		var err error
		switch rng.IntN(12) {
		case 0:
			_, err = f.ledger.Emit(ctx, f.coin.UID, object, v)
		case 1:
			_, err = f.ledger.EmitHeld(ctx, f.coin.UID, object, v)
		case 2:
			_, err = f.ledger.Burn(ctx, f.coin.UID, object, v)
		case 3:
			_, err = f.ledger.BurnHeld(ctx, f.coin.UID, object, v)
		case 4:
			_, err = f.ledger.Hold(ctx, f.coin.UID, object, v)
		case 5:
			_, err = f.ledger.Unhold(ctx, f.coin.UID, object, v)
		case 6:
			_, err = f.ledger.Nullify(ctx, f.coin.UID, object)
		case 7:
			_, err = f.ledger.NullifyHeld(ctx, f.coin.UID, object)
		case 8:
			_, err = f.ledger.Transfer(ctx, f.coin.UID, object, target, v)
		case 9:
			_, err = f.ledger.TransferToHeld(ctx, f.coin.UID, object, target, v)
		case 10:
			_, err = f.ledger.TransferFromHeld(ctx, f.coin.UID, object, target, v)
		case 11:
			_, err = f.ledger.TransferFromToHeld(ctx, f.coin.UID, object, target, v)
		}
		if err != nil && !errors.Is(err, coinledger.ErrInsufficientBalance) {
			t.Fatalf("step %d: %v", i, err)
		}

		if err := f.ledger.Verify(ctx, f.coin.UID); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}

		accounts, err := f.store.ListAccounts(ctx, f.coin.UID)
		if err != nil {
			t.Fatal(err)
		}
		for _, a := range accounts {
			if a.IsEmpty() {
				t.Fatalf("step %d: empty account %s stored", i, a.ObjectUID)
			}
		}
	}
}

// slowBackend delays every read so that concurrent transactions overlap.
type slowBackend struct {
	*memory.Store
	delay time.Duration
}

func (b *slowBackend) Get(ctx context.Context, key string) ([]byte, error) {
	time.Sleep(b.delay)
	return b.Store.Get(ctx, key)
}

func (b *slowBackend) Scan(ctx context.Context, prefix string) ([]kv.Entry, error) {
	time.Sleep(b.delay)
	return b.Store.Scan(ctx, prefix)
}

func TestConcurrentOperationsKeepInvariant(t *testing.T) {
	ctx := context.Background()
	s := kvstore.New(&slowBackend{Store: memory.New(), delay: time.Millisecond}, kvstore.WithMaxAttempts(1000))
	l := coinledger.New(s)

	c, err := l.Create(ctx, "C", 0, "O")
	if err != nil {
		t.Fatal(err)
	}

	const emitters = 50
	var wg sync.WaitGroup
	errs := make(chan error, emitters*3)
	for i := range emitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Emit(ctx, c.UID, "1", amt("1")); err != nil {
				errs <- fmt.Errorf("emit: %w", err)
			}
			if _, err := l.Emit(ctx, c.UID, fmt.Sprintf("holder-%d", i%5), amt("2")); err != nil {
				errs <- fmt.Errorf("emit holder: %w", err)
			}
			if err := l.Verify(ctx, c.UID); err != nil {
				errs <- fmt.Errorf("verify: %w", err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	a, err := l.AccountGet(ctx, c.UID, "1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Balance.Available.Equal(amt("50")) {
		t.Errorf("account 1: got %s, want 50", a.Balance.Available)
	}

	got, err := l.Get(ctx, c.UID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Balance.Available.Equal(amt("150")) {
		t.Errorf("aggregate: got %s, want 150", got.Balance.Available)
	}
	if err := l.Verify(ctx, c.UID); err != nil {
		t.Errorf("Verify: %v", err)
	}
}
