package coin

import (
	"errors"
	"testing"

	"github.com/xraph/coinledger/types"
)

func amt(s string) types.Amount { return types.MustParseAmount(s) }

func bal(available, held string) Balance {
	return Balance{Available: amt(available), Held: amt(held)}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name        string
		op          Op
		coin        Balance
		account     Balance
		v           string
		wantCoin    Balance
		wantAccount Balance
		wantAmount  string
		wantErr     error
	}{
		{"Emit", OpEmit, bal("10", "5"), bal("0", "0"), "100", bal("110", "5"), bal("100", "0"), "100", nil},
		{"EmitHeld", OpEmitHeld, bal("10", "5"), bal("1", "1"), "3", bal("10", "8"), bal("1", "4"), "3", nil},
		{"Burn", OpBurn, bal("100", "0"), bal("60", "0"), "60", bal("40", "0"), bal("0", "0"), "60", nil},
		{"BurnHeld", OpBurnHeld, bal("0", "40"), bal("0", "40"), "15", bal("0", "25"), bal("0", "25"), "15", nil},
		{"Hold", OpHold, bal("100", "0"), bal("100", "0"), "40", bal("60", "40"), bal("60", "40"), "40", nil},
		{"Unhold", OpUnhold, bal("60", "40"), bal("60", "40"), "40", bal("100", "0"), bal("100", "0"), "40", nil},
		{"Nullify", OpNullify, bal("100", "10"), bal("30", "10"), "999", bal("70", "10"), bal("0", "10"), "30", nil},
		{"NullifyHeld", OpNullifyHeld, bal("100", "10"), bal("30", "10"), "0", bal("100", "0"), bal("30", "0"), "10", nil},
		{"NullifyEmpty", OpNullify, bal("5", "0"), bal("0", "0"), "0", bal("5", "0"), bal("0", "0"), "0", nil},
		{"BurnTooMuch", OpBurn, bal("100", "0"), bal("10", "0"), "11", Balance{}, Balance{}, "", types.ErrInsufficientBalance},
		{"BurnHeldTooMuch", OpBurnHeld, bal("0", "5"), bal("0", "5"), "6", Balance{}, Balance{}, "", types.ErrInsufficientBalance},
		{"HoldTooMuch", OpHold, bal("10", "0"), bal("10", "0"), "10.01", Balance{}, Balance{}, "", types.ErrInsufficientBalance},
		{"UnholdTooMuch", OpUnhold, bal("0", "1"), bal("0", "1"), "2", Balance{}, Balance{}, "", types.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Apply(tt.op, tt.coin, tt.account, amt(tt.v))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Coin.Equal(tt.wantCoin) {
				t.Errorf("Coin: got %+v, want %+v", res.Coin, tt.wantCoin)
			}
			if !res.Account.Equal(tt.wantAccount) {
				t.Errorf("Account: got %+v, want %+v", res.Account, tt.wantAccount)
			}
			if !res.Amount.Equal(amt(tt.wantAmount)) {
				t.Errorf("Amount: got %s, want %s", res.Amount, tt.wantAmount)
			}
		})
	}
}

func TestApplyUnknownOp(t *testing.T) {
	if _, err := Apply(Op("mint"), Balance{}, Balance{}, types.Zero); err == nil {
		t.Error("expected error for unknown op")
	}
	if Op("mint").IsValid() {
		t.Error("unknown op reported valid")
	}
	if !OpNullifyHeld.IsNullify() || OpBurn.IsNullify() {
		t.Error("IsNullify misclassified")
	}
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	c := bal("10", "0")
	a := bal("10", "0")
	if _, err := Apply(OpHold, c, a, amt("4")); err != nil {
		t.Fatal(err)
	}
	if !c.Equal(bal("10", "0")) || !a.Equal(bal("10", "0")) {
		t.Error("inputs were modified")
	}
}

func TestApplyTransfer(t *testing.T) {
	tests := []struct {
		name       string
		kind       TransferKind
		coin       Balance
		object     Balance
		target     Balance
		v          string
		wantCoin   Balance
		wantObject Balance
		wantTarget Balance
		wantErr    bool
	}{
		{"Transfer", Transfer, bal("100", "0"), bal("100", "0"), bal("0", "0"), "30", bal("100", "0"), bal("70", "0"), bal("30", "0"), false},
		{"ToHeld", TransferToHeld, bal("100", "0"), bal("100", "0"), bal("0", "0"), "30", bal("70", "30"), bal("70", "0"), bal("0", "30"), false},
		{"FromHeld", TransferFromHeld, bal("60", "40"), bal("60", "40"), bal("0", "0"), "40", bal("100", "0"), bal("60", "0"), bal("40", "0"), false},
		{"FromToHeld", TransferFromToHeld, bal("0", "40"), bal("0", "25"), bal("0", "15"), "25", bal("0", "40"), bal("0", "0"), bal("0", "40"), false},
		{"TransferTooMuch", Transfer, bal("100", "0"), bal("10", "0"), bal("90", "0"), "11", Balance{}, Balance{}, Balance{}, true},
		{"FromHeldTooMuch", TransferFromHeld, bal("100", "5"), bal("100", "5"), bal("0", "0"), "6", Balance{}, Balance{}, Balance{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ApplyTransfer(tt.kind, tt.coin, tt.object, tt.target, amt(tt.v))
			if tt.wantErr {
				if !errors.Is(err, types.ErrInsufficientBalance) {
					t.Fatalf("expected ErrInsufficientBalance, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Coin.Equal(tt.wantCoin) {
				t.Errorf("Coin: got %+v, want %+v", res.Coin, tt.wantCoin)
			}
			if !res.Object.Equal(tt.wantObject) {
				t.Errorf("Object: got %+v, want %+v", res.Object, tt.wantObject)
			}
			if !res.Target.Equal(tt.wantTarget) {
				t.Errorf("Target: got %+v, want %+v", res.Target, tt.wantTarget)
			}
			if !res.Coin.Total().Equal(tt.coin.Total()) {
				t.Errorf("coin total changed: %s -> %s", tt.coin.Total(), res.Coin.Total())
			}
		})
	}
}

func TestApplyTransferSelf(t *testing.T) {
	tests := []struct {
		name    string
		kind    TransferKind
		b       Balance
		v       string
		want    Balance
		wantErr bool
	}{
		{"Transfer", Transfer, bal("10", "2"), "4", bal("10", "2"), false},
		{"ToHeld", TransferToHeld, bal("10", "2"), "4", bal("6", "6"), false},
		{"FromHeld", TransferFromHeld, bal("10", "2"), "2", bal("12", "0"), false},
		{"FromToHeld", TransferFromToHeld, bal("10", "2"), "2", bal("10", "2"), false},
		{"TransferTooMuch", Transfer, bal("10", "2"), "11", Balance{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ApplyTransferSelf(tt.kind, tt.b, tt.b, amt(tt.v))
			if tt.wantErr {
				if !errors.Is(err, types.ErrInsufficientBalance) {
					t.Fatalf("expected ErrInsufficientBalance, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Object.Equal(tt.want) || !res.Target.Equal(tt.want) {
				t.Errorf("got object %+v target %+v, want %+v", res.Object, res.Target, tt.want)
			}
			if !res.Coin.Equal(tt.want) {
				t.Errorf("Coin: got %+v, want %+v", res.Coin, tt.want)
			}
		})
	}
}

func TestTransferKindBuckets(t *testing.T) {
	from, to := TransferFromToHeld.Buckets()
	if from != BucketHeld || to != BucketHeld {
		t.Errorf("got %s -> %s", from, to)
	}
	if TransferKind("sideways").IsValid() {
		t.Error("unknown kind reported valid")
	}
}
