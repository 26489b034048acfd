package coin

import (
	"errors"
	"testing"
)

func TestUID(t *testing.T) {
	tests := []struct {
		name    string
		owner   string
		coinID  string
		want    string
		wantErr bool
	}{
		{"Simple", "O", "C", "coin/O/C", false},
		{"NestedOwner", "user/alice", "GOLD", "coin/user/alice/GOLD", false},
		{"EmptyOwner", "", "C", "", true},
		{"EmptyCoin", "O", "", "", true},
		{"SlashInCoin", "O", "A/B", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UID(tt.owner, tt.coinID)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidUID) {
					t.Fatalf("expected ErrInvalidUID, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}

			owner, coinID, err := ParseUID(got)
			if err != nil {
				t.Fatalf("ParseUID: %v", err)
			}
			if owner != tt.owner || coinID != tt.coinID {
				t.Errorf("ParseUID: got (%s, %s)", owner, coinID)
			}
		})
	}
}

func TestParseUIDInvalid(t *testing.T) {
	for _, s := range []string{"", "coin", "coin/", "coin/O", "coin/O/", "user/alice/C", "coin//C"} {
		t.Run(s, func(t *testing.T) {
			if IsUID(s) {
				t.Errorf("%q should not parse", s)
			}
		})
	}
}

func TestNewCoin(t *testing.T) {
	c, err := New("C", 2, "O")
	if err != nil {
		t.Fatal(err)
	}
	if c.UID != "coin/O/C" {
		t.Errorf("UID: got %s", c.UID)
	}
	if !c.Balance.IsEmpty() {
		t.Error("new coin should have an empty balance")
	}
	if got := c.Format(c.Balance.Held); got != "0.00" {
		t.Errorf("Format: got %s", got)
	}

	if _, err := New("C", -1, "O"); err == nil {
		t.Error("expected error for negative decimals")
	}
}

func TestAccountIsEmpty(t *testing.T) {
	a := NewAccount("coin/O/C", "alice")
	if !a.IsEmpty() {
		t.Error("placeholder should be empty")
	}
	a.Balance = bal("0", "0.01")
	if a.IsEmpty() {
		t.Error("account with held balance should not be empty")
	}
	if !a.Balance.Total().Equal(amt("0.01")) {
		t.Errorf("Total: got %s", a.Balance.Total())
	}
}
