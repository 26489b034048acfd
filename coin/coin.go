// Package coin defines the coin aggregate and account balance records, and the
// pure balance mutations applied to them by the ledger engine.
package coin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/coinledger/types"
)

// UIDPrefix is the namespace every coin identity lives under.
const UIDPrefix = "coin"

// ErrInvalidUID is returned for malformed coin identities.
var ErrInvalidUID = errors.New("coin: invalid uid")

// Balance is an available/held pair. Both buckets are non-negative.
type Balance struct {
	Available types.Amount `json:"available"`
	Held      types.Amount `json:"held"`
}

// Total returns available + held.
func (b Balance) Total() types.Amount {
	return b.Available.Add(b.Held)
}

// IsEmpty returns true if both buckets are exactly zero.
func (b Balance) IsEmpty() bool {
	return b.Available.IsZero() && b.Held.IsZero()
}

// Equal compares both buckets numerically.
func (b Balance) Equal(other Balance) bool {
	return b.Available.Equal(other.Available) && b.Held.Equal(other.Held)
}

// Coin is the aggregate record of a fungible asset. Its balance is the sum of
// the balances of every account of the coin.
type Coin struct {
	UID      string  `json:"uid"`
	CoinID   string  `json:"coin_id"`
	Decimals int     `json:"decimals"`
	OwnerUID string  `json:"owner_uid"`
	Balance  Balance `json:"balance"`
}

// New returns a zero-balance coin.
func New(coinID string, decimals int, ownerUID string) (*Coin, error) {
	uid, err := UID(ownerUID, coinID)
	if err != nil {
		return nil, err
	}
	if decimals < 0 {
		return nil, fmt.Errorf("%w: negative decimals %d", ErrInvalidUID, decimals)
	}

	return &Coin{
		UID:      uid,
		CoinID:   coinID,
		Decimals: decimals,
		OwnerUID: ownerUID,
	}, nil
}

// Format renders an amount at the coin's display precision.
func (c *Coin) Format(a types.Amount) string {
	return a.StringFixed(int32(c.Decimals)) //nolint:gosec // decimals is bounded by validation
}

// UID builds the identity of the coin coinID issued by ownerUID:
// "coin/<owner>/<coinID>". The coin id may not contain "/".
func UID(ownerUID, coinID string) (string, error) {
	if ownerUID == "" {
		return "", fmt.Errorf("%w: empty owner", ErrInvalidUID)
	}
	if coinID == "" || strings.Contains(coinID, "/") {
		return "", fmt.Errorf("%w: coin id %q", ErrInvalidUID, coinID)
	}
	return UIDPrefix + "/" + ownerUID + "/" + coinID, nil
}

// ParseUID splits a coin identity into owner and coin id.
func ParseUID(uid string) (ownerUID, coinID string, err error) {
	rest, ok := strings.CutPrefix(uid, UIDPrefix+"/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidUID, uid)
	}

	i := strings.LastIndex(rest, "/")
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidUID, uid)
	}
	return rest[:i], rest[i+1:], nil
}

// IsUID reports whether s is a well-formed coin identity.
func IsUID(s string) bool {
	_, _, err := ParseUID(s)
	return err == nil
}

// Account is the balance of one holder (object) of one coin.
// An account whose balance is empty is never persisted.
type Account struct {
	CoinUID   string  `json:"coin_uid"`
	ObjectUID string  `json:"object_uid"`
	Balance   Balance `json:"balance"`
}

// NewAccount returns a zero-balance placeholder account.
func NewAccount(coinUID, objectUID string) *Account {
	return &Account{CoinUID: coinUID, ObjectUID: objectUID}
}

// IsEmpty returns true if the account holds nothing.
func (a *Account) IsEmpty() bool {
	return a.Balance.IsEmpty()
}
