package kvstore

import (
	"fmt"

	"github.com/xraph/coinledger/coin"
	"github.com/xraph/coinledger/types"
)

// Amounts are persisted as decimal strings, never as floats.

type balanceRecord struct {
	Available string `json:"available"`
	Held      string `json:"held"`
}

type coinRecord struct {
	UID      string        `json:"uid"`
	CoinID   string        `json:"coin_id"`
	Decimals int           `json:"decimals"`
	OwnerUID string        `json:"owner_uid"`
	Balance  balanceRecord `json:"balance"`
}

type accountRecord struct {
	CoinUID   string        `json:"coin_uid"`
	ObjectUID string        `json:"object_uid"`
	Balance   balanceRecord `json:"balance"`
}

type principalRecord struct {
	UID string `json:"uid"`
}

func toBalanceRecord(b coin.Balance) balanceRecord {
	return balanceRecord{
		Available: b.Available.String(),
		Held:      b.Held.String(),
	}
}

func fromBalanceRecord(r balanceRecord) (coin.Balance, error) {
	available, err := types.ParseAmount(r.Available)
	if err != nil {
		return coin.Balance{}, fmt.Errorf("available: %w", err)
	}
	held, err := types.ParseAmount(r.Held)
	if err != nil {
		return coin.Balance{}, fmt.Errorf("held: %w", err)
	}
	return coin.Balance{Available: available, Held: held}, nil
}

func toCoinRecord(c *coin.Coin) *coinRecord {
	return &coinRecord{
		UID:      c.UID,
		CoinID:   c.CoinID,
		Decimals: c.Decimals,
		OwnerUID: c.OwnerUID,
		Balance:  toBalanceRecord(c.Balance),
	}
}

func fromCoinRecord(r *coinRecord) (*coin.Coin, error) {
	b, err := fromBalanceRecord(r.Balance)
	if err != nil {
		return nil, fmt.Errorf("coin %s: %w", r.UID, err)
	}
	return &coin.Coin{
		UID:      r.UID,
		CoinID:   r.CoinID,
		Decimals: r.Decimals,
		OwnerUID: r.OwnerUID,
		Balance:  b,
	}, nil
}

func toAccountRecord(a *coin.Account) *accountRecord {
	return &accountRecord{
		CoinUID:   a.CoinUID,
		ObjectUID: a.ObjectUID,
		Balance:   toBalanceRecord(a.Balance),
	}
}

func fromAccountRecord(r *accountRecord) (*coin.Account, error) {
	b, err := fromBalanceRecord(r.Balance)
	if err != nil {
		return nil, fmt.Errorf("account %s/%s: %w", r.CoinUID, r.ObjectUID, err)
	}
	return &coin.Account{
		CoinUID:   r.CoinUID,
		ObjectUID: r.ObjectUID,
		Balance:   b,
	}, nil
}
