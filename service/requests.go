package service

import (
	"github.com/xraph/coinledger/types"
)

// CreateRequest creates a coin.
type CreateRequest struct {
	CoinID       string `json:"coin_id" validate:"required,max=128,excludes=/"`
	Decimals     int    `json:"decimals" validate:"gte=0,lte=36"`
	OwnerUID     string `json:"owner_uid" validate:"required"`
	InitiatorUID string `json:"initiator_uid,omitempty"`
	SkipEvents   bool   `json:"skip_events,omitempty"`
}

// RemoveRequest removes a coin and all of its accounts.
type RemoveRequest struct {
	CoinUID      string `json:"coin_uid" validate:"required,coin_uid"`
	InitiatorUID string `json:"initiator_uid,omitempty"`
	SkipEvents   bool   `json:"skip_events,omitempty"`
}

// AmountRequest moves Amount in or out of one holder's balance. It serves
// emit, burn, hold and unhold and their held variants.
type AmountRequest struct {
	CoinUID      string       `json:"coin_uid" validate:"required,coin_uid"`
	ObjectUID    string       `json:"object_uid" validate:"required"`
	Amount       types.Amount `json:"amount"`
	InitiatorUID string       `json:"initiator_uid,omitempty"`
	SkipEvents   bool         `json:"skip_events,omitempty"`
}

// NullifyRequest clears one bucket of a holder's balance.
type NullifyRequest struct {
	CoinUID      string `json:"coin_uid" validate:"required,coin_uid"`
	ObjectUID    string `json:"object_uid" validate:"required"`
	InitiatorUID string `json:"initiator_uid,omitempty"`
	SkipEvents   bool   `json:"skip_events,omitempty"`
}

// TransferRequest moves Amount from ObjectUID to TargetUID.
type TransferRequest struct {
	CoinUID      string       `json:"coin_uid" validate:"required,coin_uid"`
	ObjectUID    string       `json:"object_uid" validate:"required"`
	TargetUID    string       `json:"target_uid" validate:"required"`
	Amount       types.Amount `json:"amount"`
	InitiatorUID string       `json:"initiator_uid,omitempty"`
	SkipEvents   bool         `json:"skip_events,omitempty"`
}

// BalanceRequest reads one holder's balance.
type BalanceRequest struct {
	CoinUID   string `json:"coin_uid" validate:"required,coin_uid"`
	ObjectUID string `json:"object_uid" validate:"required"`
}

// Balance is a holder's balance in one coin.
type Balance struct {
	Available types.Amount `json:"available"`
	Held      types.Amount `json:"held"`
	Total     types.Amount `json:"total"`
}
