package coinledger

import (
	"github.com/xraph/coinledger/coin"
	"github.com/xraph/coinledger/types"
)

// Re-export common types for convenience so users don't have to import the
// types and coin packages.

// Amount is re-exported from types package.
type Amount = types.Amount

// Coin is re-exported from coin package.
type Coin = coin.Coin

// Account is re-exported from coin package.
type Account = coin.Account

// Balance is re-exported from coin package.
type Balance = coin.Balance

// Re-export constructors
var (
	ParseAmount     = types.ParseAmount
	MustParseAmount = types.MustParseAmount
	Zero            = types.Zero
	CoinUID         = coin.UID
	ParseCoinUID    = coin.ParseUID
)
