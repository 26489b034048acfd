package audithook

import "github.com/xraph/coinledger/event"

// Action constants for audit events. They equal the event kinds.
const (
	// Coin actions
	ActionCoinCreated = string(event.CoinCreated)
	ActionCoinRemoved = string(event.CoinRemoved)

	// Supply actions
	ActionCoinEmitted   = string(event.CoinEmitted)
	ActionCoinBurned    = string(event.CoinBurned)
	ActionCoinNullified = string(event.CoinNullified)

	// Custody actions
	ActionCoinHeld   = string(event.CoinHeld)
	ActionCoinUnheld = string(event.CoinUnheld)

	// Transfer actions
	ActionCoinTransferred = string(event.CoinTransferred)
)

// Resource constants for audit events.
const (
	ResourceCoin    = "coin"
	ResourceAccount = "account"
)

// Category constants for audit events.
const (
	CategoryLifecycle = "lifecycle"
	CategorySupply    = "supply"
	CategoryCustody   = "custody"
	CategoryTransfer  = "transfer"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
