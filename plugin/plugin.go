// Package plugin provides an extensible plugin system for coinledger.
// Plugins hook into service lifecycle and balance-change events.
package plugin

import (
	"context"

	"github.com/xraph/coinledger/event"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the service starts. svc is the *service.Service.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, svc any) error
}

// OnShutdown is called when the service stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Coin lifecycle hooks
// ──────────────────────────────────────────────────

// OnCoinCreated is called after a coin is created.
type OnCoinCreated interface {
	Plugin
	OnCoinCreated(ctx context.Context, e *event.Event) error
}

// OnCoinRemoved is called after a coin and its accounts are removed.
type OnCoinRemoved interface {
	Plugin
	OnCoinRemoved(ctx context.Context, e *event.Event) error
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnCoinEmitted is called after coins are issued to an account.
type OnCoinEmitted interface {
	Plugin
	OnCoinEmitted(ctx context.Context, e *event.Event) error
}

// OnCoinBurned is called after coins are destroyed.
type OnCoinBurned interface {
	Plugin
	OnCoinBurned(ctx context.Context, e *event.Event) error
}

// OnCoinHeld is called after coins move into an account's held balance.
type OnCoinHeld interface {
	Plugin
	OnCoinHeld(ctx context.Context, e *event.Event) error
}

// OnCoinUnheld is called after coins leave an account's held balance.
type OnCoinUnheld interface {
	Plugin
	OnCoinUnheld(ctx context.Context, e *event.Event) error
}

// OnCoinTransferred is called after coins move between accounts.
type OnCoinTransferred interface {
	Plugin
	OnCoinTransferred(ctx context.Context, e *event.Event) error
}

// OnCoinNullified is called after a balance is cleared.
type OnCoinNullified interface {
	Plugin
	OnCoinNullified(ctx context.Context, e *event.Event) error
}

// OnEvent receives every event regardless of kind, after the kind hooks.
type OnEvent interface {
	Plugin
	OnEvent(ctx context.Context, e *event.Event) error
}
