package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/coinledger/event"
)

// DefaultTimeout bounds each plugin call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so dispatch never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit            []OnInit
	onShutdown        []OnShutdown
	onCoinCreated     []OnCoinCreated
	onCoinRemoved     []OnCoinRemoved
	onCoinEmitted     []OnCoinEmitted
	onCoinBurned      []OnCoinBurned
	onCoinHeld        []OnCoinHeld
	onCoinUnheld      []OnCoinUnheld
	onCoinTransferred []OnCoinTransferred
	onCoinNullified   []OnCoinNullified
	onEvent           []OnEvent
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call plugin timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnCoinCreated); ok {
		r.onCoinCreated = append(r.onCoinCreated, v)
	}
	if v, ok := p.(OnCoinRemoved); ok {
		r.onCoinRemoved = append(r.onCoinRemoved, v)
	}
	if v, ok := p.(OnCoinEmitted); ok {
		r.onCoinEmitted = append(r.onCoinEmitted, v)
	}
	if v, ok := p.(OnCoinBurned); ok {
		r.onCoinBurned = append(r.onCoinBurned, v)
	}
	if v, ok := p.(OnCoinHeld); ok {
		r.onCoinHeld = append(r.onCoinHeld, v)
	}
	if v, ok := p.(OnCoinUnheld); ok {
		r.onCoinUnheld = append(r.onCoinUnheld, v)
	}
	if v, ok := p.(OnCoinTransferred); ok {
		r.onCoinTransferred = append(r.onCoinTransferred, v)
	}
	if v, ok := p.(OnCoinNullified); ok {
		r.onCoinNullified = append(r.onCoinNullified, v)
	}
	if v, ok := p.(OnEvent); ok {
		r.onEvent = append(r.onEvent, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnCoinCreated", reflect.TypeFor[OnCoinCreated]()},
	{"OnCoinRemoved", reflect.TypeFor[OnCoinRemoved]()},
	{"OnCoinEmitted", reflect.TypeFor[OnCoinEmitted]()},
	{"OnCoinBurned", reflect.TypeFor[OnCoinBurned]()},
	{"OnCoinHeld", reflect.TypeFor[OnCoinHeld]()},
	{"OnCoinUnheld", reflect.TypeFor[OnCoinUnheld]()},
	{"OnCoinTransferred", reflect.TypeFor[OnCoinTransferred]()},
	{"OnCoinNullified", reflect.TypeFor[OnCoinNullified]()},
	{"OnEvent", reflect.TypeFor[OnEvent]()},
}

// implementedInterfaces returns the hook names p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, svc any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, svc)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// Emit dispatches e to the hooks of its kind, then to every OnEvent plugin.
// Plugin failures are logged and never returned.
func (r *Registry) Emit(ctx context.Context, e *event.Event) {
	r.mu.RLock()
	var (
		calls []func() error
		names []string
	)
	add := func(name string, fn func() error) {
		names = append(names, name)
		calls = append(calls, fn)
	}
	switch e.Kind {
	case event.CoinCreated:
		for _, p := range r.onCoinCreated {
			add(p.Name(), func() error { return p.OnCoinCreated(ctx, e) })
		}
	case event.CoinRemoved:
		for _, p := range r.onCoinRemoved {
			add(p.Name(), func() error { return p.OnCoinRemoved(ctx, e) })
		}
	case event.CoinEmitted:
		for _, p := range r.onCoinEmitted {
			add(p.Name(), func() error { return p.OnCoinEmitted(ctx, e) })
		}
	case event.CoinBurned:
		for _, p := range r.onCoinBurned {
			add(p.Name(), func() error { return p.OnCoinBurned(ctx, e) })
		}
	case event.CoinHeld:
		for _, p := range r.onCoinHeld {
			add(p.Name(), func() error { return p.OnCoinHeld(ctx, e) })
		}
	case event.CoinUnheld:
		for _, p := range r.onCoinUnheld {
			add(p.Name(), func() error { return p.OnCoinUnheld(ctx, e) })
		}
	case event.CoinTransferred:
		for _, p := range r.onCoinTransferred {
			add(p.Name(), func() error { return p.OnCoinTransferred(ctx, e) })
		}
	case event.CoinNullified:
		for _, p := range r.onCoinNullified {
			add(p.Name(), func() error { return p.OnCoinNullified(ctx, e) })
		}
	}
	catchAll := r.onEvent
	r.mu.RUnlock()

	hook := kindHooks[e.Kind]
	for i, fn := range calls {
		r.call(ctx, names[i], hook, fn)
	}
	for _, p := range catchAll {
		r.call(ctx, p.Name(), "OnEvent", func() error {
			return p.OnEvent(ctx, e)
		})
	}
}

var kindHooks = map[event.Kind]string{
	event.CoinCreated:     "OnCoinCreated",
	event.CoinRemoved:     "OnCoinRemoved",
	event.CoinEmitted:     "OnCoinEmitted",
	event.CoinBurned:      "OnCoinBurned",
	event.CoinHeld:        "OnCoinHeld",
	event.CoinUnheld:      "OnCoinUnheld",
	event.CoinTransferred: "OnCoinTransferred",
	event.CoinNullified:   "OnCoinNullified",
}

func (r *Registry) call(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
