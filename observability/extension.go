// Package observability provides a metrics extension that records ledger
// event counts and moved amounts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/coinledger/event"
	"github.com/xraph/coinledger/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin  = (*MetricsExtension)(nil)
	_ plugin.OnInit  = (*MetricsExtension)(nil)
	_ plugin.OnEvent = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records per-kind event counts and amounts.
// Register it as a service plugin to track ledger activity.
type MetricsExtension struct {
	factory MetricFactory

	// Coin lifecycle metrics
	CoinCreated Counter
	CoinRemoved Counter

	// Balance metrics
	CoinEmitted     Counter
	CoinBurned      Counter
	CoinHeld        Counter
	CoinUnheld      Counter
	CoinTransferred Counter
	CoinNullified   Counter

	// Amount metrics
	EmittedAmount     Histogram
	BurnedAmount      Histogram
	TransferredAmount Histogram
	NullifiedAmount   Histogram

	counters map[event.Kind]Counter
	amounts  map[event.Kind]Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	m := &MetricsExtension{
		factory: factory,

		CoinCreated: factory.Counter("coinledger.coin.created"),
		CoinRemoved: factory.Counter("coinledger.coin.removed"),

		CoinEmitted:     factory.Counter("coinledger.coin.emitted"),
		CoinBurned:      factory.Counter("coinledger.coin.burned"),
		CoinHeld:        factory.Counter("coinledger.coin.held"),
		CoinUnheld:      factory.Counter("coinledger.coin.unheld"),
		CoinTransferred: factory.Counter("coinledger.coin.transferred"),
		CoinNullified:   factory.Counter("coinledger.coin.nullified"),

		EmittedAmount:     factory.Histogram("coinledger.amount.emitted"),
		BurnedAmount:      factory.Histogram("coinledger.amount.burned"),
		TransferredAmount: factory.Histogram("coinledger.amount.transferred"),
		NullifiedAmount:   factory.Histogram("coinledger.amount.nullified"),
	}

	m.counters = map[event.Kind]Counter{
		event.CoinCreated:     m.CoinCreated,
		event.CoinRemoved:     m.CoinRemoved,
		event.CoinEmitted:     m.CoinEmitted,
		event.CoinBurned:      m.CoinBurned,
		event.CoinHeld:        m.CoinHeld,
		event.CoinUnheld:      m.CoinUnheld,
		event.CoinTransferred: m.CoinTransferred,
		event.CoinNullified:   m.CoinNullified,
	}
	m.amounts = map[event.Kind]Histogram{
		event.CoinEmitted:     m.EmittedAmount,
		event.CoinBurned:      m.BurnedAmount,
		event.CoinTransferred: m.TransferredAmount,
		event.CoinNullified:   m.NullifiedAmount,
	}
	return m
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnEvent implements plugin.OnEvent.
func (m *MetricsExtension) OnEvent(_ context.Context, e *event.Event) error {
	if c, ok := m.counters[e.Kind]; ok {
		c.Inc()
	}
	// Amounts are observed as floats for metrics only; balances never are.
	if h, ok := m.amounts[e.Kind]; ok {
		h.Observe(e.Amount.Decimal().InexactFloat64())
	}
	return nil
}
