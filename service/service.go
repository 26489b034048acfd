// Package service is the caller-facing ledger API. It validates requests,
// checks that the coin and every referenced holder exist, rejects transfers
// to self, delegates to the engine and emits one event per observable change.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/coinledger"
	"github.com/xraph/coinledger/coin"
	"github.com/xraph/coinledger/event"
	"github.com/xraph/coinledger/id"
	"github.com/xraph/coinledger/plugin"
	"github.com/xraph/coinledger/store"
	"github.com/xraph/coinledger/types"
)

// Service orchestrates the ledger engine, the store and the plugin registry.
type Service struct {
	ledger  *coinledger.Ledger
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	ledgerOpts []coinledger.Option
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger of the service, its engine and its registry.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
		s.plugins.WithLogger(logger)
		s.ledgerOpts = append(s.ledgerOpts, coinledger.WithLogger(logger))
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(s *Service) {
		_ = s.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithLedgerOptions passes options to the engine.
func WithLedgerOptions(opts ...coinledger.Option) Option {
	return func(s *Service) {
		s.ledgerOpts = append(s.ledgerOpts, opts...)
	}
}

// New creates a Service over st.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:   st,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ledger = coinledger.New(st, s.ledgerOpts...)
	return s
}

// Ledger returns the underlying engine.
func (s *Service) Ledger() *coinledger.Ledger { return s.ledger }

// Store returns the underlying store.
func (s *Service) Store() store.Store { return s.store }

// Plugins returns the plugin registry.
func (s *Service) Plugins() *plugin.Registry { return s.plugins }

// Start migrates the store and initializes plugins.
func (s *Service) Start(ctx context.Context) error {
	if err := s.store.Migrate(ctx); err != nil {
		return err
	}
	s.plugins.EmitInit(ctx, s)

	s.logger.Info("coinledger service started", "plugins", s.plugins.Count())
	return nil
}

// Stop shuts plugins down and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.plugins.EmitShutdown(ctx)
	return s.store.Close()
}

// ──────────────────────────────────────────────────
// Principals
// ──────────────────────────────────────────────────

// RegisterPrincipal records uid so it can hold coins.
func (s *Service) RegisterPrincipal(ctx context.Context, uid string) error {
	return s.store.PutPrincipal(ctx, uid)
}

// ──────────────────────────────────────────────────
// Coins
// ──────────────────────────────────────────────────

// Create creates a coin.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*coin.Coin, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	c, err := s.ledger.Create(ctx, req.CoinID, req.Decimals, req.OwnerUID)
	if err != nil {
		return nil, err
	}

	if !req.SkipEvents {
		e := event.New(event.CoinCreated, id.NewOperationID(), c.UID)
		e.ObjectUID = c.OwnerUID
		e.InitiatorUID = req.InitiatorUID
		s.plugins.Emit(ctx, e)
	}
	return c, nil
}

// Get returns a coin.
func (s *Service) Get(ctx context.Context, coinUID string) (*coin.Coin, error) {
	return s.ledger.Get(ctx, coinUID)
}

// Remove removes a coin and its accounts. Removing a missing coin sweeps any
// leftover accounts and emits nothing.
func (s *Service) Remove(ctx context.Context, req RemoveRequest) error {
	if err := validateRequest(&req); err != nil {
		return err
	}

	existed, err := s.store.HasState(ctx, req.CoinUID)
	if err != nil {
		return err
	}
	if err := s.ledger.Remove(ctx, req.CoinUID); err != nil {
		return err
	}

	if existed && !req.SkipEvents {
		e := event.New(event.CoinRemoved, id.NewOperationID(), req.CoinUID)
		e.InitiatorUID = req.InitiatorUID
		s.plugins.Emit(ctx, e)
	}
	return nil
}

// AccountList returns every non-empty account of a coin.
func (s *Service) AccountList(ctx context.Context, coinUID string) ([]*coin.Account, error) {
	return s.ledger.AccountList(ctx, coinUID)
}

// BalanceGet returns a holder's balance.
func (s *Service) BalanceGet(ctx context.Context, req BalanceRequest) (*Balance, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	if err := s.checkExists(ctx, req.CoinUID, req.ObjectUID); err != nil {
		return nil, err
	}

	a, err := s.ledger.AccountGet(ctx, req.CoinUID, req.ObjectUID)
	if err != nil {
		return nil, err
	}
	return &Balance{
		Available: a.Balance.Available,
		Held:      a.Balance.Held,
		Total:     a.Balance.Total(),
	}, nil
}

// Verify checks the coin aggregate against its accounts.
func (s *Service) Verify(ctx context.Context, coinUID string) error {
	return s.ledger.Verify(ctx, coinUID)
}

// ──────────────────────────────────────────────────
// Single-holder operations
// ──────────────────────────────────────────────────

func (s *Service) Emit(ctx context.Context, req AmountRequest) (*coinledger.Movement, error) {
	return s.apply(ctx, coin.OpEmit, req)
}

func (s *Service) EmitHeld(ctx context.Context, req AmountRequest) (*coinledger.Movement, error) {
	return s.apply(ctx, coin.OpEmitHeld, req)
}

func (s *Service) Burn(ctx context.Context, req AmountRequest) (*coinledger.Movement, error) {
	return s.apply(ctx, coin.OpBurn, req)
}

func (s *Service) BurnHeld(ctx context.Context, req AmountRequest) (*coinledger.Movement, error) {
	return s.apply(ctx, coin.OpBurnHeld, req)
}

func (s *Service) Hold(ctx context.Context, req AmountRequest) (*coinledger.Movement, error) {
	return s.apply(ctx, coin.OpHold, req)
}

func (s *Service) Unhold(ctx context.Context, req AmountRequest) (*coinledger.Movement, error) {
	return s.apply(ctx, coin.OpUnhold, req)
}

// Nullify clears the holder's available balance. An event is emitted only
// when something was cleared.
func (s *Service) Nullify(ctx context.Context, req NullifyRequest) (*coinledger.Movement, error) {
	return s.nullify(ctx, coin.OpNullify, req)
}

// NullifyHeld clears the holder's held balance.
func (s *Service) NullifyHeld(ctx context.Context, req NullifyRequest) (*coinledger.Movement, error) {
	return s.nullify(ctx, coin.OpNullifyHeld, req)
}

func (s *Service) nullify(ctx context.Context, op coin.Op, req NullifyRequest) (*coinledger.Movement, error) {
	return s.apply(ctx, op, AmountRequest{
		CoinUID:      req.CoinUID,
		ObjectUID:    req.ObjectUID,
		Amount:       types.Zero,
		InitiatorUID: req.InitiatorUID,
		SkipEvents:   req.SkipEvents,
	})
}

// opEvents maps each single-holder operation to the event it emits and the
// bucket it touches.
var opEvents = map[coin.Op]struct {
	kind event.Kind
	held bool
}{
	coin.OpEmit:        {event.CoinEmitted, false},
	coin.OpEmitHeld:    {event.CoinEmitted, true},
	coin.OpBurn:        {event.CoinBurned, false},
	coin.OpBurnHeld:    {event.CoinBurned, true},
	coin.OpHold:        {event.CoinHeld, false},
	coin.OpUnhold:      {event.CoinUnheld, false},
	coin.OpNullify:     {event.CoinNullified, false},
	coin.OpNullifyHeld: {event.CoinNullified, true},
}

func (s *Service) apply(ctx context.Context, op coin.Op, req AmountRequest) (*coinledger.Movement, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	if err := s.checkExists(ctx, req.CoinUID, req.ObjectUID); err != nil {
		return nil, err
	}

	m, err := s.ledger.Apply(ctx, op, req.CoinUID, req.ObjectUID, req.Amount)
	if err != nil {
		return nil, err
	}

	if !req.SkipEvents && !m.Amount.IsZero() {
		ev := opEvents[op]
		e := event.New(ev.kind, id.NewOperationID(), req.CoinUID)
		e.ObjectUID = req.ObjectUID
		e.Amount = m.Amount
		e.Held = ev.held
		e.InitiatorUID = req.InitiatorUID
		s.plugins.Emit(ctx, e)
	}
	return m, nil
}

// ──────────────────────────────────────────────────
// Transfers
// ──────────────────────────────────────────────────

func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*coinledger.TransferResult, error) {
	return s.transfer(ctx, coin.Transfer, req)
}

func (s *Service) TransferToHeld(ctx context.Context, req TransferRequest) (*coinledger.TransferResult, error) {
	return s.transfer(ctx, coin.TransferToHeld, req)
}

func (s *Service) TransferFromHeld(ctx context.Context, req TransferRequest) (*coinledger.TransferResult, error) {
	return s.transfer(ctx, coin.TransferFromHeld, req)
}

func (s *Service) TransferFromToHeld(ctx context.Context, req TransferRequest) (*coinledger.TransferResult, error) {
	return s.transfer(ctx, coin.TransferFromToHeld, req)
}

// TransferKind runs a transfer of the given kind.
func (s *Service) TransferKind(ctx context.Context, kind coin.TransferKind, req TransferRequest) (*coinledger.TransferResult, error) {
	return s.transfer(ctx, kind, req)
}

func (s *Service) transfer(ctx context.Context, kind coin.TransferKind, req TransferRequest) (*coinledger.TransferResult, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	if req.ObjectUID == req.TargetUID {
		return nil, fmt.Errorf("%w: %s", coinledger.ErrSelfTransfer, req.ObjectUID)
	}
	if err := s.checkExists(ctx, req.CoinUID, req.ObjectUID, req.TargetUID); err != nil {
		return nil, err
	}

	res, err := s.ledger.ApplyTransfer(ctx, kind, req.CoinUID, req.ObjectUID, req.TargetUID, req.Amount)
	if err != nil {
		return nil, err
	}

	if !req.SkipEvents && !req.Amount.IsZero() {
		for _, e := range transferEvents(kind, req) {
			s.plugins.Emit(ctx, e)
		}
	}
	return res, nil
}

// transferEvents returns the events of a transfer in the order its effects
// are observable: release from the object's held balance, the transfer
// itself, then the hold on the target.
func transferEvents(kind coin.TransferKind, req TransferRequest) []*event.Event {
	from, to := kind.Buckets()
	opID := id.NewOperationID()

	newEvent := func(k event.Kind) *event.Event {
		e := event.New(k, opID, req.CoinUID)
		e.Amount = req.Amount
		e.InitiatorUID = req.InitiatorUID
		return e
	}

	var events []*event.Event
	if from == coin.BucketHeld {
		e := newEvent(event.CoinUnheld)
		e.ObjectUID = req.ObjectUID
		events = append(events, e)
	}

	e := newEvent(event.CoinTransferred)
	e.ObjectUID = req.ObjectUID
	e.TargetUID = req.TargetUID
	e.Held = from == coin.BucketHeld || to == coin.BucketHeld
	events = append(events, e)

	if to == coin.BucketHeld {
		e := newEvent(event.CoinHeld)
		e.ObjectUID = req.TargetUID
		events = append(events, e)
	}
	return events
}

// checkExists verifies the coin exists, then every holder. Holders are any
// existing state: registered principals, coins or other objects of the host.
func (s *Service) checkExists(ctx context.Context, coinUID string, holders ...string) error {
	ok, err := s.store.HasState(ctx, coinUID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", coinledger.ErrCoinNotFound, coinUID)
	}

	for _, h := range holders {
		ok, err := s.store.HasState(ctx, h)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", coinledger.ErrAccountHolderNotFound, h)
		}
	}
	return nil
}
