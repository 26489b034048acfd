package coin

import (
	"fmt"

	"github.com/xraph/coinledger/types"
)

// Bucket names one side of a Balance.
type Bucket int

// Balance buckets. BucketNone marks the missing side of a one-sided movement.
const (
	BucketNone Bucket = iota
	BucketAvailable
	BucketHeld
)

func (b Bucket) String() string {
	switch b {
	case BucketAvailable:
		return "available"
	case BucketHeld:
		return "held"
	default:
		return "none"
	}
}

// movement debits one bucket and credits another by the same amount.
type movement struct {
	from Bucket
	to   Bucket
}

// debit subtracts v from bucket, failing with ErrInsufficientBalance on underflow.
func debit(b Balance, bucket Bucket, v types.Amount) (Balance, error) {
	var err error
	switch bucket {
	case BucketAvailable:
		b.Available, err = b.Available.Sub(v)
	case BucketHeld:
		b.Held, err = b.Held.Sub(v)
	}
	if err != nil {
		return b, fmt.Errorf("%s: %w", bucket, err)
	}
	return b, nil
}

func credit(b Balance, bucket Bucket, v types.Amount) Balance {
	switch bucket {
	case BucketAvailable:
		b.Available = b.Available.Add(v)
	case BucketHeld:
		b.Held = b.Held.Add(v)
	}
	return b
}

func (m movement) apply(b Balance, v types.Amount) (Balance, error) {
	b, err := debit(b, m.from, v)
	if err != nil {
		return b, err
	}
	return credit(b, m.to, v), nil
}

// ──────────────────────────────────────────────────
// Single-account operations
// ──────────────────────────────────────────────────

// Op is a balance mutation applied in lockstep to a coin and one of its accounts.
type Op string

// Single-account operations.
const (
	OpEmit        Op = "emit"
	OpEmitHeld    Op = "emit_held"
	OpBurn        Op = "burn"
	OpBurnHeld    Op = "burn_held"
	OpHold        Op = "hold"
	OpUnhold      Op = "unhold"
	OpNullify     Op = "nullify"
	OpNullifyHeld Op = "nullify_held"
)

var ops = map[Op]movement{
	OpEmit:        {to: BucketAvailable},
	OpEmitHeld:    {to: BucketHeld},
	OpBurn:        {from: BucketAvailable},
	OpBurnHeld:    {from: BucketHeld},
	OpHold:        {from: BucketAvailable, to: BucketHeld},
	OpUnhold:      {from: BucketHeld, to: BucketAvailable},
	OpNullify:     {from: BucketAvailable},
	OpNullifyHeld: {from: BucketHeld},
}

// IsValid returns true if op is a known operation.
func (op Op) IsValid() bool {
	_, ok := ops[op]
	return ok
}

// IsNullify returns true for operations that clear a whole bucket.
func (op Op) IsNullify() bool {
	return op == OpNullify || op == OpNullifyHeld
}

// Result is the outcome of Apply.
type Result struct {
	Coin    Balance
	Account Balance
	// Amount is the amount actually moved. For nullify operations it is the
	// cleared bucket, which may be zero.
	Amount types.Amount
}

// Apply computes the new coin and account balances for op with amount v.
// Nullify operations ignore v and clear the account's bucket.
// Inputs are never modified; on error nothing should be persisted.
func Apply(op Op, c, a Balance, v types.Amount) (Result, error) {
	m, ok := ops[op]
	if !ok {
		return Result{}, fmt.Errorf("coin: unknown operation %q", op)
	}

	switch op {
	case OpNullify:
		v = a.Available
	case OpNullifyHeld:
		v = a.Held
	}

	account, err := m.apply(a, v)
	if err != nil {
		return Result{}, fmt.Errorf("%s account: %w", op, err)
	}
	aggregate, err := m.apply(c, v)
	if err != nil {
		return Result{}, fmt.Errorf("%s coin: %w", op, err)
	}

	return Result{Coin: aggregate, Account: account, Amount: v}, nil
}

// ──────────────────────────────────────────────────
// Transfers
// ──────────────────────────────────────────────────

// TransferKind selects the source and destination buckets of a transfer.
type TransferKind string

// Transfer kinds.
const (
	Transfer           TransferKind = "transfer"
	TransferToHeld     TransferKind = "transfer_to_held"
	TransferFromHeld   TransferKind = "transfer_from_held"
	TransferFromToHeld TransferKind = "transfer_from_to_held"
)

var transfers = map[TransferKind]movement{
	Transfer:           {from: BucketAvailable, to: BucketAvailable},
	TransferToHeld:     {from: BucketAvailable, to: BucketHeld},
	TransferFromHeld:   {from: BucketHeld, to: BucketAvailable},
	TransferFromToHeld: {from: BucketHeld, to: BucketHeld},
}

// IsValid returns true if k is a known transfer kind.
func (k TransferKind) IsValid() bool {
	_, ok := transfers[k]
	return ok
}

// Buckets returns the source and destination buckets.
func (k TransferKind) Buckets() (from, to Bucket) {
	m := transfers[k]
	return m.from, m.to
}

// TransferResult is the outcome of ApplyTransfer.
type TransferResult struct {
	Coin   Balance
	Object Balance
	Target Balance
}

// ApplyTransfer moves v from the object's source bucket to the target's
// destination bucket. The coin total never changes; when source and
// destination buckets differ the coin aggregate shifts by v between them.
func ApplyTransfer(kind TransferKind, c, object, target Balance, v types.Amount) (TransferResult, error) {
	m, ok := transfers[kind]
	if !ok {
		return TransferResult{}, fmt.Errorf("coin: unknown transfer kind %q", kind)
	}

	from, err := debit(object, m.from, v)
	if err != nil {
		return TransferResult{}, fmt.Errorf("%s object: %w", kind, err)
	}
	to := credit(target, m.to, v)

	aggregate, err := m.apply(c, v)
	if err != nil {
		return TransferResult{}, fmt.Errorf("%s coin: %w", kind, err)
	}

	return TransferResult{Coin: aggregate, Object: from, Target: to}, nil
}

// ApplyTransferSelf is ApplyTransfer for an object that is also the target:
// the debit and the credit land on the same balance. A plain transfer to self
// is a no-op (after the balance check) and the held variants become hold/unhold.
func ApplyTransferSelf(kind TransferKind, c, b Balance, v types.Amount) (TransferResult, error) {
	m, ok := transfers[kind]
	if !ok {
		return TransferResult{}, fmt.Errorf("coin: unknown transfer kind %q", kind)
	}

	moved, err := m.apply(b, v)
	if err != nil {
		return TransferResult{}, fmt.Errorf("%s object: %w", kind, err)
	}
	aggregate, err := m.apply(c, v)
	if err != nil {
		return TransferResult{}, fmt.Errorf("%s coin: %w", kind, err)
	}

	return TransferResult{Coin: aggregate, Object: moved, Target: moved}, nil
}
