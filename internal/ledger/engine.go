// Package ledger implements the fixed-period, multi-stake reward ledger: the
// period catalog, the reward pool accountant, per-account stake records,
// compound pools and the period selector.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/lockstake-ledger/internal/custody"
	"github.com/yourorg/lockstake-ledger/internal/model"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

const moduleName = "ledger"

// EventSink receives the events of every committed call, in commit order.
// Publish must not call back into mutating engine methods.
type EventSink interface {
	Publish(ctx context.Context, events []model.Event)
}

// Options configures a new Engine
type Options struct {
	// Token is the custody token; the engine holds funds at Custody
	Token   custody.Token
	Custody common.Address

	// Owner is the single principal allowed to run administrative calls
	Owner common.Address

	// PeriodDays lists the lock durations of the catalog in index order
	PeriodDays []uint64

	// BaseRateBps is the initial 365-day rate
	BaseRateBps uint64

	// MaxBaseRateBps caps SetBaseRate
	MaxBaseRateBps uint64

	// RateCooldown is the minimum spacing between base rate changes
	RateCooldown time.Duration

	// MinAutoCompound is the smallest reward routed to the compound pool;
	// smaller rewards are paid in cash even for auto-compounding stakes
	MinAutoCompound *uint256.Int

	// AutoFlushThreshold triggers an immediate compound pool flush
	AutoFlushThreshold *uint256.Int
}

// DefaultOptions returns the production defaults without token wiring
func DefaultOptions() Options {
	return Options{
		PeriodDays:         []uint64{7, 14, 28, 90, 180, 365},
		BaseRateBps:        2000,
		MaxBaseRateBps:     5000,
		RateCooldown:       7 * 24 * time.Hour,
		MinAutoCompound:    types.Tokens(1),
		AutoFlushThreshold: types.Tokens(100),
	}
}

// Engine owns the ledger state and serializes every mutating call.
type Engine struct {
	// mu serializes mutating calls
	mu sync.Mutex

	// settling is set while the custody transfer of a call is in flight
	settling atomic.Bool

	// viewMu guards the pointer to the committed state
	viewMu sync.RWMutex
	st     *state

	token   custody.Token
	custody common.Address
	owner   common.Address

	maxBaseRate        uint64
	rateCooldown       uint64
	minAutoCompound    uint256.Int
	autoFlushThreshold uint256.Int

	now   func() time.Time
	sinks []EventSink
	log   *logrus.Entry
}

// New validates opts and builds an engine with an empty, unfunded pool
func New(opts Options) (*Engine, error) {
	if opts.Token == nil {
		return nil, errors.New("ledger: custody token not configured")
	}
	if opts.Custody == (common.Address{}) {
		return nil, errors.New("ledger: custody address not configured")
	}
	if opts.Owner == (common.Address{}) {
		return nil, errors.New("ledger: owner not configured")
	}
	if len(opts.PeriodDays) == 0 {
		return nil, errors.New("ledger: at least one period is required")
	}
	if opts.BaseRateBps == 0 || (opts.MaxBaseRateBps != 0 && opts.BaseRateBps > opts.MaxBaseRateBps) {
		return nil, fmt.Errorf("ledger: base rate %d outside (0, %d]", opts.BaseRateBps, opts.MaxBaseRateBps)
	}
	cat, err := newCatalog(opts.PeriodDays, opts.BaseRateBps)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		st:           newState(cat, opts.BaseRateBps),
		token:        opts.Token,
		custody:      opts.Custody,
		owner:        opts.Owner,
		maxBaseRate:  opts.MaxBaseRateBps,
		rateCooldown: uint64(opts.RateCooldown / time.Second),
		now:          time.Now,
		log:          logrus.WithField("module", moduleName),
	}
	if e.maxBaseRate == 0 {
		e.maxBaseRate = types.BasisPoints
	}
	if opts.MinAutoCompound != nil {
		e.minAutoCompound.Set(opts.MinAutoCompound)
	}
	if opts.AutoFlushThreshold != nil {
		e.autoFlushThreshold.Set(opts.AutoFlushThreshold)
	}
	return e, nil
}

// WithClock replaces the wall clock and returns the engine
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithSink registers an event sink and returns the engine
func (e *Engine) WithSink(sink EventSink) *Engine {
	if sink != nil {
		e.sinks = append(e.sinks, sink)
	}
	return e
}

// Owner returns the administrative principal
func (e *Engine) Owner() common.Address {
	return e.owner
}

// CustodyAddress returns the address the engine holds funds at
func (e *Engine) CustodyAddress() common.Address {
	return e.custody
}

type guardKey struct{}

// transfer is the single custody movement a call may perform
type transfer struct {
	inbound bool
	account common.Address
	amount  uint256.Int
}

// call is the scope of one mutating operation
type call struct {
	ctx      context.Context
	e        *Engine
	st       *state
	now      uint64
	events   []model.Event
	transfer *transfer
}

// execute runs fn against a clone of the committed state. The clone is
// committed only if fn succeeds and the custody transfer (performed last)
// succeeds; otherwise it is dropped and the ledger is unchanged.
func (e *Engine) execute(ctx context.Context, op string, fn func(c *call) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// A token callback may drop the call context; the settling flag still
	// catches it before it blocks on mu.
	if ctx.Value(guardKey{}) == e || e.settling.Load() {
		e.log.WithField("op", op).Warn("Re-entrant ledger call rejected")
		return ErrReentrant
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx = context.WithValue(ctx, guardKey{}, e)
	c := &call{
		ctx: ctx,
		e:   e,
		st:  e.committed().clone(),
		now: uint64(e.now().Unix()),
	}

	if err := fn(c); err != nil {
		e.log.WithFields(logrus.Fields{"op": op, "error": err}).Debug("Ledger call rejected")
		return err
	}
	if err := e.settle(ctx, c.transfer); err != nil {
		e.log.WithFields(logrus.Fields{"op": op, "error": err}).Warn("Custody transfer failed, call rolled back")
		return err
	}

	e.viewMu.Lock()
	e.st = c.st
	e.viewMu.Unlock()

	e.log.WithFields(logrus.Fields{"op": op, "events": len(c.events)}).Debug("Ledger call committed")
	for _, sink := range e.sinks {
		sink.Publish(ctx, c.events)
	}
	return nil
}

func (e *Engine) settle(ctx context.Context, t *transfer) error {
	if t == nil || t.amount.IsZero() {
		return nil
	}
	e.settling.Store(true)
	defer e.settling.Store(false)

	var err error
	if t.inbound {
		err = e.token.TransferFrom(ctx, e.custody, t.account, e.custody, &t.amount)
	} else {
		err = e.token.Transfer(ctx, e.custody, t.account, &t.amount)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

// committed returns the current committed state
func (e *Engine) committed() *state {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.st
}

// pull schedules amount to be taken from account into custody
func (c *call) pull(account common.Address, amount *uint256.Int) error {
	return c.schedule(true, account, amount)
}

// pay schedules amount to be sent from custody to account. Payments to the
// same account within one call are merged into one transfer.
func (c *call) pay(account common.Address, amount *uint256.Int) error {
	return c.schedule(false, account, amount)
}

func (c *call) schedule(inbound bool, account common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if c.transfer == nil {
		c.transfer = &transfer{inbound: inbound, account: account}
		c.transfer.amount.Set(amount)
		return nil
	}
	if c.transfer.inbound != inbound || c.transfer.account != account {
		return fmt.Errorf("ledger: %w: one custody transfer per call", ErrState)
	}
	c.transfer.amount.Add(&c.transfer.amount, amount)
	return nil
}

// emit records an event to be published after commit
func (c *call) emit(eventType string, account common.Address, attrs map[string]string) {
	ev := model.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  int64(c.now),
		Attributes: attrs,
	}
	if account != (common.Address{}) {
		ev.Account = account.Hex()
	}
	c.events = append(c.events, ev)
}

func (e *Engine) authorize(caller common.Address) error {
	if caller != e.owner {
		return ErrNotOwner
	}
	return nil
}

func (e *Engine) nowUnix() uint64 {
	return uint64(e.now().Unix())
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func utoa(u uint64) string {
	return strconv.FormatUint(u, 10)
}

func minAmount(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}
