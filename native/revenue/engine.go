package revenue

import (
	"fmt"
	"math/big"
	"time"

	"revchain/core/events"
)

type engineState interface {
	RevenueCurrentPeriod() (*Period, bool, error)
	RevenuePutCurrentPeriod(period *Period) error
	RevenueLastClosedPeriod() (*ClosedPeriod, bool, error)
	RevenuePutLastClosedPeriod(period *ClosedPeriod) error
	RevenueGrants(holder [20]byte) ([]Grant, error)
	RevenuePutGrants(holder [20]byte, grants []Grant) error
	RevenueReceipt(periodID uint64, holder [20]byte) (*big.Int, error)
	RevenuePutReceipt(periodID uint64, holder [20]byte, amount *big.Int) error
	RevenueUnexercisedSupply() (*big.Int, error)
	RevenuePutUnexercisedSupply(amount *big.Int) error
	RevenueSupplyCap() (*big.Int, error)
	RevenuePutSupplyCap(amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// UnitLedger is the fungible ownership-unit store the engine mints into.
type UnitLedger interface {
	Mint(to [20]byte, amount *big.Int) error
	Burn(from [20]byte, amount *big.Int) error
	Transfer(from, to [20]byte, amount *big.Int) error
	BalanceOf(holder [20]byte) (*big.Int, error)
	TotalSupply() (*big.Int, error)
}

// Custodian holds the revenue value and pushes payouts to holders.
type Custodian interface {
	Receive(from [20]byte, amount *big.Int) error
	Pay(to [20]byte, amount *big.Int) error
	Held() (*big.Int, error)
}

// rewindable is implemented by emitters that can drop events recorded after a
// mark, such as events.Buffer.
type rewindable interface {
	Len() int
	Truncate(n int)
}

// Engine implements the period lifecycle, grant book and withdrawal
// accounting on top of pluggable state, unit ledger and custody backends.
//
// Engine performs no locking. Callers must serialise every mutating call for a
// given state backend; core.Ledger does this with a single writer lock.
type Engine struct {
	state   engineState
	units   UnitLedger
	custody Custodian
	emitter events.Emitter
	auth    *Authorizer
	params  Params
	nowFn   func() uint64
}

// NewEngine constructs a revenue engine with default dependencies.
func NewEngine(params Params) *Engine {
	return &Engine{
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   defaultNow,
	}
}

func defaultNow() uint64 { return uint64(time.Now().Unix()) }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetUnitLedger configures the unit ledger collaborator.
func (e *Engine) SetUnitLedger(units UnitLedger) { e.units = units }

// SetCustodian configures the value custody collaborator.
func (e *Engine) SetCustodian(custody Custodian) { e.custody = custody }

// SetAuthorizer configures the verifier used by delegated entry points.
func (e *Engine) SetAuthorizer(auth *Authorizer) { e.auth = auth }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = defaultNow
		return
	}
	e.nowFn = now
}

// Params returns the configured parameters.
func (e *Engine) Params() Params { return e.params }

// Owner returns the identity allowed to call owner-gated operations.
func (e *Engine) Owner() [20]byte { return e.params.Owner }

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return defaultNow()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.units == nil || e.custody == nil {
		return fmt.Errorf("revenue: collaborators not configured")
	}
	return nil
}

// atomic runs fn and rolls back every state write and event it produced when
// fn fails.
func (e *Engine) atomic(fn func() error) error {
	snap := e.state.Snapshot()
	mark := -1
	if rw, ok := e.emitter.(rewindable); ok {
		mark = rw.Len()
	}
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snap)
		if rw, ok := e.emitter.(rewindable); ok && mark >= 0 {
			rw.Truncate(mark)
		}
		return err
	}
	return nil
}

// SetSupplyCap replaces the supply ceiling. Only the owner may call it.
func (e *Engine) SetSupplyCap(caller [20]byte, limit *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if isZeroAddress(e.params.Owner) || caller != e.params.Owner {
		return ErrUnauthorized
	}
	if limit == nil || limit.Sign() < 0 {
		return ErrInvalidAmount
	}
	if limit.BitLen() > 256 {
		return ErrAmountOverflow
	}
	return e.atomic(func() error {
		previous, err := e.state.RevenueSupplyCap()
		if err != nil {
			return err
		}
		if err := e.state.RevenuePutSupplyCap(new(big.Int).Set(limit)); err != nil {
			return err
		}
		e.emit(SupplyCapUpdatedEvent{Previous: previous, Cap: newBigInt(limit)})
		return nil
	})
}

// SupplyCap returns the current supply ceiling.
func (e *Engine) SupplyCap() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.RevenueSupplyCap()
}

// BalanceOf proxies the unit ledger balance for holder.
func (e *Engine) BalanceOf(holder [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.units.BalanceOf(holder)
}

// TotalSupply proxies the unit ledger total supply.
func (e *Engine) TotalSupply() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.units.TotalSupply()
}

// HeldValue returns the value currently in custody.
func (e *Engine) HeldValue() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.custody.Held()
}
