package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"revchain/core/events"
	"revchain/core/genesis"
	"revchain/core/state"
	"revchain/native/bank"
	"revchain/native/revenue"
	"revchain/observability"
	"revchain/observability/metrics"
	telemetry "revchain/observability/otel"
	"revchain/storage"
)

// EventSink receives every batch of committed events, in commit order.
type EventSink interface {
	Record(ctx context.Context, batch []CommittedEvent) error
}

// PayeeHook runs when value is paid to a registered recipient. It receives
// the engine bound to the in-flight operation so it may re-enter the ledger
// synchronously; its effects commit or revert with the payout.
type PayeeHook func(engine *revenue.Engine, amount *big.Int) error

// Options configures a Ledger.
type Options struct {
	Params  revenue.Params
	Domain  revenue.Domain
	Custody [20]byte
	Logger  *slog.Logger
	// Now overrides the wall clock, in unix seconds.
	Now func() uint64
}

// Ledger is the single-writer boundary around the revenue engine. Every
// mutating call holds one lock, runs against a fresh journaled overlay and
// either commits all of its writes in one batch or none of them. Events are
// published only after a successful commit.
type Ledger struct {
	mu      sync.RWMutex
	db      storage.Database
	params  revenue.Params
	auth    *revenue.Authorizer
	custody [20]byte
	nowFn   func() uint64
	logger  *slog.Logger
	metrics *metrics.RevenueMetrics
	feed    *EventFeed

	hooksMu sync.RWMutex
	hooks   map[[20]byte]PayeeHook
	sinks   []*sinkState
}

// sinkState holds the batches a sink has not accepted yet. They are retried
// ahead of newer events so the sink always sees commit order.
type sinkState struct {
	sink    EventSink
	pending []CommittedEvent
	dropped uint64
}

// maxSinkBacklog bounds the events queued per sink; the oldest are dropped
// beyond it.
const maxSinkBacklog = 4 * eventHistoryLimit

// NewLedger validates the options and binds a ledger to db.
func NewLedger(db storage.Database, opts Options) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("core: params: %w", err)
	}
	auth, err := revenue.NewAuthorizer(opts.Domain)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = func() uint64 { return uint64(time.Now().Unix()) }
	}
	custody := opts.Custody
	if custody == ([20]byte{}) {
		custody = bank.DefaultCustodyAddress
	}
	return &Ledger{
		db:      db,
		params:  opts.Params,
		auth:    auth,
		custody: custody,
		nowFn:   nowFn,
		logger:  logger.With("component", "ledger"),
		metrics: metrics.Revenue(),
		feed:    NewEventFeed(),
		hooks:   make(map[[20]byte]PayeeHook),
	}, nil
}

// NewLedgerFromGenesis builds a ledger from a genesis document and applies
// it. Applying is a no-op on a database that already holds a ledger.
func NewLedgerFromGenesis(ctx context.Context, db storage.Database, spec *genesis.GenesisSpec, logger *slog.Logger) (*Ledger, error) {
	if spec == nil {
		return nil, fmt.Errorf("core: genesis spec required")
	}
	ledger, err := NewLedger(db, Options{
		Params:  spec.Params(),
		Domain:  spec.SigningDomain(),
		Custody: spec.CustodyAddress(),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	if err := ledger.ApplyGenesis(ctx, spec); err != nil {
		return nil, err
	}
	return ledger, nil
}

// SetNowFunc overrides the ledger clock.
func (l *Ledger) SetNowFunc(now func() uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	l.nowFn = now
}

// AddSink registers a consumer of committed events.
func (l *Ledger) AddSink(sink EventSink) {
	if sink == nil {
		return
	}
	l.mu.Lock()
	l.sinks = append(l.sinks, &sinkState{sink: sink})
	l.mu.Unlock()
}

// RegisterPayeeHook installs hook for payouts to addr. A nil hook removes it.
func (l *Ledger) RegisterPayeeHook(addr [20]byte, hook PayeeHook) {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	if hook == nil {
		delete(l.hooks, addr)
		return
	}
	l.hooks[addr] = hook
}

// boundHooks adapts the ledger's hooks to the vault for one operation.
type boundHooks struct {
	ledger *Ledger
	engine *revenue.Engine
}

// PayeeHook binds the registered hook for to, if any, to the current engine.
func (b boundHooks) PayeeHook(to [20]byte) bank.PayeeHook {
	b.ledger.hooksMu.RLock()
	hook := b.ledger.hooks[to]
	b.ledger.hooksMu.RUnlock()
	if hook == nil {
		return nil
	}
	return func(amount *big.Int) error { return hook(b.engine, amount) }
}

// Feed exposes the committed event stream.
func (l *Ledger) Feed() *EventFeed { return l.feed }

// Authorizer exposes the signing domain used by delegated calls.
func (l *Ledger) Authorizer() *revenue.Authorizer { return l.auth }

// Params returns the configured period parameters.
func (l *Ledger) Params() revenue.Params { return l.params }

// Now returns the ledger clock.
func (l *Ledger) Now() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nowFn()
}

func (l *Ledger) newEngine(st *state.Manager, emitter events.Emitter) *revenue.Engine {
	engine := revenue.NewEngine(l.params)
	engine.SetState(st)
	engine.SetUnitLedger(bank.NewLedger(st, emitter))
	vault := bank.NewVault(st, l.custody, emitter)
	vault.SetHooks(boundHooks{ledger: l, engine: engine})
	engine.SetCustodian(vault)
	engine.SetAuthorizer(l.auth)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(l.nowFn)
	return engine
}

// execute runs fn under the write lock and commits its writes when it
// succeeds.
func (l *Ledger) execute(ctx context.Context, op string, fn func(*revenue.Engine) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := telemetry.Tracer().Start(ctx, "ledger."+op)
	defer span.End()
	span.SetAttributes(attribute.String("ledger.operation", op))

	l.mu.Lock()
	defer l.mu.Unlock()
	start := time.Now()

	st := state.NewManager(l.db)
	buf := &events.Buffer{}
	engine := l.newEngine(st, buf)

	err := fn(engine)
	if err == nil {
		err = st.Commit()
	} else {
		st.Discard()
	}
	l.metrics.ObserveOperation(op, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Warn("ledger operation failed", "operation", op, "error", err)
		return err
	}

	committed := l.feed.publish(buf.Events(), int64(l.nowFn()))
	for _, evt := range committed {
		observability.Events().RecordEvent(evt.Type)
		if evt.Type == events.TypeTransfer {
			observability.Events().RecordTransfer(evt.Attributes["asset"])
		}
	}
	l.deliver(ctx, op, committed)
	l.publishSnapshot(engine)
	l.logger.Info("ledger operation committed", "operation", op, "events", len(committed))
	return nil
}

// deliver hands committed events, after any queued ones, to every sink. The
// caller holds the write lock.
func (l *Ledger) deliver(ctx context.Context, op string, committed []CommittedEvent) {
	backlog := 0
	for _, s := range l.sinks {
		batch := append(s.pending, committed...)
		if len(batch) == 0 {
			continue
		}
		err := s.sink.Record(ctx, batch)
		if err == nil {
			s.pending = nil
			continue
		}
		dropped := 0
		if len(batch) > maxSinkBacklog {
			dropped = len(batch) - maxSinkBacklog
			batch = batch[dropped:]
			s.dropped += uint64(dropped)
		}
		s.pending = append([]CommittedEvent(nil), batch...)
		backlog += len(s.pending)
		l.metrics.RecordSinkFailure(dropped)
		l.logger.Error("event sink failed", "operation", op, "queued", len(s.pending), "dropped", dropped, "error", err)
	}
	l.metrics.SetSinkBacklog(backlog)
}

// RetrySinks redelivers queued events to sinks that previously failed.
func (l *Ledger) RetrySinks(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deliver(ctx, "retry", nil)
}

// SinkStatus reports the events still queued for sinks and how many were
// discarded after the backlog overflowed. Dropped events leave a permanent
// gap in the archive.
func (l *Ledger) SinkStatus() (queued int, dropped uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.sinks {
		queued += len(s.pending)
		dropped += s.dropped
	}
	return queued, dropped
}

// SinksHealthy is false while any committed event has not reached every sink.
func (l *Ledger) SinksHealthy() bool {
	queued, dropped := l.SinkStatus()
	return queued == 0 && dropped == 0
}

func (l *Ledger) publishSnapshot(engine *revenue.Engine) {
	snap := metrics.Snapshot{}
	if current, err := engine.CurrentPeriod(); err == nil {
		snap.PeriodID = current.ID
		snap.Accrued = current.Revenue
	}
	if last, ok, err := engine.LastClosedPeriod(); err == nil && ok {
		snap.ClosedRevenue = last.Revenue
	}
	snap.Held, _ = engine.HeldValue()
	snap.TotalSupply, _ = engine.TotalSupply()
	snap.Unexercised, _ = engine.UnexercisedSupply()
	snap.SupplyCap, _ = engine.SupplyCap()
	l.metrics.SetSnapshot(snap)
}

// view runs a read-only fn against committed state.
func (l *Ledger) view(fn func(*revenue.Engine) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := state.NewManager(l.db)
	return fn(l.newEngine(st, events.NoopEmitter{}))
}

// ApplyGenesis opens period 0 and mints the bootstrap allocations.
func (l *Ledger) ApplyGenesis(ctx context.Context, spec *genesis.GenesisSpec) error {
	return l.execute(ctx, "genesis", func(engine *revenue.Engine) error {
		return spec.Apply(engine, l.nowFn())
	})
}

// Init opens period 0 at the current time if the ledger is empty.
func (l *Ledger) Init(ctx context.Context) (*revenue.Period, error) {
	var period *revenue.Period
	err := l.execute(ctx, "init", func(engine *revenue.Engine) error {
		var err error
		period, err = engine.Init()
		return err
	})
	return period, err
}

// Deposit issues units to depositor; see revenue.Engine.Deposit.
func (l *Ledger) Deposit(ctx context.Context, depositor [20]byte, amount *big.Int) (*revenue.Grant, error) {
	var grant *revenue.Grant
	err := l.execute(ctx, "deposit", func(engine *revenue.Engine) error {
		var err error
		grant, err = engine.Deposit(depositor, amount)
		return err
	})
	return grant, err
}

// Redeem exercises the holder's matured grants.
func (l *Ledger) Redeem(ctx context.Context, holder [20]byte) (*big.Int, error) {
	var minted *big.Int
	err := l.execute(ctx, "redeem", func(engine *revenue.Engine) error {
		var err error
		minted, err = engine.Redeem(holder)
		return err
	})
	return minted, err
}

// Withdraw pays holder its share of the last closed period.
func (l *Ledger) Withdraw(ctx context.Context, holder [20]byte) (*big.Int, error) {
	var paid *big.Int
	err := l.execute(ctx, "withdraw", func(engine *revenue.Engine) error {
		var err error
		paid, err = engine.Withdraw(holder)
		return err
	})
	if err == nil {
		l.metrics.RecordWithdrawn(paid)
	}
	return paid, err
}

// Transfer moves units and carries the sender's withdrawal receipt.
func (l *Ledger) Transfer(ctx context.Context, from, to [20]byte, amount *big.Int) error {
	return l.execute(ctx, "transfer", func(engine *revenue.Engine) error {
		return engine.Transfer(from, to, amount)
	})
}

// ReceiveValue takes revenue into custody on behalf of sender.
func (l *Ledger) ReceiveValue(ctx context.Context, sender [20]byte, amount *big.Int) error {
	return l.execute(ctx, "receive_value", func(engine *revenue.Engine) error {
		return engine.ReceiveValue(sender, amount)
	})
}

// Advance closes the current period if it has ended.
func (l *Ledger) Advance(ctx context.Context) (*revenue.Period, error) {
	var next *revenue.Period
	err := l.execute(ctx, "advance", func(engine *revenue.Engine) error {
		var err error
		next, err = engine.Advance()
		return err
	})
	if err == nil {
		l.metrics.RecordRollover()
		l.logger.Info("period advanced", "period", next.ID, "revenue", next.Revenue.String())
	}
	return next, err
}

// SetSupplyCap replaces the supply ceiling; caller must be the owner.
func (l *Ledger) SetSupplyCap(ctx context.Context, caller [20]byte, limit *big.Int) error {
	return l.execute(ctx, "set_supply_cap", func(engine *revenue.Engine) error {
		return engine.SetSupplyCap(caller, limit)
	})
}

// RedeemBySig redeems for the holder that signed periodDate.
func (l *Ledger) RedeemBySig(ctx context.Context, periodDate uint64, signature []byte) ([20]byte, *big.Int, error) {
	var (
		holder [20]byte
		minted *big.Int
	)
	err := l.execute(ctx, "redeem_by_sig", func(engine *revenue.Engine) error {
		var err error
		holder, minted, err = engine.RedeemBySig(periodDate, signature)
		return err
	})
	return holder, minted, err
}

// WithdrawBySig withdraws for the holder that signed periodDate.
func (l *Ledger) WithdrawBySig(ctx context.Context, periodDate uint64, signature []byte) ([20]byte, *big.Int, error) {
	var (
		holder [20]byte
		paid   *big.Int
	)
	err := l.execute(ctx, "withdraw_by_sig", func(engine *revenue.Engine) error {
		var err error
		holder, paid, err = engine.WithdrawBySig(periodDate, signature)
		return err
	})
	if err == nil {
		l.metrics.RecordWithdrawn(paid)
	}
	return holder, paid, err
}

// RedeemBulk commits every successful entry together; failed entries are
// reported in their result and leave no trace.
func (l *Ledger) RedeemBulk(ctx context.Context, periodDates []uint64, signatures [][]byte) ([]revenue.BulkResult, error) {
	return l.bulk(ctx, "redeem_bulk", func(engine *revenue.Engine) ([]revenue.BulkResult, error) {
		return engine.RedeemBulk(periodDates, signatures)
	})
}

// WithdrawBulk is RedeemBulk for withdrawals.
func (l *Ledger) WithdrawBulk(ctx context.Context, periodDates []uint64, signatures [][]byte) ([]revenue.BulkResult, error) {
	results, err := l.bulk(ctx, "withdraw_bulk", func(engine *revenue.Engine) ([]revenue.BulkResult, error) {
		return engine.WithdrawBulk(periodDates, signatures)
	})
	for _, res := range results {
		if res.OK() {
			l.metrics.RecordWithdrawn(res.Amount)
		}
	}
	return results, err
}

func (l *Ledger) bulk(ctx context.Context, op string, fn func(*revenue.Engine) ([]revenue.BulkResult, error)) ([]revenue.BulkResult, error) {
	var results []revenue.BulkResult
	err := l.execute(ctx, op, func(engine *revenue.Engine) error {
		var err error
		results, err = fn(engine)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		l.metrics.RecordBulkItem(op, res.Err)
	}
	return results, nil
}

// HolderView summarises one holder's position.
type HolderView struct {
	Address         [20]byte        `json:"-"`
	Balance         *big.Int        `json:"balance"`
	Unexercised     *big.Int        `json:"unexercised"`
	WithdrawalPower *big.Int        `json:"withdrawalPower"`
	Value           *big.Int        `json:"value"`
	Grants          []revenue.Grant `json:"grants"`
}

// SupplyView summarises the ledger's aggregate balances.
type SupplyView struct {
	Total       *big.Int `json:"total"`
	Unexercised *big.Int `json:"unexercised"`
	Cap         *big.Int `json:"cap"`
	Held        *big.Int `json:"held"`
}

// CurrentPeriod returns the accruing period.
func (l *Ledger) CurrentPeriod() (*revenue.Period, error) {
	var period *revenue.Period
	err := l.view(func(engine *revenue.Engine) error {
		var err error
		period, err = engine.CurrentPeriod()
		return err
	})
	return period, err
}

// LastClosedPeriod returns the last closed period; ok is false before the
// first rollover.
func (l *Ledger) LastClosedPeriod() (*revenue.ClosedPeriod, bool, error) {
	var (
		period *revenue.ClosedPeriod
		ok     bool
	)
	err := l.view(func(engine *revenue.Engine) error {
		var err error
		period, ok, err = engine.LastClosedPeriod()
		return err
	})
	return period, ok, err
}

// InBlackout reports whether withdrawals are currently disabled.
func (l *Ledger) InBlackout() (bool, error) {
	var blackout bool
	err := l.view(func(engine *revenue.Engine) error {
		var err error
		blackout, err = engine.InBlackout()
		return err
	})
	return blackout, err
}

// Holder gathers the balances and grants of addr from committed state.
func (l *Ledger) Holder(addr [20]byte) (*HolderView, error) {
	view := &HolderView{Address: addr}
	err := l.view(func(engine *revenue.Engine) error {
		var err error
		if view.Balance, err = engine.BalanceOf(addr); err != nil {
			return err
		}
		if view.Unexercised, err = engine.UnexercisedBalance(addr); err != nil {
			return err
		}
		if view.WithdrawalPower, err = engine.WithdrawalPower(addr); err != nil {
			return err
		}
		if view.Grants, err = engine.Grants(addr); err != nil {
			return err
		}
		st := state.NewManager(l.db)
		view.Value, err = st.BankBalance(bank.AssetValue, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Supply gathers the supply totals, cap and held value.
func (l *Ledger) Supply() (*SupplyView, error) {
	view := &SupplyView{}
	err := l.view(func(engine *revenue.Engine) error {
		var err error
		if view.Total, err = engine.TotalSupply(); err != nil {
			return err
		}
		if view.Unexercised, err = engine.UnexercisedSupply(); err != nil {
			return err
		}
		if view.Cap, err = engine.SupplyCap(); err != nil {
			return err
		}
		view.Held, err = engine.HeldValue()
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Ready reports whether the ledger holds an open period.
func (l *Ledger) Ready() bool {
	_, err := l.CurrentPeriod()
	return err == nil
}

// RunRollover advances the period whenever the current one has ended,
// checking every interval until ctx is cancelled.
func (l *Ledger) RunRollover(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := l.TryAdvance(ctx); err != nil {
			l.logger.Error("rollover failed", "error", err)
		}
		l.RetrySinks(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// TryAdvance advances when the current period has ended. It reports whether a
// rollover happened.
func (l *Ledger) TryAdvance(ctx context.Context) (bool, error) {
	current, err := l.CurrentPeriod()
	if err != nil {
		return false, err
	}
	if l.Now() < current.EndTime {
		return false, nil
	}
	if _, err := l.Advance(ctx); err != nil {
		if errors.Is(err, revenue.ErrPeriodInProgress) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
