package revenue_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"revchain/core/events"
	"revchain/core/state"
	"revchain/native/bank"
	"revchain/native/revenue"
	"revchain/storage"
)

const (
	testPeriod   uint64 = 100
	testBlackout uint64 = 10
	genesisTime  uint64 = 1_000
)

var (
	owner = [20]byte{0x0e}
	alice = [20]byte{0xa1}
	bob   = [20]byte{0xb0}
	payer = [20]byte{0xfe}
)

type hookMap map[[20]byte]bank.PayeeHook

func (h hookMap) PayeeHook(to [20]byte) bank.PayeeHook { return h[to] }

type fixture struct {
	t      *testing.T
	engine *revenue.Engine
	state  *state.Manager
	units  *bank.Ledger
	vault  *bank.Vault
	events *events.Buffer
	hooks  hookMap
	now    uint64
}

func newFixture(t *testing.T, supplyCap int64) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		state:  state.NewManager(storage.NewMemDB()),
		events: &events.Buffer{},
		hooks:  hookMap{},
		now:    genesisTime,
	}
	f.units = bank.NewLedger(f.state, f.events)
	f.vault = bank.NewVault(f.state, [20]byte{0xcc}, f.events)
	f.vault.SetHooks(f.hooks)

	params := revenue.Params{PeriodDuration: testPeriod, BlackoutDuration: testBlackout, Owner: owner}
	require.NoError(t, params.Validate())
	f.engine = revenue.NewEngine(params)
	f.engine.SetState(f.state)
	f.engine.SetUnitLedger(f.units)
	f.engine.SetCustodian(f.vault)
	f.engine.SetEmitter(f.events)
	f.engine.SetNowFunc(func() uint64 { return f.now })

	_, err := f.engine.Init()
	require.NoError(t, err)
	require.NoError(t, f.engine.SetSupplyCap(owner, big.NewInt(supplyCap)))
	return f
}

func (f *fixture) rollover() *revenue.Period {
	f.t.Helper()
	current, err := f.engine.CurrentPeriod()
	require.NoError(f.t, err)
	f.now = current.EndTime
	next, err := f.engine.Advance()
	require.NoError(f.t, err)
	return next
}

func (f *fixture) pastBlackout() {
	f.now += testBlackout + 1
}

func (f *fixture) balance(holder [20]byte) int64 {
	f.t.Helper()
	bal, err := f.engine.BalanceOf(holder)
	require.NoError(f.t, err)
	return bal.Int64()
}

func (f *fixture) supply() int64 {
	f.t.Helper()
	total, err := f.engine.TotalSupply()
	require.NoError(f.t, err)
	return total.Int64()
}

func (f *fixture) deposit(holder [20]byte, amount int64) *revenue.Grant {
	f.t.Helper()
	grant, err := f.engine.Deposit(holder, big.NewInt(amount))
	require.NoError(f.t, err)
	return grant
}

func (f *fixture) receive(amount int64) {
	f.t.Helper()
	require.NoError(f.t, f.engine.ReceiveValue(payer, big.NewInt(amount)))
}

func (f *fixture) eventTypes() []string {
	var out []string
	for _, evt := range f.events.Events() {
		out = append(out, evt.EventType())
	}
	return out
}

func TestInitIsIdempotent(t *testing.T) {
	f := newFixture(t, 1_000)
	current, err := f.engine.CurrentPeriod()
	require.NoError(t, err)
	require.Equal(t, uint64(0), current.ID)
	require.Equal(t, genesisTime, current.StartTime)
	require.Equal(t, genesisTime+testPeriod, current.EndTime)

	f.now += 50
	again, err := f.engine.Init()
	require.NoError(t, err)
	require.Equal(t, current.EndTime, again.EndTime)

	_, ok, err := f.engine.LastClosedPeriod()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEngineRequiresCollaborators(t *testing.T) {
	engine := revenue.NewEngine(revenue.DefaultParams())
	_, err := engine.Deposit(alice, big.NewInt(1))
	require.ErrorIs(t, err, revenue.ErrNilState)

	engine.SetState(state.NewManager(storage.NewMemDB()))
	_, err = engine.Advance()
	require.Error(t, err)
}

func TestParamsValidate(t *testing.T) {
	params := revenue.DefaultParams()
	require.Error(t, params.Validate(), "owner is required")
	params.Owner = owner
	require.NoError(t, params.Validate())
	params.BlackoutDuration = params.PeriodDuration
	require.Error(t, params.Validate())
	params.PeriodDuration = 0
	require.Error(t, params.Validate())
}

func TestAdvanceRespectsEndTime(t *testing.T) {
	f := newFixture(t, 1_000)
	current, err := f.engine.CurrentPeriod()
	require.NoError(t, err)

	f.now = current.EndTime - 1
	_, err = f.engine.Advance()
	require.ErrorIs(t, err, revenue.ErrPeriodInProgress)

	f.now = current.EndTime
	next, err := f.engine.Advance()
	require.NoError(t, err)
	require.Equal(t, uint64(1), next.ID)
	require.Equal(t, current.EndTime, next.StartTime)
	require.Equal(t, current.EndTime+testPeriod, next.EndTime)

	last, ok, err := f.engine.LastClosedPeriod()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), last.ID)
	require.Equal(t, current.EndTime, last.Date)
}

func TestAdvanceCapsRevenueAtHeldValue(t *testing.T) {
	f := newFixture(t, 1_000)
	f.deposit(alice, 10)
	f.receive(500)
	next := f.rollover()
	require.Equal(t, int64(500), next.Revenue.Int64(), "revenue carries forward")

	f.pastBlackout()
	paid, err := f.engine.Withdraw(alice)
	require.NoError(t, err)
	require.Equal(t, int64(500), paid.Int64())

	next = f.rollover()
	require.Zero(t, next.Revenue.Sign(), "carried revenue is capped by custody")
	last, _, err := f.engine.LastClosedPeriod()
	require.NoError(t, err)
	require.Zero(t, last.Revenue.Sign())

	f.pastBlackout()
	_, err = f.engine.Withdraw(alice)
	require.ErrorIs(t, err, revenue.ErrZeroRevenue)
}

func TestDepositsBeforeFirstCloseMintImmediately(t *testing.T) {
	f := newFixture(t, 1_000)
	for _, amount := range []int64{5, 7, 11} {
		before := f.supply()
		grant := f.deposit(alice, amount)
		require.Nil(t, grant)
		require.Equal(t, before+amount, f.supply())
	}
	grants, err := f.engine.Grants(alice)
	require.NoError(t, err)
	require.Empty(t, grants)
	require.Equal(t, int64(23), f.balance(alice))
}

func TestDepositAfterCloseCreatesGrant(t *testing.T) {
	f := newFixture(t, 1_000)
	f.rollover()

	grant := f.deposit(alice, 9)
	require.NotNil(t, grant)
	require.Equal(t, uint64(1)+revenue.GrantMaturityOffset, grant.MaturityPeriodID)
	require.Zero(t, f.supply())

	unexercised, err := f.engine.UnexercisedSupply()
	require.NoError(t, err)
	require.Equal(t, int64(9), unexercised.Int64())
	mine, err := f.engine.UnexercisedBalance(alice)
	require.NoError(t, err)
	require.Equal(t, int64(9), mine.Int64())
}

func TestSupplyCapCountsPendingGrants(t *testing.T) {
	f := newFixture(t, 100)
	f.deposit(alice, 60)

	_, err := f.engine.Deposit(bob, big.NewInt(50))
	require.ErrorIs(t, err, revenue.ErrSupplyCapExceeded)
	require.Equal(t, int64(60), f.supply())

	f.rollover()
	f.deposit(bob, 40)
	_, err = f.engine.Deposit(bob, big.NewInt(1))
	require.ErrorIs(t, err, revenue.ErrSupplyCapExceeded)
}

func TestSetSupplyCapIsOwnerOnly(t *testing.T) {
	f := newFixture(t, 100)
	require.ErrorIs(t, f.engine.SetSupplyCap(alice, big.NewInt(1)), revenue.ErrUnauthorized)

	require.NoError(t, f.engine.SetSupplyCap(owner, big.NewInt(250)))
	limit, err := f.engine.SupplyCap()
	require.NoError(t, err)
	require.Equal(t, int64(250), limit.Int64())

	types := f.eventTypes()
	require.Equal(t, revenue.EventTypeSupplyCapUpdate, types[len(types)-1])
}

func TestGrantLifecycle(t *testing.T) {
	f := newFixture(t, 1_000)
	f.deposit(alice, 2)
	require.Equal(t, int64(2), f.balance(alice))

	f.rollover()
	grant := f.deposit(alice, 2)
	require.Equal(t, uint64(3), grant.MaturityPeriodID)

	f.rollover()
	_, err := f.engine.Redeem(alice)
	require.ErrorIs(t, err, revenue.ErrNothingExercisable)

	next := f.rollover()
	require.Equal(t, uint64(3), next.ID)

	minted, err := f.engine.Redeem(alice)
	require.NoError(t, err)
	require.Equal(t, int64(2), minted.Int64())
	require.Equal(t, int64(4), f.balance(alice))

	unexercised, err := f.engine.UnexercisedSupply()
	require.NoError(t, err)
	require.Zero(t, unexercised.Sign())

	_, err = f.engine.Redeem(alice)
	require.ErrorIs(t, err, revenue.ErrNothingExercisable)
	_, err = f.engine.Redeem(bob)
	require.ErrorIs(t, err, revenue.ErrNoGrants)
}

func TestRedeemSweepsOnlyMaturedGrants(t *testing.T) {
	f := newFixture(t, 1_000)
	f.rollover()
	f.deposit(alice, 3) // matures at 3
	f.rollover()
	f.deposit(alice, 5) // matures at 4
	f.rollover()

	minted, err := f.engine.Redeem(alice)
	require.NoError(t, err)
	require.Equal(t, int64(3), minted.Int64())

	pending, err := f.engine.UnexercisedBalance(alice)
	require.NoError(t, err)
	require.Equal(t, int64(5), pending.Int64())

	f.rollover()
	minted, err = f.engine.Redeem(alice)
	require.NoError(t, err)
	require.Equal(t, int64(5), minted.Int64())
}

func TestWithdrawProportionalShares(t *testing.T) {
	f := newFixture(t, 1_000)
	f.deposit(alice, 60)
	f.deposit(bob, 40)
	f.receive(500)
	f.rollover()

	_, err := f.engine.Withdraw(alice)
	require.ErrorIs(t, err, revenue.ErrBlackoutPeriod)
	inBlackout, err := f.engine.InBlackout()
	require.NoError(t, err)
	require.True(t, inBlackout)

	f.pastBlackout()
	paidAlice, err := f.engine.Withdraw(alice)
	require.NoError(t, err)
	paidBob, err := f.engine.Withdraw(bob)
	require.NoError(t, err)
	require.Equal(t, int64(300), paidAlice.Int64())
	require.Equal(t, int64(200), paidBob.Int64())

	last, _, err := f.engine.LastClosedPeriod()
	require.NoError(t, err)
	total := new(big.Int).Add(paidAlice, paidBob)
	require.LessOrEqual(t, total.Cmp(last.Revenue), 0)

	_, err = f.engine.Withdraw(alice)
	require.ErrorIs(t, err, revenue.ErrZeroWithdrawalPower)

	value, err := f.vault.ValueOf(alice)
	require.NoError(t, err)
	require.Equal(t, int64(300), value.Int64())
}

func TestBlackoutBoundaryIsInclusive(t *testing.T) {
	f := newFixture(t, 1_000)
	f.deposit(alice, 10)
	f.receive(100)
	next := f.rollover()

	f.now = next.StartTime + testBlackout
	inBlackout, err := f.engine.InBlackout()
	require.NoError(t, err)
	require.True(t, inBlackout)
	_, err = f.engine.Withdraw(alice)
	require.ErrorIs(t, err, revenue.ErrBlackoutPeriod)

	f.now = next.StartTime + testBlackout + 1
	inBlackout, err = f.engine.InBlackout()
	require.NoError(t, err)
	require.False(t, inBlackout)
	paid, err := f.engine.Withdraw(alice)
	require.NoError(t, err)
	require.Equal(t, int64(100), paid.Int64())
}

func TestWithdrawBeforeAnyCloseHasNoRevenue(t *testing.T) {
	f := newFixture(t, 1_000)
	f.deposit(alice, 1)
	f.receive(10)
	f.now += testBlackout + 1
	_, err := f.engine.Withdraw(alice)
	require.ErrorIs(t, err, revenue.ErrZeroRevenue)

	power, err := f.engine.WithdrawalPower(alice)
	require.NoError(t, err)
	require.Zero(t, power.Sign())
}

func TestWithdrawalPowerNeverExceedsBalance(t *testing.T) {
	f := newFixture(t, 1_000)
	f.deposit(alice, 30)
	f.deposit(bob, 70)
	f.receive(1_000)
	f.rollover()
	f.pastBlackout()

	check := func() {
		for _, holder := range [][20]byte{alice, bob} {
			power, err := f.engine.WithdrawalPower(holder)
			require.NoError(t, err)
			require.LessOrEqual(t, power.Int64(), f.balance(holder))
		}
	}
	check()
	_, err := f.engine.Withdraw(alice)
	require.NoError(t, err)
	check()
	require.NoError(t, f.engine.Transfer(alice, bob, big.NewInt(10)))
	check()
	require.NoError(t, f.engine.Transfer(bob, alice, big.NewInt(50)))
	check()
}

func TestTransferCarriesReceipt(t *testing.T) {
	f := newFixture(t, 1_000)
	f.deposit(alice, 60)
	f.deposit(bob, 40)
	f.receive(500)
	f.rollover()
	f.pastBlackout()

	_, err := f.engine.Withdraw(alice)
	require.NoError(t, err)
	require.NoError(t, f.engine.Transfer(alice, bob, big.NewInt(60)))

	bobReceipt, err := f.engine.Receipt(0, bob)
	require.NoError(t, err)
	require.Equal(t, int64(60), bobReceipt.Int64())
	aliceReceipt, err := f.engine.Receipt(0, alice)
	require.NoError(t, err)
	require.Zero(t, aliceReceipt.Sign())

	paid, err := f.engine.Withdraw(bob)
	require.NoError(t, err)
	require.Equal(t, int64(200), paid.Int64(), "bob only withdraws against his own 40 units")

	_, err = f.engine.Withdraw(bob)
	require.ErrorIs(t, err, revenue.ErrZeroWithdrawalPower)
	held, err := f.engine.HeldValue()
	require.NoError(t, err)
	require.Zero(t, held.Sign())
}

func TestTransferCarryIsCappedAtSenderReceipt(t *testing.T) {
	f := newFixture(t, 1_000)
	f.deposit(alice, 50)
	f.receive(100)
	f.rollover()
	f.pastBlackout()

	_, err := f.engine.Withdraw(alice)
	require.NoError(t, err)
	require.NoError(t, f.engine.Transfer(alice, bob, big.NewInt(20)))
	require.NoError(t, f.engine.Transfer(alice, bob, big.NewInt(30)))

	receipt, err := f.engine.Receipt(0, bob)
	require.NoError(t, err)
	require.Equal(t, int64(50), receipt.Int64())

	require.ErrorIs(t, f.engine.Transfer(alice, bob, big.NewInt(1)), bank.ErrInsufficientBalance)
	receipt, err = f.engine.Receipt(0, bob)
	require.NoError(t, err)
	require.Equal(t, int64(50), receipt.Int64(), "failed transfer leaves receipts untouched")
}

func TestPayeeRejectionRevertsWithdraw(t *testing.T) {
	f := newFixture(t, 1_000)
	f.deposit(alice, 10)
	f.receive(100)
	f.rollover()
	f.pastBlackout()
	f.hooks[alice] = func(*big.Int) error { return bank.ErrPayeeRejected }
	before := len(f.events.Events())

	_, err := f.engine.Withdraw(alice)
	require.ErrorIs(t, err, revenue.ErrTransferReverted)

	receipt, err := f.engine.Receipt(0, alice)
	require.NoError(t, err)
	require.Zero(t, receipt.Sign())
	held, err := f.engine.HeldValue()
	require.NoError(t, err)
	require.Equal(t, int64(100), held.Int64())
	require.Len(t, f.events.Events(), before)
}

func TestReentrantWithdrawSeesSpentReceipt(t *testing.T) {
	f := newFixture(t, 1_000)
	f.deposit(alice, 10)
	f.deposit(bob, 10)
	f.receive(100)
	f.rollover()
	f.pastBlackout()

	var reentrant error
	calls := 0
	f.hooks[alice] = func(*big.Int) error {
		calls++
		if calls > 1 {
			return nil
		}
		_, reentrant = f.engine.Withdraw(alice)
		return nil
	}

	paid, err := f.engine.Withdraw(alice)
	require.NoError(t, err)
	require.Equal(t, int64(50), paid.Int64())
	require.ErrorIs(t, reentrant, revenue.ErrZeroWithdrawalPower)
	require.Equal(t, 1, calls)

	value, err := f.vault.ValueOf(alice)
	require.NoError(t, err)
	require.Equal(t, int64(50), value.Int64())
}

func TestFailedOperationsEmitNothing(t *testing.T) {
	f := newFixture(t, 10)
	before := len(f.events.Events())
	_, err := f.engine.Deposit(alice, big.NewInt(11))
	require.ErrorIs(t, err, revenue.ErrSupplyCapExceeded)
	_, err = f.engine.Deposit(alice, big.NewInt(0))
	require.ErrorIs(t, err, revenue.ErrInvalidAmount)
	require.Len(t, f.events.Events(), before)
}

func TestEventsDescribeOperations(t *testing.T) {
	f := newFixture(t, 1_000)
	f.deposit(alice, 4)
	f.receive(40)
	f.rollover()

	types := f.eventTypes()
	require.Contains(t, types, revenue.EventTypePeriodStarted)
	require.Contains(t, types, revenue.EventTypeDeposit)
	require.Contains(t, types, revenue.EventTypeValueReceived)
	require.Contains(t, types, events.TypeTokenSupply)

	last := f.events.Events()[f.events.Len()-1].Event()
	require.Equal(t, revenue.EventTypePeriodStarted, last.Type)
	require.Equal(t, "1", last.Attributes["id"])
	require.Equal(t, "40", last.Attributes["revenue"])
}
