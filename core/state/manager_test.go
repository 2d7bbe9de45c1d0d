package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"revchain/native/bank"
	"revchain/native/revenue"
	"revchain/storage"
)

func TestManagerCommitPersists(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)

	holder := [20]byte{0x01}
	require.NoError(t, m.BankPutBalance(bank.AssetUnits, holder, big.NewInt(42)))
	require.NoError(t, m.BankPutSupply(bank.AssetUnits, big.NewInt(42)))
	require.Equal(t, 2, m.Pending())

	fresh := NewManager(db)
	bal, err := fresh.BankBalance(bank.AssetUnits, holder)
	require.NoError(t, err)
	require.Zero(t, bal.Sign(), "uncommitted writes must not reach the database")

	require.NoError(t, m.Commit())
	require.Zero(t, m.Pending())

	fresh = NewManager(db)
	bal, err = fresh.BankBalance(bank.AssetUnits, holder)
	require.NoError(t, err)
	require.Equal(t, int64(42), bal.Int64())
}

func TestManagerRevertToSnapshot(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	holder := [20]byte{0x02}

	require.NoError(t, m.RevenuePutReceipt(3, holder, big.NewInt(10)))
	snap := m.Snapshot()
	require.NoError(t, m.RevenuePutReceipt(3, holder, big.NewInt(25)))
	require.NoError(t, m.RevenuePutUnexercisedSupply(big.NewInt(7)))

	m.RevertToSnapshot(snap)

	receipt, err := m.RevenueReceipt(3, holder)
	require.NoError(t, err)
	require.Equal(t, int64(10), receipt.Int64())
	unexercised, err := m.RevenueUnexercisedSupply()
	require.NoError(t, err)
	require.Zero(t, unexercised.Sign())

	m.RevertToSnapshot(0)
	require.Zero(t, m.Pending())
}

func TestManagerDiscard(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	require.NoError(t, m.RevenuePutSupplyCap(big.NewInt(1000)))
	m.Discard()
	require.NoError(t, m.Commit())

	limit, err := NewManager(db).RevenueSupplyCap()
	require.NoError(t, err)
	require.Zero(t, limit.Sign())
}

func TestManagerZeroAmountDeletes(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	holder := [20]byte{0x03}
	require.NoError(t, m.BankPutBalance(bank.AssetValue, holder, big.NewInt(5)))
	require.NoError(t, m.Commit())

	require.NoError(t, m.BankPutBalance(bank.AssetValue, holder, big.NewInt(0)))
	require.NoError(t, m.Commit())

	_, err := db.Get(bankBalanceKey(bank.AssetValue, holder))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestManagerRejectsNegativeAmounts(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	require.Error(t, m.BankPutSupply(bank.AssetUnits, big.NewInt(-1)))
}

func TestRevenuePeriodsRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)

	_, ok, err := m.RevenueCurrentPeriod()
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = m.RevenueLastClosedPeriod()
	require.NoError(t, err)
	require.False(t, ok)

	current := &revenue.Period{ID: 4, StartTime: 100, EndTime: 200, Revenue: big.NewInt(900)}
	closed := &revenue.ClosedPeriod{ID: 3, Date: 100, Revenue: big.NewInt(900)}
	require.NoError(t, m.RevenuePutCurrentPeriod(current))
	require.NoError(t, m.RevenuePutLastClosedPeriod(closed))
	require.NoError(t, m.Commit())

	reader := NewManager(db)
	gotCurrent, ok, err := reader.RevenueCurrentPeriod()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, current.ID, gotCurrent.ID)
	require.Equal(t, current.EndTime, gotCurrent.EndTime)
	require.Zero(t, current.Revenue.Cmp(gotCurrent.Revenue))

	gotClosed, ok, err := reader.RevenueLastClosedPeriod()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, closed.Date, gotClosed.Date)
	require.Zero(t, closed.Revenue.Cmp(gotClosed.Revenue))
}

func TestRevenueGrantsKeepOrder(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	holder := [20]byte{0x04}

	grants := []revenue.Grant{
		{Owner: holder, MaturityPeriodID: 3, Amount: big.NewInt(10)},
		{Owner: holder, MaturityPeriodID: 5, Amount: big.NewInt(20), Exercised: true},
	}
	require.NoError(t, m.RevenuePutGrants(holder, grants))

	got, err := m.RevenueGrants(holder)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint64(3), got[0].MaturityPeriodID)
	require.True(t, got[1].Exercised)
	require.Equal(t, int64(20), got[1].Amount.Int64())

	other, err := m.RevenueGrants([20]byte{0x05})
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestReceiptsAreScopedByPeriod(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	holder := [20]byte{0x06}
	require.NoError(t, m.RevenuePutReceipt(1, holder, big.NewInt(50)))

	next, err := m.RevenueReceipt(2, holder)
	require.NoError(t, err)
	require.Zero(t, next.Sign())
}

func TestBankKeysNormaliseAsset(t *testing.T) {
	addr := [20]byte{0x07}
	require.Equal(t, bankBalanceKey("units", addr), bankBalanceKey(" UNITS ", addr))
	require.NotEqual(t, bankSupplyKey(bank.AssetUnits), bankSupplyKey(bank.AssetValue))
}
