package state

import (
	"fmt"
	"math/big"

	"revchain/native/revenue"
)

// RevenueCurrentPeriod loads the accruing period. ok is false on a fresh ledger.
func (m *Manager) RevenueCurrentPeriod() (*revenue.Period, bool, error) {
	period := new(revenue.Period)
	ok, err := m.load(kvKey(revenueCurrentPeriodKey), period)
	if err != nil || !ok {
		return nil, false, err
	}
	return period, true, nil
}

func (m *Manager) RevenuePutCurrentPeriod(period *revenue.Period) error {
	if period == nil {
		return fmt.Errorf("state: nil period")
	}
	return m.store(kvKey(revenueCurrentPeriodKey), period)
}

// RevenueLastClosedPeriod loads the most recently closed period.
func (m *Manager) RevenueLastClosedPeriod() (*revenue.ClosedPeriod, bool, error) {
	period := new(revenue.ClosedPeriod)
	ok, err := m.load(kvKey(revenueLastClosedKey), period)
	if err != nil || !ok {
		return nil, false, err
	}
	return period, true, nil
}

func (m *Manager) RevenuePutLastClosedPeriod(period *revenue.ClosedPeriod) error {
	if period == nil {
		return fmt.Errorf("state: nil closed period")
	}
	return m.store(kvKey(revenueLastClosedKey), period)
}

// RevenueGrants returns the holder's grant list in issue order.
func (m *Manager) RevenueGrants(holder [20]byte) ([]revenue.Grant, error) {
	var grants []revenue.Grant
	ok, err := m.load(revenueGrantsKey(holder), &grants)
	if err != nil || !ok {
		return nil, err
	}
	return grants, nil
}

func (m *Manager) RevenuePutGrants(holder [20]byte, grants []revenue.Grant) error {
	if len(grants) == 0 {
		m.del(revenueGrantsKey(holder))
		return nil
	}
	return m.store(revenueGrantsKey(holder), grants)
}

// RevenueReceipt returns how much of holder's balance has been paid out
// against periodID. Missing receipts read as zero.
func (m *Manager) RevenueReceipt(periodID uint64, holder [20]byte) (*big.Int, error) {
	return m.loadBig(revenueReceiptKey(periodID, holder))
}

func (m *Manager) RevenuePutReceipt(periodID uint64, holder [20]byte, amount *big.Int) error {
	return m.storeBig(revenueReceiptKey(periodID, holder), amount)
}

func (m *Manager) RevenueUnexercisedSupply() (*big.Int, error) {
	return m.loadBig(kvKey(revenueUnexercisedKey))
}

func (m *Manager) RevenuePutUnexercisedSupply(amount *big.Int) error {
	return m.storeBig(kvKey(revenueUnexercisedKey), amount)
}

// RevenueSupplyCap returns the unit supply ceiling. An unset cap reads as zero,
// which rejects every deposit until the owner configures one.
func (m *Manager) RevenueSupplyCap() (*big.Int, error) {
	return m.loadBig(kvKey(revenueSupplyCapKey))
}

func (m *Manager) RevenuePutSupplyCap(amount *big.Int) error {
	return m.storeBig(kvKey(revenueSupplyCapKey), amount)
}
