package state

import "math/big"

// BankBalance returns the balance of addr in asset. Missing balances read as
// zero.
func (m *Manager) BankBalance(asset string, addr [20]byte) (*big.Int, error) {
	return m.loadBig(bankBalanceKey(asset, addr))
}

func (m *Manager) BankPutBalance(asset string, addr [20]byte, amount *big.Int) error {
	return m.storeBig(bankBalanceKey(asset, addr), amount)
}

// BankSupply returns the total issued amount of asset.
func (m *Manager) BankSupply(asset string) (*big.Int, error) {
	return m.loadBig(bankSupplyKey(asset))
}

func (m *Manager) BankPutSupply(asset string, amount *big.Int) error {
	return m.storeBig(bankSupplyKey(asset), amount)
}
