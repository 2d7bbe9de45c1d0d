package bank

import (
	"math/big"

	"revchain/core/events"
)

// Ledger is the fungible ownership-unit store: balances plus a total supply
// that always equals their sum.
type Ledger struct {
	state   bankState
	emitter events.Emitter
}

// NewLedger binds a unit ledger to a state backend.
func NewLedger(state bankState, emitter events.Emitter) *Ledger {
	return &Ledger{state: state, emitter: emitterOrNoop(emitter)}
}

// Mint creates amount units for the recipient and grows the total supply.
func (l *Ledger) Mint(to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if isZeroAddress(to) {
		return ErrZeroAddress
	}
	bal, err := l.state.BankBalance(AssetUnits, to)
	if err != nil {
		return err
	}
	supply, err := l.state.BankSupply(AssetUnits)
	if err != nil {
		return err
	}
	total := new(big.Int).Add(supply, amount)
	if err := l.state.BankPutBalance(AssetUnits, to, new(big.Int).Add(bal, amount)); err != nil {
		return err
	}
	if err := l.state.BankPutSupply(AssetUnits, total); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{Token: AssetUnits, Total: total, Delta: new(big.Int).Set(amount), Reason: events.SupplyReasonMint})
	return nil
}

// Burn destroys amount units held by from.
func (l *Ledger) Burn(from [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	bal, err := l.state.BankBalance(AssetUnits, from)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := l.state.BankSupply(AssetUnits)
	if err != nil {
		return err
	}
	total := new(big.Int).Sub(supply, amount)
	if err := l.state.BankPutBalance(AssetUnits, from, new(big.Int).Sub(bal, amount)); err != nil {
		return err
	}
	if err := l.state.BankPutSupply(AssetUnits, total); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{Token: AssetUnits, Total: total, Delta: new(big.Int).Neg(amount), Reason: events.SupplyReasonBurn})
	return nil
}

// Transfer moves units between holders without touching the supply.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if isZeroAddress(to) {
		return ErrZeroAddress
	}
	if err := move(l.state, AssetUnits, from, to, amount); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{Asset: AssetUnits, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// BalanceOf returns the units held by holder.
func (l *Ledger) BalanceOf(holder [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.BankBalance(AssetUnits, holder)
}

// TotalSupply returns the units in circulation.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.BankSupply(AssetUnits)
}
