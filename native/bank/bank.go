package bank

import (
	"errors"
	"math/big"

	"revchain/core/events"
)

const (
	// AssetUnits is the ownership unit minted by deposits and redeems.
	AssetUnits = "UNITS"
	// AssetValue is the revenue currency held in custody and paid to holders.
	AssetValue = "VALUE"
)

var (
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrZeroAddress         = errors.New("bank: zero address")
	// ErrPayeeRejected is returned when a payee refuses a payout without giving
	// a reason.
	ErrPayeeRejected = errors.New("bank: payee rejected transfer")
	errNilState      = errors.New("bank: state not configured")
)

type bankState interface {
	BankBalance(asset string, addr [20]byte) (*big.Int, error)
	BankPutBalance(asset string, addr [20]byte, amount *big.Int) error
	BankSupply(asset string) (*big.Int, error)
	BankPutSupply(asset string, amount *big.Int) error
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}

func emitterOrNoop(emitter events.Emitter) events.Emitter {
	if emitter == nil {
		return events.NoopEmitter{}
	}
	return emitter
}

func move(state bankState, asset string, from, to [20]byte, amount *big.Int) error {
	fromBal, err := state.BankBalance(asset, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBal, err := state.BankBalance(asset, to)
	if err != nil {
		return err
	}
	if err := state.BankPutBalance(asset, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return state.BankPutBalance(asset, to, new(big.Int).Add(toBal, amount))
}
