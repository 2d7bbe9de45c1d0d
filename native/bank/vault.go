package bank

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"revchain/core/events"
)

// DefaultCustodyAddress is the account that holds revenue value when no
// custody address is configured.
var DefaultCustodyAddress = func() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("revchain/custody"))[12:])
	return addr
}()

// PayeeHook runs synchronously after a payout has been credited, the way a
// receiving contract would. Returning an error aborts the payout; returning
// ErrPayeeRejected signals a refusal without a reason.
type PayeeHook func(amount *big.Int) error

// HookRegistry resolves payee hooks by recipient.
type HookRegistry interface {
	PayeeHook(to [20]byte) PayeeHook
}

// Vault custodies revenue value in a single account.
type Vault struct {
	state   bankState
	emitter events.Emitter
	account [20]byte
	hooks   HookRegistry
}

// NewVault binds custody to a state backend. A zero account falls back to
// DefaultCustodyAddress.
func NewVault(state bankState, account [20]byte, emitter events.Emitter) *Vault {
	if isZeroAddress(account) {
		account = DefaultCustodyAddress
	}
	return &Vault{state: state, account: account, emitter: emitterOrNoop(emitter)}
}

// SetHooks installs the payee hook registry.
func (v *Vault) SetHooks(hooks HookRegistry) { v.hooks = hooks }

// Account returns the custody account address.
func (v *Vault) Account() [20]byte { return v.account }

// Receive credits amount to custody. Value arrives from outside the ledger, so
// the sender is recorded on the event only.
func (v *Vault) Receive(from [20]byte, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	held, err := v.state.BankBalance(AssetValue, v.account)
	if err != nil {
		return err
	}
	supply, err := v.state.BankSupply(AssetValue)
	if err != nil {
		return err
	}
	if err := v.state.BankPutBalance(AssetValue, v.account, new(big.Int).Add(held, amount)); err != nil {
		return err
	}
	if err := v.state.BankPutSupply(AssetValue, new(big.Int).Add(supply, amount)); err != nil {
		return err
	}
	v.emitter.Emit(events.Transfer{Asset: AssetValue, From: from, To: v.account, Amount: new(big.Int).Set(amount)})
	return nil
}

// Pay moves amount from custody to the recipient and then runs the
// recipient's hook, if any. A zero amount is a successful no-op transfer that
// still invokes the hook.
func (v *Vault) Pay(to [20]byte, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if isZeroAddress(to) {
		return ErrZeroAddress
	}
	if amount.Sign() > 0 {
		if err := move(v.state, AssetValue, v.account, to, amount); err != nil {
			return err
		}
		v.emitter.Emit(events.Transfer{Asset: AssetValue, From: v.account, To: to, Amount: new(big.Int).Set(amount)})
	}
	if v.hooks != nil {
		if hook := v.hooks.PayeeHook(to); hook != nil {
			return hook(new(big.Int).Set(amount))
		}
	}
	return nil
}

// Held returns the value currently in custody.
func (v *Vault) Held() (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	return v.state.BankBalance(AssetValue, v.account)
}

// ValueOf returns the value balance of an arbitrary account.
func (v *Vault) ValueOf(addr [20]byte) (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	return v.state.BankBalance(AssetValue, addr)
}
