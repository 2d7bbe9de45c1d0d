package revenue

import (
	"math/big"
	"strconv"

	"revchain/core/types"
	"revchain/crypto"
)

const (
	EventTypeDeposit         = "revenue.deposit"
	EventTypeRedeem          = "revenue.redeem"
	EventTypeWithdraw        = "revenue.withdraw"
	EventTypePeriodStarted   = "revenue.period.started"
	EventTypeValueReceived   = "revenue.value.received"
	EventTypeSupplyCapUpdate = "revenue.supply_cap.updated"
)

func hexAddr(addr [20]byte) string {
	return crypto.FromIdentity(addr).String()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// DepositEvent is emitted for every accepted deposit. Vested is false when the
// deposit became a grant instead of an immediate mint.
type DepositEvent struct {
	Holder [20]byte
	Amount *big.Int
	Vested bool
}

func (DepositEvent) EventType() string { return EventTypeDeposit }

func (e DepositEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeDeposit,
		Attributes: map[string]string{
			"holder": hexAddr(e.Holder),
			"amount": amountString(e.Amount),
			"vested": strconv.FormatBool(e.Vested),
		},
	}
}

// RedeemEvent captures the units minted by a grant sweep.
type RedeemEvent struct {
	Holder [20]byte
	Amount *big.Int
}

func (RedeemEvent) EventType() string { return EventTypeRedeem }

func (e RedeemEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeRedeem,
		Attributes: map[string]string{
			"holder": hexAddr(e.Holder),
			"amount": amountString(e.Amount),
		},
	}
}

// WithdrawEvent captures a revenue payout against a closed period.
type WithdrawEvent struct {
	Holder   [20]byte
	Amount   *big.Int
	PeriodID uint64
}

func (WithdrawEvent) EventType() string { return EventTypeWithdraw }

func (e WithdrawEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeWithdraw,
		Attributes: map[string]string{
			"holder":   hexAddr(e.Holder),
			"amount":   amountString(e.Amount),
			"periodId": strconv.FormatUint(e.PeriodID, 10),
		},
	}
}

// PeriodStartedEvent is emitted at genesis and after every rollover.
type PeriodStartedEvent struct {
	ID      uint64
	EndTime uint64
	Revenue *big.Int
}

func (PeriodStartedEvent) EventType() string { return EventTypePeriodStarted }

func (e PeriodStartedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypePeriodStarted,
		Attributes: map[string]string{
			"id":      strconv.FormatUint(e.ID, 10),
			"endTime": strconv.FormatUint(e.EndTime, 10),
			"revenue": amountString(e.Revenue),
		},
	}
}

// ValueReceivedEvent records incoming revenue.
type ValueReceivedEvent struct {
	Sender [20]byte
	Amount *big.Int
}

func (ValueReceivedEvent) EventType() string { return EventTypeValueReceived }

func (e ValueReceivedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeValueReceived,
		Attributes: map[string]string{
			"sender": hexAddr(e.Sender),
			"amount": amountString(e.Amount),
		},
	}
}

// SupplyCapUpdatedEvent records an owner cap change.
type SupplyCapUpdatedEvent struct {
	Previous *big.Int
	Cap      *big.Int
}

func (SupplyCapUpdatedEvent) EventType() string { return EventTypeSupplyCapUpdate }

func (e SupplyCapUpdatedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeSupplyCapUpdate,
		Attributes: map[string]string{
			"previous": amountString(e.Previous),
			"cap":      amountString(e.Cap),
		},
	}
}
