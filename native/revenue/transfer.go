package revenue

import "math/big"

// Transfer moves units between holders. The sender's withdrawal receipt for
// the last closed period moves with the units, capped at both the transfer
// amount and the sender's outstanding receipt, so transferred units cannot be
// withdrawn against twice.
func (e *Engine) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	return e.atomic(func() error {
		last, err := e.lastClosed()
		if err != nil {
			return err
		}
		if last != nil && from != to {
			if err := e.carryReceipt(last.ID, from, to, amount); err != nil {
				return err
			}
		}
		return e.units.Transfer(from, to, amount)
	})
}

func (e *Engine) carryReceipt(periodID uint64, from, to [20]byte, amount *big.Int) error {
	senderReceipt, err := e.state.RevenueReceipt(periodID, from)
	if err != nil {
		return err
	}
	carried := minBig(amount, senderReceipt)
	if carried.Sign() == 0 {
		return nil
	}
	receiverReceipt, err := e.state.RevenueReceipt(periodID, to)
	if err != nil {
		return err
	}
	if err := e.state.RevenuePutReceipt(periodID, from, new(big.Int).Sub(senderReceipt, carried)); err != nil {
		return err
	}
	return e.state.RevenuePutReceipt(periodID, to, new(big.Int).Add(receiverReceipt, carried))
}
