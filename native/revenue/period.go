package revenue

import "math/big"

// Init opens period 0 at the engine's current time when the ledger has no
// current period yet. It is a no-op on an initialised ledger.
func (e *Engine) Init() (*Period, error) {
	return e.InitAt(e.now())
}

// InitAt is Init with an explicit genesis timestamp.
func (e *Engine) InitAt(start uint64) (*Period, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var opened *Period
	err := e.atomic(func() error {
		current, ok, err := e.state.RevenueCurrentPeriod()
		if err != nil {
			return err
		}
		if ok && current != nil {
			opened = current
			return nil
		}
		opened = &Period{
			ID:        0,
			StartTime: start,
			EndTime:   start + e.params.PeriodDuration,
			Revenue:   big.NewInt(0),
		}
		if err := e.state.RevenuePutCurrentPeriod(opened); err != nil {
			return err
		}
		e.emit(PeriodStartedEvent{ID: opened.ID, EndTime: opened.EndTime, Revenue: newBigInt(opened.Revenue)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opened.Clone(), nil
}

func (e *Engine) currentPeriod() (*Period, error) {
	current, ok, err := e.state.RevenueCurrentPeriod()
	if err != nil {
		return nil, err
	}
	if !ok || current == nil {
		return nil, ErrNotInitialised
	}
	if current.Revenue == nil {
		current.Revenue = big.NewInt(0)
	}
	return current, nil
}

// lastClosed returns the last closed period, or nil before the first rollover.
func (e *Engine) lastClosed() (*ClosedPeriod, error) {
	last, ok, err := e.state.RevenueLastClosedPeriod()
	if err != nil {
		return nil, err
	}
	if !ok || last == nil {
		return nil, nil
	}
	if last.Revenue == nil {
		last.Revenue = big.NewInt(0)
	}
	return last, nil
}

// CurrentPeriod returns the accruing period.
func (e *Engine) CurrentPeriod() (*Period, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	current, err := e.currentPeriod()
	if err != nil {
		return nil, err
	}
	return current.Clone(), nil
}

// LastClosedPeriod returns the most recently closed period. ok is false until
// the first rollover.
func (e *Engine) LastClosedPeriod() (*ClosedPeriod, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	last, err := e.lastClosed()
	if err != nil || last == nil {
		return nil, false, err
	}
	return last.Clone(), true, nil
}

// Advance closes the current period once its end time has passed and opens
// the next one. The closed revenue is capped at the value actually held in
// custody, and the capped amount carries forward as the new period's opening
// revenue.
func (e *Engine) Advance() (*Period, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var next *Period
	err := e.atomic(func() error {
		current, err := e.currentPeriod()
		if err != nil {
			return err
		}
		now := e.now()
		if now < current.EndTime {
			return ErrPeriodInProgress
		}
		held, err := e.custody.Held()
		if err != nil {
			return err
		}
		effective := new(big.Int).Set(current.Revenue)
		if held.Cmp(effective) < 0 {
			effective.Set(held)
		}
		closed := &ClosedPeriod{ID: current.ID, Date: now, Revenue: effective}
		if err := e.state.RevenuePutLastClosedPeriod(closed); err != nil {
			return err
		}
		next = &Period{
			ID:        current.ID + 1,
			StartTime: now,
			EndTime:   now + e.params.PeriodDuration,
			Revenue:   new(big.Int).Set(effective),
		}
		if err := e.state.RevenuePutCurrentPeriod(next); err != nil {
			return err
		}
		e.emit(PeriodStartedEvent{ID: next.ID, EndTime: next.EndTime, Revenue: newBigInt(next.Revenue)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// ReceiveValue takes amount into custody and accrues it to the current period.
func (e *Engine) ReceiveValue(sender [20]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	return e.atomic(func() error {
		current, err := e.currentPeriod()
		if err != nil {
			return err
		}
		if err := e.custody.Receive(sender, amount); err != nil {
			return err
		}
		current.Revenue = new(big.Int).Add(current.Revenue, amount)
		if err := e.state.RevenuePutCurrentPeriod(current); err != nil {
			return err
		}
		e.emit(ValueReceivedEvent{Sender: sender, Amount: newBigInt(amount)})
		return nil
	})
}

// InBlackout reports whether withdrawals are disabled at the engine's current
// time.
func (e *Engine) InBlackout() (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	current, err := e.currentPeriod()
	if err != nil {
		return false, err
	}
	return e.inBlackout(current, e.now()), nil
}

func (e *Engine) inBlackout(current *Period, now uint64) bool {
	if now < current.StartTime {
		return true
	}
	return now-current.StartTime <= e.params.BlackoutDuration
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.BitLen() > 256 {
		return ErrAmountOverflow
	}
	return nil
}
