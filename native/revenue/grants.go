package revenue

import "math/big"

// Deposit issues amount units to the depositor. Before the first period
// closes the units are minted immediately and the returned grant is nil.
// Afterwards the deposit is recorded as a grant maturing GrantMaturityOffset
// periods after the current one.
func (e *Engine) Deposit(depositor [20]byte, amount *big.Int) (*Grant, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	var issued *Grant
	err := e.atomic(func() error {
		current, err := e.currentPeriod()
		if err != nil {
			return err
		}
		if err := e.checkSupplyCap(amount); err != nil {
			return err
		}
		last, err := e.lastClosed()
		if err != nil {
			return err
		}
		if last == nil {
			if err := e.units.Mint(depositor, amount); err != nil {
				return err
			}
			e.emit(DepositEvent{Holder: depositor, Amount: newBigInt(amount)})
			return nil
		}
		grants, err := e.state.RevenueGrants(depositor)
		if err != nil {
			return err
		}
		grant := Grant{
			Owner:            depositor,
			MaturityPeriodID: current.ID + GrantMaturityOffset,
			Amount:           new(big.Int).Set(amount),
		}
		grants = append(grants, grant)
		if err := e.state.RevenuePutGrants(depositor, grants); err != nil {
			return err
		}
		unexercised, err := e.state.RevenueUnexercisedSupply()
		if err != nil {
			return err
		}
		if err := e.state.RevenuePutUnexercisedSupply(new(big.Int).Add(unexercised, amount)); err != nil {
			return err
		}
		issued = &grant
		e.emit(DepositEvent{Holder: depositor, Amount: newBigInt(amount), Vested: true})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if issued == nil {
		return nil, nil
	}
	clone := cloneGrants([]Grant{*issued})[0]
	return &clone, nil
}

func (e *Engine) checkSupplyCap(amount *big.Int) error {
	supply, err := e.units.TotalSupply()
	if err != nil {
		return err
	}
	unexercised, err := e.state.RevenueUnexercisedSupply()
	if err != nil {
		return err
	}
	limit, err := e.state.RevenueSupplyCap()
	if err != nil {
		return err
	}
	projected := new(big.Int).Add(supply, unexercised)
	projected.Add(projected, amount)
	if projected.Cmp(limit) > 0 {
		return ErrSupplyCapExceeded
	}
	return nil
}

// Redeem exercises every matured, unexercised grant of holder in one sweep
// and mints the total to the holder. It returns the minted amount.
func (e *Engine) Redeem(holder [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	exercised := big.NewInt(0)
	err := e.atomic(func() error {
		current, err := e.currentPeriod()
		if err != nil {
			return err
		}
		grants, err := e.state.RevenueGrants(holder)
		if err != nil {
			return err
		}
		if len(grants) == 0 {
			return ErrNoGrants
		}
		for i := range grants {
			if grants[i].Exercised || grants[i].MaturityPeriodID > current.ID {
				continue
			}
			grants[i].Exercised = true
			exercised.Add(exercised, grants[i].Amount)
		}
		if exercised.Sign() == 0 {
			return ErrNothingExercisable
		}
		if err := e.state.RevenuePutGrants(holder, grants); err != nil {
			return err
		}
		unexercised, err := e.state.RevenueUnexercisedSupply()
		if err != nil {
			return err
		}
		remaining := new(big.Int).Sub(unexercised, exercised)
		if remaining.Sign() < 0 {
			remaining.SetInt64(0)
		}
		if err := e.state.RevenuePutUnexercisedSupply(remaining); err != nil {
			return err
		}
		if err := e.units.Mint(holder, exercised); err != nil {
			return err
		}
		e.emit(RedeemEvent{Holder: holder, Amount: newBigInt(exercised)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exercised, nil
}

// Grants returns every grant recorded for holder, exercised ones included.
func (e *Engine) Grants(holder [20]byte) ([]Grant, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	grants, err := e.state.RevenueGrants(holder)
	if err != nil {
		return nil, err
	}
	return cloneGrants(grants), nil
}

// UnexercisedBalance sums the holder's grants that have not been exercised,
// matured or not.
func (e *Engine) UnexercisedBalance(holder [20]byte) (*big.Int, error) {
	grants, err := e.Grants(holder)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, g := range grants {
		if !g.Exercised && g.Amount != nil {
			total.Add(total, g.Amount)
		}
	}
	return total, nil
}

// UnexercisedSupply returns the aggregate of all unexercised grants.
func (e *Engine) UnexercisedSupply() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.RevenueUnexercisedSupply()
}
