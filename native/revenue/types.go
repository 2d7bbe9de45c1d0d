package revenue

import "math/big"

// Period is the currently accruing accounting window.
type Period struct {
	ID        uint64   `json:"id"`
	StartTime uint64   `json:"startTime"`
	EndTime   uint64   `json:"endTime"`
	Revenue   *big.Int `json:"revenue"`
}

// Clone returns a deep copy of the period.
func (p *Period) Clone() *Period {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Revenue = newBigInt(p.Revenue)
	return &clone
}

// ClosedPeriod is the immutable snapshot every payout is computed against.
// Date is the close timestamp and doubles as the value delegated requests sign.
type ClosedPeriod struct {
	ID      uint64   `json:"id"`
	Date    uint64   `json:"date"`
	Revenue *big.Int `json:"revenue"`
}

// Clone returns a deep copy of the closed period.
func (p *ClosedPeriod) Clone() *ClosedPeriod {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Revenue = newBigInt(p.Revenue)
	return &clone
}

// Grant is a deferred issuance of units maturing at MaturityPeriodID.
type Grant struct {
	Owner            [20]byte `json:"owner"`
	MaturityPeriodID uint64   `json:"maturityPeriodId"`
	Amount           *big.Int `json:"amount"`
	Exercised        bool     `json:"exercised"`
}

func cloneGrants(grants []Grant) []Grant {
	if grants == nil {
		return nil
	}
	out := make([]Grant, len(grants))
	for i, g := range grants {
		out[i] = g
		out[i].Amount = newBigInt(g.Amount)
	}
	return out
}

// BulkResult reports the outcome of a single delegated entry in a bulk call.
type BulkResult struct {
	Index  int      `json:"index"`
	Holder [20]byte `json:"holder"`
	Amount *big.Int `json:"amount,omitempty"`
	Err    error    `json:"-"`
}

// OK reports whether the entry succeeded.
func (r BulkResult) OK() bool { return r.Err == nil }

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}
