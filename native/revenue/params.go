package revenue

import "fmt"

const (
	// DefaultPeriodDuration is the length of one accounting window in seconds (30 days).
	DefaultPeriodDuration uint64 = 30 * 24 * 60 * 60
	// DefaultBlackoutDuration is the withdrawal blackout at the start of each period (1 day).
	DefaultBlackoutDuration uint64 = 24 * 60 * 60
	// GrantMaturityOffset is how many rollovers a post-bootstrap deposit waits
	// before its units become redeemable.
	GrantMaturityOffset uint64 = 2
)

// Params controls the period clock and the owner gate.
type Params struct {
	PeriodDuration   uint64
	BlackoutDuration uint64
	Owner            [20]byte
}

// DefaultParams returns the production period lengths. Owner is left unset.
func DefaultParams() Params {
	return Params{
		PeriodDuration:   DefaultPeriodDuration,
		BlackoutDuration: DefaultBlackoutDuration,
	}
}

// Validate ensures the supplied parameters are internally consistent.
func (p Params) Validate() error {
	if p.PeriodDuration == 0 {
		return fmt.Errorf("period duration must be positive")
	}
	if p.BlackoutDuration >= p.PeriodDuration {
		return fmt.Errorf("blackout duration %d must be shorter than period duration %d", p.BlackoutDuration, p.PeriodDuration)
	}
	if isZeroAddress(p.Owner) {
		return fmt.Errorf("owner address required")
	}
	return nil
}
