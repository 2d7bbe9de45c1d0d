package genesis

import (
	"errors"
	"fmt"

	"revchain/native/revenue"
)

// Apply opens period 0, installs the supply cap and mints the bootstrap
// allocations. Applying to an engine that already has a current period is a
// no-op, so a restarted node never re-mints.
func (s *GenesisSpec) Apply(engine *revenue.Engine, now uint64) error {
	if s == nil || engine == nil {
		return fmt.Errorf("genesis: spec and engine required")
	}
	if _, err := engine.CurrentPeriod(); err == nil {
		return nil
	} else if !errors.Is(err, revenue.ErrNotInitialised) {
		return err
	}
	start := now
	if !s.genesisTimestamp.IsZero() {
		start = uint64(s.genesisTimestamp.Unix())
	}
	if _, err := engine.InitAt(start); err != nil {
		return fmt.Errorf("genesis: open period 0: %w", err)
	}
	if err := engine.SetSupplyCap(s.params.Owner, s.supplyCap); err != nil {
		return fmt.Errorf("genesis: supply cap: %w", err)
	}
	for _, alloc := range s.allocations {
		if _, err := engine.Deposit(alloc.Holder, alloc.Amount); err != nil {
			return fmt.Errorf("genesis: allocate %x: %w", alloc.Holder, err)
		}
	}
	return nil
}
