package revenue

import (
	"math/big"

	"github.com/holiman/uint256"
)

// shareOf computes power*revenue/supply truncating toward zero with 256-bit
// operands and a 512-bit intermediate product.
func shareOf(power, revenue, supply *big.Int) (*big.Int, error) {
	p, overflow := uint256.FromBig(power)
	if overflow {
		return nil, ErrAmountOverflow
	}
	r, overflow := uint256.FromBig(revenue)
	if overflow {
		return nil, ErrAmountOverflow
	}
	s, overflow := uint256.FromBig(supply)
	if overflow {
		return nil, ErrAmountOverflow
	}
	if s.IsZero() {
		return big.NewInt(0), nil
	}
	share, overflow := new(uint256.Int).MulDivOverflow(p, r, s)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return share.ToBig(), nil
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// ParseAmount parses a base-10 amount bounded to 256 bits.
func ParseAmount(raw string) (*big.Int, error) {
	value, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}
