package revenue

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShareOfTruncates(t *testing.T) {
	share, err := shareOf(big.NewInt(1), big.NewInt(10), big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, int64(3), share.Int64())

	share, err = shareOf(big.NewInt(5), big.NewInt(10), big.NewInt(0))
	require.NoError(t, err)
	require.Zero(t, share.Sign())
}

func TestShareOfWideIntermediate(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	share, err := shareOf(max, max, max)
	require.NoError(t, err)
	require.Zero(t, share.Cmp(max))

	_, err = shareOf(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1), big.NewInt(1))
	require.ErrorIs(t, err, ErrAmountOverflow)
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("1000000000000000000000")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000000", v.String())

	_, err = ParseAmount("-1")
	require.Error(t, err)
	_, err = ParseAmount("abc")
	require.Error(t, err)
}
