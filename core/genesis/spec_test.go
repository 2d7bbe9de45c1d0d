package genesis

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"revchain/core/state"
	"revchain/crypto"
	"revchain/native/bank"
	"revchain/native/revenue"
	"revchain/storage"
)

var (
	ownerID = [20]byte{0x0e}
	aliceID = [20]byte{0xa1}
	bobID   = [20]byte{0xb0}
)

func specYAML() string {
	return `
genesisTime: "2026-01-01T00:00:00Z"
owner: ` + crypto.FromIdentity(ownerID).String() + `
supplyCap: "1000"
periodDuration: 720h
blackoutDuration: 24h
domain:
  name: revchain
  chainId: 7
alloc:
  ` + crypto.FromIdentity(bobID).String() + `: "40"
  ` + crypto.FromIdentity(aliceID).String() + `: "60"
`
}

func TestParseGenesisSpec(t *testing.T) {
	spec, err := ParseGenesisSpec([]byte(specYAML()))
	require.NoError(t, err)

	params := spec.Params()
	require.Equal(t, ownerID, params.Owner)
	require.Equal(t, uint64(30*24*3600), params.PeriodDuration)
	require.Equal(t, uint64(24*3600), params.BlackoutDuration)
	require.Equal(t, int64(1000), spec.SupplyCapValue().Int64())
	require.Equal(t, "revchain", spec.SigningDomain().Name)
	require.Equal(t, int64(7), spec.SigningDomain().ChainID.Int64())
	require.Equal(t, int64(1767225600), spec.GenesisTimestamp().Unix())

	allocs := spec.Allocations()
	require.Len(t, allocs, 2)
	require.Equal(t, aliceID, allocs[0].Holder)
	require.Equal(t, int64(60), allocs[0].Amount.Int64())
}

func TestParseGenesisSpecRejectsInvalidDocuments(t *testing.T) {
	owner := crypto.FromIdentity(ownerID).String()
	cases := map[string]string{
		"unknown field":     "owner: " + owner + "\nsupplyCap: \"1\"\ndomain: {name: x}\nbogus: 1\n",
		"missing owner":     "supplyCap: \"1\"\ndomain: {name: x}\n",
		"missing domain":    "owner: " + owner + "\nsupplyCap: \"1\"\n",
		"bad cap":           "owner: " + owner + "\nsupplyCap: \"-5\"\ndomain: {name: x}\n",
		"blackout too long": "owner: " + owner + "\nsupplyCap: \"1\"\nperiodDuration: 1h\nblackoutDuration: 2h\ndomain: {name: x}\n",
		"alloc over cap":    "owner: " + owner + "\nsupplyCap: \"1\"\ndomain: {name: x}\nalloc:\n  " + owner + ": \"2\"\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGenesisSpec([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadGenesisSpecFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(specYAML()), 0o600))
	spec, err := LoadGenesisSpec(path)
	require.NoError(t, err)
	require.Len(t, spec.Allocations(), 2)

	_, err = LoadGenesisSpec("")
	require.Error(t, err)
}

func TestApplyBootstrapsOnce(t *testing.T) {
	spec, err := ParseGenesisSpec([]byte(specYAML()))
	require.NoError(t, err)

	st := state.NewManager(storage.NewMemDB())
	engine := revenue.NewEngine(spec.Params())
	engine.SetState(st)
	engine.SetUnitLedger(bank.NewLedger(st, nil))
	engine.SetCustodian(bank.NewVault(st, spec.CustodyAddress(), nil))

	require.NoError(t, spec.Apply(engine, 42))
	current, err := engine.CurrentPeriod()
	require.NoError(t, err)
	require.Equal(t, uint64(spec.GenesisTimestamp().Unix()), current.StartTime)

	supply, err := engine.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, int64(100), supply.Int64())
	limit, err := engine.SupplyCap()
	require.NoError(t, err)
	require.Zero(t, limit.Cmp(big.NewInt(1000)))

	require.NoError(t, spec.Apply(engine, 99))
	supply, err = engine.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, int64(100), supply.Int64(), "second apply must not re-mint")
}
