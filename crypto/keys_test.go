package crypto

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	addr := key.PubKey().Address()
	encoded := addr.String()
	require.True(t, strings.HasPrefix(encoded, "rev1"))

	decoded, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, addr.Identity(), decoded.Identity())
	require.Equal(t, RevPrefix, decoded.Prefix())
}

func TestParseIdentityAcceptsHexAndBech32(t *testing.T) {
	var id [20]byte
	id[0] = 0xAB
	id[19] = 0x01

	fromBech, err := ParseIdentity(FromIdentity(id).String())
	require.NoError(t, err)
	require.Equal(t, id, fromBech)

	fromHex, err := ParseIdentity("0xab00000000000000000000000000000000000001")
	require.NoError(t, err)
	require.Equal(t, id, fromHex)

	_, err = ParseIdentity("0x1234")
	require.Error(t, err)
	_, err = ParseIdentity("  ")
	require.Error(t, err)
}

func TestNewAddressRejectsWrongLength(t *testing.T) {
	_, err := NewAddress(RevPrefix, []byte{1, 2, 3})
	require.Error(t, err)
	require.Panics(t, func() { MustNewAddress(RevPrefix, []byte{1}) })
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "owner.keystore")
	require.NoError(t, saveToKeystore(path, key, "hunter2", keystore.LightScryptN, keystore.LightScryptP))

	loaded, err := LoadFromKeystore(path, "hunter2")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())
	require.Equal(t, key.Identity(), loaded.Identity())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}
