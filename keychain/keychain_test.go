// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ciphrex/vaultd/chaincfg"
	"github.com/ciphrex/vaultd/internal/seal"
)

func testParams() *chaincfg.Params { return chaincfg.MainNetParams() }

func fastSealParams() seal.Params {
	// Real scrypt cost parameters make every locked-field test painfully
	// slow; tests only care that seal/unseal round-trips, not that it's
	// expensive to brute-force.
	return seal.Params{N: 2, R: 1, P: 1}
}

func testEntropy(b byte) []byte {
	e := make([]byte, 32)
	for i := range e {
		e[i] = b
	}
	return e
}

func TestNewRootRejectsReservedName(t *testing.T) {
	_, err := NewRoot("@default", testEntropy(1), testParams())
	require.Error(t, err)

	_, err = NewRoot("", testEntropy(1), testParams())
	require.Error(t, err)
}

func TestNewRootHasPrivateKey(t *testing.T) {
	kc, err := NewRoot("m", testEntropy(7), testParams())
	require.NoError(t, err)
	require.False(t, kc.IsPublicOnly())
	require.False(t, kc.ChainCodeLocked())
	require.False(t, kc.PrivKeyLocked())
	require.Equal(t, uint8(0), kc.Depth)
}

func TestExportImportBIP32RoundTrip(t *testing.T) {
	params := testParams()
	kc, err := NewRoot("m", testEntropy(3), params)
	require.NoError(t, err)

	xprv, err := kc.ExportBIP32(true, params)
	require.NoError(t, err)
	require.NotEmpty(t, xprv)

	imported, err := ImportBIP32("restored", xprv, params)
	require.NoError(t, err)
	require.Equal(t, kc.Hash, imported.Hash)
	require.Equal(t, kc.PubKey, imported.PubKey)

	xpub, err := kc.ExportBIP32(false, params)
	require.NoError(t, err)

	watchOnly, err := ImportBIP32("watch", xpub, params)
	require.NoError(t, err)
	require.True(t, watchOnly.IsPublicOnly())
	require.Equal(t, kc.Hash, watchOnly.Hash)

	_, err = watchOnly.ExportBIP32(true, params)
	require.Error(t, err)
}

func TestEncryptLockUnlockCycle(t *testing.T) {
	params := testParams()
	sp := fastSealParams()
	kc, err := NewRoot("m", testEntropy(9), params)
	require.NoError(t, err)

	pass := []byte("correct horse battery staple")
	require.NoError(t, kc.EncryptChainCode(pass, sp))
	require.NoError(t, kc.EncryptPrivateKey(pass, sp))

	kc.LockAll()
	require.True(t, kc.ChainCodeLocked())
	require.True(t, kc.PrivKeyLocked())

	_, err = kc.ExportBIP32(true, params)
	require.Error(t, err)

	require.NoError(t, kc.UnlockChainCode(pass, sp))
	require.NoError(t, kc.UnlockPrivateKey(pass, sp))
	require.False(t, kc.ChainCodeLocked())
	require.False(t, kc.PrivKeyLocked())

	_, err = kc.ExportBIP32(true, params)
	require.NoError(t, err)

	require.NoError(t, kc.UnlockChainCode([]byte("wrong"), sp))
}

func TestUnlockWithWrongPassphraseFails(t *testing.T) {
	params := testParams()
	sp := fastSealParams()
	kc, err := NewRoot("m", testEntropy(11), params)
	require.NoError(t, err)

	require.NoError(t, kc.EncryptPrivateKey([]byte("right"), sp))
	kc.LockPrivateKey()

	err = kc.UnlockPrivateKey([]byte("wrong"), sp)
	require.Error(t, err)
	require.True(t, kc.PrivKeyLocked())
}

func TestReencryptChangesPassphrase(t *testing.T) {
	params := testParams()
	sp := fastSealParams()
	kc, err := NewRoot("m", testEntropy(13), params)
	require.NoError(t, err)

	oldPass, newPass := []byte("old-pass"), []byte("new-pass")
	require.NoError(t, kc.EncryptChainCode(oldPass, sp))
	require.NoError(t, kc.EncryptPrivateKey(oldPass, sp))
	kc.LockAll()

	require.NoError(t, kc.Reencrypt(oldPass, newPass, sp))
	kc.LockAll()

	require.Error(t, kc.UnlockPrivateKey(oldPass, sp))
	require.NoError(t, kc.UnlockPrivateKey(newPass, sp))
}

func TestSigningPubKeyDeterministic(t *testing.T) {
	params := testParams()
	kc, err := NewRoot("m", testEntropy(21), params)
	require.NoError(t, err)

	path := []uint32{0}
	pub1, err := kc.SigningPubKey(path, 5)
	require.NoError(t, err)
	pub2, err := kc.SigningPubKey(path, 5)
	require.NoError(t, err)
	require.Equal(t, pub1, pub2)

	pub3, err := kc.SigningPubKey(path, 6)
	require.NoError(t, err)
	require.NotEqual(t, pub1, pub3)
}

func TestSigningPubKeyMatchesPrivKey(t *testing.T) {
	params := testParams()
	kc, err := NewRoot("m", testEntropy(33), params)
	require.NoError(t, err)

	path := []uint32{0, 1}
	pub, err := kc.SigningPubKey(path, 2)
	require.NoError(t, err)

	priv, err := kc.SigningPrivKey(path, 2)
	require.NoError(t, err)
	require.Equal(t, pub, priv.PubKey().SerializeCompressed())
}

func TestSigningPrivKeyPublicOnlyFails(t *testing.T) {
	params := testParams()
	kc, err := NewRoot("m", testEntropy(44), params)
	require.NoError(t, err)

	xpub, err := kc.ExportBIP32(false, params)
	require.NoError(t, err)
	watchOnly, err := ImportBIP32("watch", xpub, params)
	require.NoError(t, err)

	_, err = watchOnly.SigningPrivKey([]uint32{0}, 0)
	require.Error(t, err)
}
