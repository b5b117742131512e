// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hdkeychain_test

// References:
//
//	[BIP32]: BIP0032 - Hierarchical Deterministic Wallets
//	https://github.com/bitcoin/bips/blob/master/bip-0032.mediawiki

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ciphrex/vaultd/chaincfg"
	"github.com/ciphrex/vaultd/hdkeychain"
)

func TestBIP0032Vectors(t *testing.T) {
	hkStart := uint32(hdkeychain.HardenedKeyStart)
	params := chaincfg.MainNetParams()

	tests := []struct {
		name     string
		master   string
		path     []uint32
		wantPub  string
		wantPriv string
	}{
		{
			name:     "test vector 1 chain m",
			master:   "000102030405060708090a0b0c0d0e0f",
			path:     []uint32{},
			wantPub:  "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EHxoeTG",
			wantPriv: "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3jPPqjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGByB3yWc",
		},
		{
			name:     "test vector 1 chain m/0H",
			master:   "000102030405060708090a0b0c0d0e0f",
			path:     []uint32{hkStart},
			wantPub:  "xpub69GmQNHCKJbkH4WHGtBXeMZjvvhWKxTs3SSsgRqx1eMJLFjiXKcTfk1veJvjAuKXxBN5j7pgeL9Umsjoz68TMCqiwrR9cxfP4xcKBtxkb9d",
			wantPriv: "xprv9vHQzrkJUw3T4aRpAreXHDd1Nts1vVk1gDXGt3SLTJpKTTQZynJD7whSo354KRNtjV5GjEayekZxiicFPQqcTMTS2PZon5xTVvWsH8qAior",
		},
		{
			name:     "test vector 1 chain m/0H/1/2H/2/1000000000",
			master:   "000102030405060708090a0b0c0d0e0f",
			path:     []uint32{hkStart, 1, hkStart + 2, 2, 1000000000},
			wantPub:  "xpub6H6tydVkGNmeTMdW3MQo244wzmyfG9sCrEbdeHCj1GWUgt9uKjzjmS8QQTY6Wpi7Ryp64eU5qfa6gKUi3CJReuedH7FMKpojCWqwLCC4cL7",
			wantPriv: "xprvA47Ya7xrS1DMEsZ2wKsnev8DSk9Arh9MV1g2qto7SvyVp5pknCgVDdovZCj2VDCQanhoqB9n2b72GBtpWndMfhpsJLzMBP9cAnrv4XJFtGG",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seed, err := hex.DecodeString(tc.master)
			require.NoError(t, err)

			key, err := hdkeychain.NewMaster(seed, params)
			require.NoError(t, err)

			for _, childNum := range tc.path {
				key, err = key.Child(childNum)
				require.NoError(t, err)
			}

			require.Equal(t, tc.wantPriv, key.String(params))
			require.Equal(t, tc.wantPub, key.Neuter().String(params))
		})
	}
}

func TestChildPublicFromPublic(t *testing.T) {
	params := chaincfg.MainNetParams()
	seed, err := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)

	master, err := hdkeychain.NewMaster(seed, params)
	require.NoError(t, err)

	privChild, err := master.Child(0)
	require.NoError(t, err)

	pubChild, err := master.Neuter().Child(0)
	require.NoError(t, err)

	require.False(t, pubChild.IsPrivate())
	require.Equal(t, privChild.SerializedPubKey(), pubChild.SerializedPubKey())
}

func TestHardenedFromPublicFails(t *testing.T) {
	params := chaincfg.MainNetParams()
	seed, err := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)

	master, err := hdkeychain.NewMaster(seed, params)
	require.NoError(t, err)

	_, err = master.Neuter().Child(hdkeychain.HardenedKeyStart)
	require.ErrorIs(t, err, hdkeychain.ErrDeriveHardFromPublic)
}

func TestRoundTripSerialization(t *testing.T) {
	params := chaincfg.MainNetParams()
	seed, err := hex.DecodeString("fffcf9f6f3f0edeae7e4e1dedbd8d5d2cfccc9c6c3c0bdbab7b4b1aeaba8a5a2")
	require.NoError(t, err)

	master, err := hdkeychain.NewMaster(seed, params)
	require.NoError(t, err)

	serialized := master.String(params)
	parsed, err := hdkeychain.NewKeyFromString(serialized, params)
	require.NoError(t, err)
	require.Equal(t, master.SerializedPrivKey(), parsed.SerializedPrivKey())
	require.Equal(t, master.ChainCode(), parsed.ChainCode())
}
