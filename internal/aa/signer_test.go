package aa_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewit-money/wallet/internal/aa"
)

func TestDummySignature_Length(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	assert.Len(t, aa.NewECDSASigner(key).DummySignature(), 65)
	assert.Len(t, aa.StaticSigner{}.DummySignature(), 65)
}

func TestECDSASigner_SignUserOperationHash(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := aa.NewECDSASigner(key)
	hash := common.HexToHash("0x5e1f0a3b6c9d2e4f708192a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7")

	sig, err := signer.SignUserOperationHash(context.Background(), hash)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	recoverable := append([]byte(nil), sig...)
	recoverable[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(hash.Bytes()), recoverable)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), crypto.PubkeyToAddress(*pub))
}

func TestECDSASignerFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := "0x" + common.Bytes2Hex(crypto.FromECDSA(key))

	signer, err := aa.ECDSASignerFromHex(hexKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer.Address())

	_, err = aa.ECDSASignerFromHex("0xzz")
	require.Error(t, err)
}

func TestStaticSigner_Empty(t *testing.T) {
	_, err := aa.StaticSigner{}.SignUserOperationHash(context.Background(), common.Hash{})
	require.Error(t, err)
}
