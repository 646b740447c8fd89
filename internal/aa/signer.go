package aa

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer authorizes a user operation hash for the validator selected by the
// operation's nonce key.
type Signer interface {
	SignUserOperationHash(ctx context.Context, hash common.Hash) ([]byte, error)
	DummySignature() []byte
}

var defaultDummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// ECDSASigner signs the EIP-191 message of the hash, as session keys do.
type ECDSASigner struct {
	key *ecdsa.PrivateKey
}

func NewECDSASigner(key *ecdsa.PrivateKey) *ECDSASigner {
	return &ECDSASigner{key: key}
}

func ECDSASignerFromHex(hexKey string) (*ECDSASigner, error) {
	key, err := crypto.HexToECDSA(trim0x(hexKey))
	if err != nil {
		return nil, fmt.Errorf("invalid session key: %w", err)
	}
	return NewECDSASigner(key), nil
}

func (s *ECDSASigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *ECDSASigner) SignUserOperationHash(_ context.Context, hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(hash.Bytes()), s.key)
	if err != nil {
		return nil, fmt.Errorf("crypto.Sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (s *ECDSASigner) DummySignature() []byte {
	return defaultDummySignature
}

// StaticSigner returns a signature produced elsewhere, e.g. by a passkey in
// the browser.
type StaticSigner struct {
	Signature []byte
	Dummy     []byte
}

func (s StaticSigner) SignUserOperationHash(context.Context, common.Hash) ([]byte, error) {
	if len(s.Signature) == 0 {
		return nil, fmt.Errorf("signature is empty")
	}
	return s.Signature, nil
}

func (s StaticSigner) DummySignature() []byte {
	if len(s.Dummy) > 0 {
		return s.Dummy
	}
	return defaultDummySignature
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
