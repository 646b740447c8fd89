package passkey

import (
	"encoding/base64"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/go-webauthn/webauthn/webauthn"
)

// WebAuthnKey is what the WebAuthn validator module is installed with: the
// P-256 public key and the hash of the authenticator ID.
type WebAuthnKey struct {
	PubX                string `json:"pubX"`
	PubY                string `json:"pubY"`
	AuthenticatorID     string `json:"authenticatorId"`
	AuthenticatorIDHash string `json:"authenticatorIdHash"`
}

func KeyFromCredential(cred webauthn.Credential) (WebAuthnKey, error) {
	parsed, err := webauthncose.ParsePublicKey(cred.PublicKey)
	if err != nil {
		return WebAuthnKey{}, fmt.Errorf("failed to parse credential public key: %w", err)
	}

	var ec webauthncose.EC2PublicKeyData
	switch k := parsed.(type) {
	case webauthncose.EC2PublicKeyData:
		ec = k
	case *webauthncose.EC2PublicKeyData:
		ec = *k
	default:
		return WebAuthnKey{}, fmt.Errorf("unsupported credential key type %T, only P-256 keys can be used on-chain", parsed)
	}
	if ec.Curve != int64(webauthncose.P256) {
		return WebAuthnKey{}, fmt.Errorf("unsupported curve %d", ec.Curve)
	}

	return WebAuthnKey{
		PubX:                hexutil.Encode(ec.XCoord),
		PubY:                hexutil.Encode(ec.YCoord),
		AuthenticatorID:     base64.RawURLEncoding.EncodeToString(cred.ID),
		AuthenticatorIDHash: crypto.Keccak256Hash(cred.ID).Hex(),
	}, nil
}
