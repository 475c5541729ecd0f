// Package arkade provides key-backed identities for the Arkade mechanism
package arkade

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	h402arkade "github.com/bitgpt/h402/go/mechanisms/arkade"
)

// KeyIdentity signs with an in-memory secp256k1 key
type KeyIdentity struct {
	privateKey *btcec.PrivateKey
}

var _ h402arkade.Identity = (*KeyIdentity)(nil)

// NewKeyIdentity wraps an existing key
func NewKeyIdentity(privateKey *btcec.PrivateKey) *KeyIdentity {
	return &KeyIdentity{privateKey: privateKey}
}

// NewKeyIdentityFromHex parses a 32-byte hex secret key
func NewKeyIdentityFromHex(privateKeyHex string) (*KeyIdentity, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", btcec.PrivKeyBytesLen, len(raw))
	}
	privateKey, _ := btcec.PrivKeyFromBytes(raw)
	return NewKeyIdentity(privateKey), nil
}

func (k *KeyIdentity) XOnlyPublicKey() *btcec.PublicKey {
	return k.privateKey.PubKey()
}

// SignSchnorr produces a BIP-340 signature over digest
func (k *KeyIdentity) SignSchnorr(_ context.Context, digest [32]byte) (*schnorr.Signature, error) {
	return schnorr.Sign(k.privateKey, digest[:])
}
