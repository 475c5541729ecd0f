package arkade

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/txscript"
)

// Address is a decoded Ark address: the operator's signer key and the taproot
// output key of the recipient's VTXO
type Address struct {
	HRP        string
	Version    byte
	ServerKey  *btcec.PublicKey
	VtxoTapKey *btcec.PublicKey
}

// DecodeAddress parses a bech32m Ark address
func DecodeAddress(address string) (*Address, error) {
	hrp, data, err := bech32.DecodeNoLimit(address)
	if err != nil {
		return nil, fmt.Errorf("invalid ark address: %w", err)
	}
	if hrp != HRPMainnet && hrp != HRPTestnet {
		return nil, fmt.Errorf("invalid ark address prefix %q", hrp)
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("invalid ark address payload: %w", err)
	}
	if len(payload) != 65 {
		return nil, fmt.Errorf("ark address payload must be 65 bytes, got %d", len(payload))
	}
	if payload[0] != AddressVersion {
		return nil, fmt.Errorf("unsupported ark address version %d", payload[0])
	}

	serverKey, err := schnorr.ParsePubKey(payload[1:33])
	if err != nil {
		return nil, fmt.Errorf("invalid ark server key: %w", err)
	}
	tapKey, err := schnorr.ParsePubKey(payload[33:65])
	if err != nil {
		return nil, fmt.Errorf("invalid vtxo taproot key: %w", err)
	}
	return &Address{HRP: hrp, Version: payload[0], ServerKey: serverKey, VtxoTapKey: tapKey}, nil
}

// Encode returns the bech32m form of a
func (a *Address) Encode() (string, error) {
	payload := make([]byte, 0, 65)
	payload = append(payload, a.Version)
	payload = append(payload, schnorr.SerializePubKey(a.ServerKey)...)
	payload = append(payload, schnorr.SerializePubKey(a.VtxoTapKey)...)

	data, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.EncodeM(a.HRP, data)
}

// PkScript returns the P2TR script that pays the address's VTXO
func (a *Address) PkScript() ([]byte, error) {
	return txscript.PayToTaprootScript(a.VtxoTapKey)
}

// PaysTo reports whether script is the address's P2TR output script
func (a *Address) PaysTo(script []byte) bool {
	expected, err := a.PkScript()
	if err != nil {
		return false
	}
	return bytes.Equal(expected, script)
}
