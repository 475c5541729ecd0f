package evm

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	h402 "github.com/bitgpt/h402/go"
)

// HashTypedData hashes EIP-712 typed data
//
// The digest is keccak256("\x19\x01" || domainSeparator || structHash). An
// EIP712Domain type is added when types does not declare one.
//
// Args:
//
//	domain: the EIP-712 domain separator parameters
//	types: the type definitions for the structured data
//	primaryType: the name of the type being hashed
//	message: the message data to hash
//
// Returns:
//
//	32-byte digest suitable for signing or recovery
//	error if the message does not match its types
func HashTypedData(
	domain TypedDataDomain,
	types map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types:       make(apitypes.Types),
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: message,
	}

	for typeName, fields := range types {
		typedFields := make([]apitypes.Type, len(fields))
		for i, field := range fields {
			typedFields[i] = apitypes.Type{Name: field.Name, Type: field.Type}
		}
		typedData.Types[typeName] = typedFields
	}
	if _, exists := typedData.Types["EIP712Domain"]; !exists {
		domainFields := GetAuthorizationTypes()["EIP712Domain"]
		domainTypes := make([]apitypes.Type, len(domainFields))
		for i, field := range domainFields {
			domainTypes[i] = apitypes.Type{Name: field.Name, Type: field.Type}
		}
		typedData.Types["EIP712Domain"] = domainTypes
	}

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)
	return crypto.Keccak256(rawData), nil
}

// AuthorizationMessage converts an authorization into the EIP-712 message map
func AuthorizationMessage(authorization h402.EvmAuthorization) (map[string]interface{}, error) {
	if authorization.Value == nil || authorization.ValidAfter == nil || authorization.ValidBefore == nil {
		return nil, fmt.Errorf("authorization is missing value or validity bounds")
	}
	nonce, err := HexToBytes(authorization.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}
	if len(nonce) != 32 {
		return nil, fmt.Errorf("nonce must be 32 bytes, got %d", len(nonce))
	}

	return map[string]interface{}{
		"from":        common.HexToAddress(authorization.From).Hex(),
		"to":          common.HexToAddress(authorization.To).Hex(),
		"value":       new(big.Int).Set(authorization.Value.Big()),
		"validAfter":  new(big.Int).Set(authorization.ValidAfter.Big()),
		"validBefore": new(big.Int).Set(authorization.ValidBefore.Big()),
		"nonce":       nonce,
	}, nil
}

// AuthorizationDomain builds the token's EIP-712 domain
func AuthorizationDomain(chainID *big.Int, token, name, version string) TypedDataDomain {
	return TypedDataDomain{
		Name:              name,
		Version:           version,
		ChainID:           chainID,
		VerifyingContract: common.HexToAddress(token).Hex(),
	}
}

// HashAuthorization hashes an EIP-3009 TransferWithAuthorization message
//
// Args:
//
//	authorization: the authorization carried by the payload
//	chainID: the chain the token lives on
//	token: the token contract, used as the verifying contract
//	tokenName: the token's EIP-712 domain name, e.g. "USD Coin"
//	tokenVersion: the token's EIP-712 domain version, e.g. "2"
//
// Returns:
//
//	32-byte digest the payer signed
//	error if the authorization is incomplete or its nonce is not 32 bytes
func HashAuthorization(
	authorization h402.EvmAuthorization,
	chainID *big.Int,
	token string,
	tokenName string,
	tokenVersion string,
) ([]byte, error) {
	message, err := AuthorizationMessage(authorization)
	if err != nil {
		return nil, err
	}
	domain := AuthorizationDomain(chainID, token, tokenName, tokenVersion)
	return HashTypedData(domain, GetAuthorizationTypes(), "TransferWithAuthorization", message)
}

// RecoverSigner returns the address that produced a 65-byte signature over
// digest. Both 0/1 and 27/28 recovery ids are accepted; signature itself is
// not modified.
func RecoverSigner(digest []byte, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverMessageSigner recovers the signer of an EIP-191 personal message
func RecoverMessageSigner(message []byte, signature []byte) (common.Address, error) {
	return RecoverSigner(accounts.TextHash(message), signature)
}

// SplitSignature returns the v, r and s components of a 65-byte signature
func SplitSignature(signature []byte) (uint8, [32]byte, [32]byte, error) {
	var r, s [32]byte
	if len(signature) != crypto.SignatureLength {
		return 0, r, s, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}
	copy(r[:], signature[:32])
	copy(s[:], signature[32:64])
	v := signature[64]
	if v < 27 {
		v += 27
	}
	return v, r, s, nil
}

// CreateNonce returns a random 32-byte nonce as 0x-prefixed hex
func CreateNonce() (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hexutil.Encode(nonce), nil
}

// HexToBytes decodes 0x-prefixed or bare hex
func HexToBytes(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
