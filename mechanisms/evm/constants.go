package evm

import (
	h402 "github.com/bitgpt/h402/go"
)

const (
	// Scheme identifier
	SchemeExact = h402.SchemeExact

	// NativeTokenAddress denotes the chain's native currency in tokenAddress
	NativeTokenAddress = "0x0000000000000000000000000000000000000000"

	// DefaultNativeDecimals is used for chains missing from Chains
	DefaultNativeDecimals = 18

	// DefaultDomainVersion is the EIP-712 version assumed when a token exposes none
	DefaultDomainVersion = "1"

	// Contract function names
	FunctionTransferWithAuthorization = "transferWithAuthorization"
	FunctionAuthorizationState        = "authorizationState"
	FunctionTransfer                  = "transfer"
	FunctionBalanceOf                 = "balanceOf"
	FunctionDecimals                  = "decimals"
	FunctionName                      = "name"
	FunctionVersion                   = "version"
	FunctionEIP712Domain              = "eip712Domain"

	// Transaction status
	TxStatusSuccess = 1
	TxStatusFailed  = 0

	// Authorization validity window, in seconds
	ValidAfterSkew    = 5
	MinValidityWindow = 60

	// Verify and settle reasons
	ErrInvalidSignature         = "invalid_exact_evm_payload_signature"
	ErrRecipientMismatch        = "invalid_exact_evm_payload_recipient_mismatch"
	ErrInsufficientValue        = "invalid_exact_evm_payload_authorization_value"
	ErrValidAfter               = "invalid_exact_evm_payload_authorization_valid_after"
	ErrValidBefore              = "invalid_exact_evm_payload_authorization_valid_before"
	ErrNonceUsed                = "invalid_exact_evm_payload_authorization_nonce_used"
	ErrInsufficientFunds        = "insufficient_funds"
	ErrChainIDMismatch          = "invalid_exact_evm_payload_chain_id"
	ErrInvalidTransaction       = "invalid_exact_evm_payload_transaction"
	ErrTransactionNotFound      = "invalid_exact_evm_payload_transaction_not_found"
	ErrTxNonceMismatch          = "invalid_exact_evm_payload_nonce"
	ErrTokenMismatch            = "invalid_exact_evm_payload_token_mismatch"
	ErrSignedMessage            = "invalid_exact_evm_payload_signed_message"
	ErrUnsupportedPayloadType   = "unsupported_payload_type"
	ErrTransactionFailed        = "transaction_failed"
	ErrConfirmationTimeout      = "confirmation_timeout"
	ErrInvalidAuthorizationData = "invalid_exact_evm_payload_authorization"
)

// ChainConfig describes an EVM chain keyed by its decimal chain id
type ChainConfig struct {
	Name           string
	NativeSymbol   string
	NativeDecimals int32
}

// Chains lists the networks with known native currencies
var Chains = map[string]ChainConfig{
	"1":        {Name: "ethereum", NativeSymbol: "ETH", NativeDecimals: 18},
	"10":       {Name: "optimism", NativeSymbol: "ETH", NativeDecimals: 18},
	"56":       {Name: "bsc", NativeSymbol: "BNB", NativeDecimals: 18},
	"97":       {Name: "bsc-testnet", NativeSymbol: "tBNB", NativeDecimals: 18},
	"137":      {Name: "polygon", NativeSymbol: "POL", NativeDecimals: 18},
	"8453":     {Name: "base", NativeSymbol: "ETH", NativeDecimals: 18},
	"42161":    {Name: "arbitrum", NativeSymbol: "ETH", NativeDecimals: 18},
	"43114":    {Name: "avalanche", NativeSymbol: "AVAX", NativeDecimals: 18},
	"84532":    {Name: "base-sepolia", NativeSymbol: "ETH", NativeDecimals: 18},
	"11155111": {Name: "sepolia", NativeSymbol: "ETH", NativeDecimals: 18},
}

var (
	// EIP-3009 ABI for transferWithAuthorization with v,r,s (EOA signatures)
	TransferWithAuthorizationVRSABI = []byte(`[
		{
			"inputs": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "validAfter", "type": "uint256"},
				{"name": "validBefore", "type": "uint256"},
				{"name": "nonce", "type": "bytes32"},
				{"name": "v", "type": "uint8"},
				{"name": "r", "type": "bytes32"},
				{"name": "s", "type": "bytes32"}
			],
			"name": "transferWithAuthorization",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// ABI for authorizationState check
	AuthorizationStateABI = []byte(`[
		{
			"inputs": [
				{"name": "authorizer", "type": "address"},
				{"name": "nonce", "type": "bytes32"}
			],
			"name": "authorizationState",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// ERC20ABI covers transfer, balance, decimals and the metadata used for
	// EIP-712 domains
	ERC20ABI = []byte(`[
		{
			"inputs": [
				{"name": "to", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"name": "transfer",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"name": "account", "type": "address"}],
			"name": "balanceOf",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "decimals",
			"outputs": [{"name": "", "type": "uint8"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "name",
			"outputs": [{"name": "", "type": "string"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "version",
			"outputs": [{"name": "", "type": "string"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// EIP-5267 domain introspection
	EIP712DomainABI = []byte(`[
		{
			"inputs": [],
			"name": "eip712Domain",
			"outputs": [
				{"name": "fields", "type": "bytes1"},
				{"name": "name", "type": "string"},
				{"name": "version", "type": "string"},
				{"name": "chainId", "type": "uint256"},
				{"name": "verifyingContract", "type": "address"},
				{"name": "salt", "type": "bytes32"},
				{"name": "extensions", "type": "uint256[]"}
			],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
)

// GetAuthorizationTypes returns the EIP-712 types for TransferWithAuthorization
func GetAuthorizationTypes() map[string][]TypedDataField {
	return map[string][]TypedDataField{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"TransferWithAuthorization": {
			{Name: "from", Type: "address"},
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "validAfter", Type: "uint256"},
			{Name: "validBefore", Type: "uint256"},
			{Name: "nonce", Type: "bytes32"},
		},
	}
}
