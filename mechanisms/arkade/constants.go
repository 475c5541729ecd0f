package arkade

const (
	// SchemeExact is the exact payment scheme identifier
	SchemeExact = "exact"

	// Network ids
	NetworkBitcoin   = "bitcoin"
	NetworkTestnet   = "testnet"
	NetworkSignet    = "signet"
	NetworkMutinynet = "mutinynet"
	NetworkRegtest   = "regtest"

	// Address prefixes
	HRPMainnet = "ark"
	HRPTestnet = "tark"

	// AddressVersion is the only Ark address version in use
	AddressVersion byte = 0

	// NativeDecimals is the number of decimals of BTC (satoshis)
	NativeDecimals = 8
)

// Verify and settle failure reasons
const (
	ErrInvalidPSBT            = "invalid_payload_psbt"
	ErrUnsignedInput          = "invalid_payload_unsigned_input"
	ErrInvalidAddress         = "invalid_payload_address"
	ErrNetworkMismatch        = "invalid_payload_network_mismatch"
	ErrRecipientMismatch      = "invalid_payload_recipient_mismatch"
	ErrInsufficientValue      = "invalid_payload_insufficient_value"
	ErrInvalidSignature       = "invalid_payload_signature"
	ErrTransactionNotFound    = "invalid_payload_transaction_not_found"
	ErrUnsupportedToken       = "invalid_payload_unsupported_token"
	ErrUnsupportedPayloadType = "invalid_payload_unsupported_type"
	ErrMessageOnlyPayload     = "invalid_payload_message_only"
	ErrSubmitRejected         = "settle_submit_rejected"
)

// addressPrefix returns the HRP used on network
func addressPrefix(network string) string {
	if network == NetworkBitcoin {
		return HRPMainnet
	}
	return HRPTestnet
}

// IsNativeToken reports whether tokenAddress denotes BTC
func IsNativeToken(tokenAddress string) bool {
	return tokenAddress == "" || tokenAddress == "BTC"
}
