package svm

import (
	solana "github.com/gagliardetto/solana-go"
)

const (
	// SchemeExact is the exact payment scheme identifier
	SchemeExact = "exact"

	// Network ids
	NetworkMainnet = "mainnet"
	NetworkDevnet  = "devnet"
	NetworkTestnet = "testnet"

	// NativeDecimals is the number of decimals of SOL (lamports)
	NativeDecimals = 9

	// DefaultComputeUnitLimit covers compute budget, create-ATA, transfer and memo
	DefaultComputeUnitLimit uint32 = 60_000
	// DefaultComputeUnitPrice in microlamports
	DefaultComputeUnitPrice uint64 = 1

	systemTransferDiscriminant = 2
	tokenTransferChecked       = 12
	ataCreateIdempotent        = 1
)

// Verify and settle failure reasons
const (
	ErrInvalidTransaction     = "invalid_payload_transaction"
	ErrInvalidSignature       = "invalid_payload_signature"
	ErrNoTransferInstruction  = "invalid_payload_no_transfer_instruction"
	ErrRecipientMismatch      = "invalid_payload_recipient_mismatch"
	ErrInsufficientValue      = "invalid_payload_insufficient_value"
	ErrMemoMismatch           = "invalid_payload_memo_mismatch"
	ErrSignedMessage          = "invalid_payload_signed_message"
	ErrTransactionNotFound    = "invalid_payload_transaction_not_found"
	ErrTransactionFailed      = "invalid_transaction_state"
	ErrConfirmationTimeout    = "settle_confirmation_timeout"
	ErrUnsupportedPayloadType = "invalid_payload_unsupported_type"
	ErrMessageOnlyPayload     = "invalid_payload_message_only"
)

// IsNativeToken reports whether tokenAddress denotes SOL
func IsNativeToken(tokenAddress string) bool {
	return tokenAddress == "" || tokenAddress == solana.SystemProgramID.String()
}

// IsTokenProgram reports whether id is the SPL Token or Token-2022 program
func IsTokenProgram(id solana.PublicKey) bool {
	return id.Equals(solana.TokenProgramID) || id.Equals(solana.Token2022ProgramID)
}
