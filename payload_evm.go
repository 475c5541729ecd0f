package h402

// EvmAuthorization is an ERC-3009 transferWithAuthorization message
type EvmAuthorization struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Value       *BigInt `json:"value"`
	ValidAfter  *BigInt `json:"validAfter"`
	ValidBefore *BigInt `json:"validBefore"`
	Nonce       string  `json:"nonce"`
	// Version is the token's EIP-712 domain version used when signing
	Version string `json:"version"`
}

// EvmAuthorizationPayload carries an EIP-712 signed ERC-3009 authorization
type EvmAuthorizationPayload struct {
	Signature     string           `json:"signature"`
	Authorization EvmAuthorization `json:"authorization"`
}

func (EvmAuthorizationPayload) Namespace() Namespace     { return NamespaceEVM }
func (EvmAuthorizationPayload) PayloadType() PayloadType { return PayloadTypeAuthorization }
func (EvmAuthorizationPayload) isPayload()               {}

func (p EvmAuthorizationPayload) MarshalJSON() ([]byte, error) {
	type plain EvmAuthorizationPayload
	return marshalTagged(p.PayloadType(), plain(p))
}

// EvmSignedTransactionPayload carries a signed transaction that has not been
// broadcast yet. SignedMessage is an optional EIP-191 signature over the resource.
type EvmSignedTransactionPayload struct {
	SignedTransaction string `json:"signedTransaction"`
	SignedMessage     string `json:"signedMessage,omitempty"`
}

func (EvmSignedTransactionPayload) Namespace() Namespace     { return NamespaceEVM }
func (EvmSignedTransactionPayload) PayloadType() PayloadType { return PayloadTypeSignedTransaction }
func (EvmSignedTransactionPayload) isPayload()               {}

func (p EvmSignedTransactionPayload) MarshalJSON() ([]byte, error) {
	type plain EvmSignedTransactionPayload
	return marshalTagged(p.PayloadType(), plain(p))
}

// EvmSignAndSendTransactionPayload references a transaction the client already
// broadcast, plus an EIP-191 signature over the resource by the same account
type EvmSignAndSendTransactionPayload struct {
	TransactionHash string `json:"transactionHash"`
	SignedMessage   string `json:"signedMessage"`
}

func (EvmSignAndSendTransactionPayload) Namespace() Namespace { return NamespaceEVM }
func (EvmSignAndSendTransactionPayload) PayloadType() PayloadType {
	return PayloadTypeSignAndSendTransaction
}
func (EvmSignAndSendTransactionPayload) isPayload() {}

func (p EvmSignAndSendTransactionPayload) MarshalJSON() ([]byte, error) {
	type plain EvmSignAndSendTransactionPayload
	return marshalTagged(p.PayloadType(), plain(p))
}

// EvmNativeTransferPayload is the legacy signed native transfer
type EvmNativeTransferPayload struct {
	SignedTransaction string `json:"signedTransaction"`
	Nonce             uint64 `json:"nonce"`
}

func (EvmNativeTransferPayload) Namespace() Namespace     { return NamespaceEVM }
func (EvmNativeTransferPayload) PayloadType() PayloadType { return PayloadTypeNativeTransfer }
func (EvmNativeTransferPayload) isPayload()               {}

func (p EvmNativeTransferPayload) MarshalJSON() ([]byte, error) {
	type plain EvmNativeTransferPayload
	return marshalTagged(p.PayloadType(), plain(p))
}

// EvmTokenTransferPayload is the legacy signed ERC-20 transfer
type EvmTokenTransferPayload struct {
	SignedTransaction string `json:"signedTransaction"`
	Nonce             uint64 `json:"nonce"`
}

func (EvmTokenTransferPayload) Namespace() Namespace     { return NamespaceEVM }
func (EvmTokenTransferPayload) PayloadType() PayloadType { return PayloadTypeTokenTransfer }
func (EvmTokenTransferPayload) isPayload()               {}

func (p EvmTokenTransferPayload) MarshalJSON() ([]byte, error) {
	type plain EvmTokenTransferPayload
	return marshalTagged(p.PayloadType(), plain(p))
}
