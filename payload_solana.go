package h402

// SolanaNativeTransferPayload references a broadcast SOL transfer by signature
type SolanaNativeTransferPayload struct {
	Signature string `json:"signature"`
	Memo      string `json:"memo,omitempty"`
}

func (SolanaNativeTransferPayload) Namespace() Namespace     { return NamespaceSolana }
func (SolanaNativeTransferPayload) PayloadType() PayloadType { return PayloadTypeNativeTransfer }
func (SolanaNativeTransferPayload) isPayload()               {}

func (p SolanaNativeTransferPayload) MarshalJSON() ([]byte, error) {
	type plain SolanaNativeTransferPayload
	return marshalTagged(p.PayloadType(), plain(p))
}

// SolanaTokenTransferPayload references a broadcast SPL transfer by signature
type SolanaTokenTransferPayload struct {
	Signature string `json:"signature"`
	Memo      string `json:"memo,omitempty"`
}

func (SolanaTokenTransferPayload) Namespace() Namespace     { return NamespaceSolana }
func (SolanaTokenTransferPayload) PayloadType() PayloadType { return PayloadTypeTokenTransfer }
func (SolanaTokenTransferPayload) isPayload()               {}

func (p SolanaTokenTransferPayload) MarshalJSON() ([]byte, error) {
	type plain SolanaTokenTransferPayload
	return marshalTagged(p.PayloadType(), plain(p))
}

// SolanaSignAndSendTransactionPayload references a transaction the wallet
// signed and broadcast. SignedMessage is a base58 ed25519 signature by the fee
// payer over the resource string.
type SolanaSignAndSendTransactionPayload struct {
	Signature     string `json:"signature"`
	SignedMessage string `json:"signedMessage,omitempty"`
	Memo          string `json:"memo,omitempty"`
}

func (SolanaSignAndSendTransactionPayload) Namespace() Namespace { return NamespaceSolana }
func (SolanaSignAndSendTransactionPayload) PayloadType() PayloadType {
	return PayloadTypeSignAndSendTransaction
}
func (SolanaSignAndSendTransactionPayload) isPayload() {}

func (p SolanaSignAndSendTransactionPayload) MarshalJSON() ([]byte, error) {
	type plain SolanaSignAndSendTransactionPayload
	return marshalTagged(p.PayloadType(), plain(p))
}

// SolanaSignTransactionPayload carries a base64 wire transaction signed by the
// payer and left for the facilitator to broadcast
type SolanaSignTransactionPayload struct {
	Transaction string `json:"transaction"`
	Memo        string `json:"memo,omitempty"`
}

func (SolanaSignTransactionPayload) Namespace() Namespace     { return NamespaceSolana }
func (SolanaSignTransactionPayload) PayloadType() PayloadType { return PayloadTypeSignTransaction }
func (SolanaSignTransactionPayload) isPayload()               {}

func (p SolanaSignTransactionPayload) MarshalJSON() ([]byte, error) {
	type plain SolanaSignTransactionPayload
	return marshalTagged(p.PayloadType(), plain(p))
}

// SolanaSignMessagePayload is a bare message signature with no value transfer
type SolanaSignMessagePayload struct {
	Signature string `json:"signature"`
	Message   string `json:"message"`
}

func (SolanaSignMessagePayload) Namespace() Namespace     { return NamespaceSolana }
func (SolanaSignMessagePayload) PayloadType() PayloadType { return PayloadTypeSignMessage }
func (SolanaSignMessagePayload) isPayload()               {}

func (p SolanaSignMessagePayload) MarshalJSON() ([]byte, error) {
	type plain SolanaSignMessagePayload
	return marshalTagged(p.PayloadType(), plain(p))
}
