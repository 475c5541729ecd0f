package h402

// ArkadeSignTransactionPayload carries a base64 PSBT signed by the payer and
// the checkpoint transactions the Ark server needs to finalize it
type ArkadeSignTransactionPayload struct {
	PSBT        string   `json:"psbt"`
	Checkpoints []string `json:"checkpoints,omitempty"`
}

func (ArkadeSignTransactionPayload) Namespace() Namespace     { return NamespaceArkade }
func (ArkadeSignTransactionPayload) PayloadType() PayloadType { return PayloadTypeSignTransaction }
func (ArkadeSignTransactionPayload) isPayload()               {}

func (p ArkadeSignTransactionPayload) MarshalJSON() ([]byte, error) {
	type plain ArkadeSignTransactionPayload
	return marshalTagged(p.PayloadType(), plain(p))
}

// ArkadeSignAndSendTransactionPayload references a submitted Ark transaction.
// SignedMessage is a hex BIP-340 signature over sha256(resource) by PublicKey.
type ArkadeSignAndSendTransactionPayload struct {
	TxID          string `json:"txId"`
	SignedMessage string `json:"signedMessage"`
	PublicKey     string `json:"publicKey"`
}

func (ArkadeSignAndSendTransactionPayload) Namespace() Namespace { return NamespaceArkade }
func (ArkadeSignAndSendTransactionPayload) PayloadType() PayloadType {
	return PayloadTypeSignAndSendTransaction
}
func (ArkadeSignAndSendTransactionPayload) isPayload() {}

func (p ArkadeSignAndSendTransactionPayload) MarshalJSON() ([]byte, error) {
	type plain ArkadeSignAndSendTransactionPayload
	return marshalTagged(p.PayloadType(), plain(p))
}

// ArkadeSignMessagePayload is a bare message signature. It moves no value and
// is never accepted as payment.
type ArkadeSignMessagePayload struct {
	Signature string `json:"signature"`
	Message   string `json:"message"`
}

func (ArkadeSignMessagePayload) Namespace() Namespace     { return NamespaceArkade }
func (ArkadeSignMessagePayload) PayloadType() PayloadType { return PayloadTypeSignMessage }
func (ArkadeSignMessagePayload) isPayload()               {}

func (p ArkadeSignMessagePayload) MarshalJSON() ([]byte, error) {
	type plain ArkadeSignMessagePayload
	return marshalTagged(p.PayloadType(), plain(p))
}
