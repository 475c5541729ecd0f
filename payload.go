package h402

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PayloadType is the discriminant of a namespace payload
type PayloadType string

const (
	PayloadTypeAuthorization          PayloadType = "authorization"
	PayloadTypeSignedTransaction      PayloadType = "signedTransaction"
	PayloadTypeSignAndSendTransaction PayloadType = "signAndSendTransaction"
	PayloadTypeSignTransaction        PayloadType = "signTransaction"
	PayloadTypeSignMessage            PayloadType = "signMessage"
	PayloadTypeNativeTransfer         PayloadType = "nativeTransfer"
	PayloadTypeTokenTransfer          PayloadType = "tokenTransfer"
)

// Payload is the namespace-specific body of a PaymentPayload. The set of
// implementations is closed: every variant lives in this package.
type Payload interface {
	Namespace() Namespace
	PayloadType() PayloadType
	isPayload()
}

// PaymentPayload is the client's proof of payment
type PaymentPayload struct {
	H402Version int       `json:"h402Version"`
	Scheme      string    `json:"scheme"`
	Namespace   Namespace `json:"namespace"`
	NetworkID   string    `json:"networkId"`
	Resource    string    `json:"resource"`
	Payload     Payload   `json:"payload"`
}

// NewPaymentPayload stamps the base fields shared by every builder branch
func NewPaymentPayload(version int, requirements PaymentRequirements, payload Payload) PaymentPayload {
	return PaymentPayload{
		H402Version: version,
		Scheme:      requirements.Scheme,
		Namespace:   requirements.Namespace,
		NetworkID:   requirements.NetworkID,
		Resource:    requirements.Resource,
		Payload:     payload,
	}
}

func (p *PaymentPayload) UnmarshalJSON(data []byte) error {
	var envelope struct {
		H402Version int             `json:"h402Version"`
		Scheme      string          `json:"scheme"`
		Namespace   Namespace       `json:"namespace"`
		NetworkID   string          `json:"networkId"`
		Resource    string          `json:"resource"`
		Payload     json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	var head struct {
		Type PayloadType `json:"type"`
	}
	if err := json.Unmarshal(envelope.Payload, &head); err != nil {
		return fmt.Errorf("payload: %w", err)
	}

	variant, err := newPayloadVariant(envelope.Namespace, head.Type)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(envelope.Payload, variant); err != nil {
		return fmt.Errorf("payload %s/%s: %w", envelope.Namespace, head.Type, err)
	}

	*p = PaymentPayload{
		H402Version: envelope.H402Version,
		Scheme:      envelope.Scheme,
		Namespace:   envelope.Namespace,
		NetworkID:   envelope.NetworkID,
		Resource:    envelope.Resource,
		Payload:     derefPayload(variant),
	}
	return nil
}

// newPayloadVariant returns a pointer to the zero value of the variant
// registered for (namespace, type)
func newPayloadVariant(ns Namespace, t PayloadType) (interface{}, error) {
	switch ns {
	case NamespaceEVM:
		switch t {
		case PayloadTypeAuthorization:
			return &EvmAuthorizationPayload{}, nil
		case PayloadTypeSignedTransaction:
			return &EvmSignedTransactionPayload{}, nil
		case PayloadTypeSignAndSendTransaction:
			return &EvmSignAndSendTransactionPayload{}, nil
		case PayloadTypeNativeTransfer:
			return &EvmNativeTransferPayload{}, nil
		case PayloadTypeTokenTransfer:
			return &EvmTokenTransferPayload{}, nil
		}
	case NamespaceSolana:
		switch t {
		case PayloadTypeNativeTransfer:
			return &SolanaNativeTransferPayload{}, nil
		case PayloadTypeTokenTransfer:
			return &SolanaTokenTransferPayload{}, nil
		case PayloadTypeSignAndSendTransaction:
			return &SolanaSignAndSendTransactionPayload{}, nil
		case PayloadTypeSignTransaction:
			return &SolanaSignTransactionPayload{}, nil
		case PayloadTypeSignMessage:
			return &SolanaSignMessagePayload{}, nil
		}
	case NamespaceArkade:
		switch t {
		case PayloadTypeSignTransaction:
			return &ArkadeSignTransactionPayload{}, nil
		case PayloadTypeSignAndSendTransaction:
			return &ArkadeSignAndSendTransactionPayload{}, nil
		case PayloadTypeSignMessage:
			return &ArkadeSignMessagePayload{}, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNamespace, ns)
	}
	return nil, fmt.Errorf("%w: %q for namespace %s", ErrUnknownPayloadType, t, ns)
}

func derefPayload(v interface{}) Payload {
	switch p := v.(type) {
	case *EvmAuthorizationPayload:
		return *p
	case *EvmSignedTransactionPayload:
		return *p
	case *EvmSignAndSendTransactionPayload:
		return *p
	case *EvmNativeTransferPayload:
		return *p
	case *EvmTokenTransferPayload:
		return *p
	case *SolanaNativeTransferPayload:
		return *p
	case *SolanaTokenTransferPayload:
		return *p
	case *SolanaSignAndSendTransactionPayload:
		return *p
	case *SolanaSignTransactionPayload:
		return *p
	case *SolanaSignMessagePayload:
		return *p
	case *ArkadeSignTransactionPayload:
		return *p
	case *ArkadeSignAndSendTransactionPayload:
		return *p
	case *ArkadeSignMessagePayload:
		return *p
	}
	return nil
}

// marshalTagged renders v as a JSON object whose first key is "type".
// v must not implement json.Marshaler itself.
func marshalTagged(t PayloadType, v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(string(t))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	inner := bytes.TrimSpace(body)
	inner = bytes.TrimPrefix(inner, []byte("{"))
	if !bytes.Equal(bytes.TrimSpace(inner), []byte("}")) {
		buf.WriteByte(',')
	}
	buf.Write(inner)
	return buf.Bytes(), nil
}
