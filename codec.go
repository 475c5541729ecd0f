package h402

import (
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemasOnce    sync.Once
	schemasErr     error
	envelopeSchema *gojsonschema.Schema
	payloadSchemas map[string]*gojsonschema.Schema
)

// loadSchemas compiles the embedded schemas. Files are named
// <namespace>_<type>.json, plus envelope.json for the base fields.
func loadSchemas() error {
	schemasOnce.Do(func() {
		entries, err := schemaFS.ReadDir("schemas")
		if err != nil {
			schemasErr = fmt.Errorf("failed to read schemas: %w", err)
			return
		}
		payloadSchemas = make(map[string]*gojsonschema.Schema, len(entries))
		for _, entry := range entries {
			raw, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
			if err != nil {
				schemasErr = fmt.Errorf("failed to read schema %s: %w", entry.Name(), err)
				return
			}
			schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
			if err != nil {
				schemasErr = fmt.Errorf("failed to compile schema %s: %w", entry.Name(), err)
				return
			}
			name := strings.TrimSuffix(entry.Name(), ".json")
			if name == "envelope" {
				envelopeSchema = schema
				continue
			}
			payloadSchemas[name] = schema
		}
		if envelopeSchema == nil {
			schemasErr = fmt.Errorf("envelope schema missing")
		}
	})
	return schemasErr
}

func schemaKey(ns Namespace, t PayloadType) string {
	return string(ns) + "_" + string(t)
}

// EncodePaymentPayload serializes a payload to base64 JSON. Big integers are
// written as decimal strings.
func EncodePaymentPayload(payload PaymentPayload) (string, error) {
	if payload.Payload == nil {
		return "", invalidPayload("payload body is missing")
	}
	if payload.Payload.Namespace() != payload.Namespace {
		return "", invalidPayload("payload variant belongs to %s, envelope says %s", payload.Payload.Namespace(), payload.Namespace)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentPayload reverses EncodePaymentPayload and validates the
// structure of the payload for its declared type. Every failure wraps
// ErrInvalidPaymentPayload.
func DecodePaymentPayload(encoded string) (PaymentPayload, error) {
	data, err := decodeBase64(strings.TrimSpace(encoded))
	if err != nil {
		return PaymentPayload{}, invalidPayload("malformed base64: %v", err)
	}
	return DecodePaymentPayloadJSON(data)
}

// DecodePaymentPayloadJSON validates and decodes the JSON form of a payload
func DecodePaymentPayloadJSON(data []byte) (PaymentPayload, error) {
	if err := ValidatePaymentPayloadJSON(data); err != nil {
		return PaymentPayload{}, err
	}
	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return PaymentPayload{}, invalidPayload("%v", err)
	}
	return payload, nil
}

// ValidatePaymentPayloadJSON runs structural validation: the envelope first,
// then the schema selected by namespace and payload type
func ValidatePaymentPayloadJSON(data []byte) error {
	if err := loadSchemas(); err != nil {
		return err
	}
	if !json.Valid(data) {
		return invalidPayload("malformed JSON")
	}
	if err := validateAgainst(envelopeSchema, data); err != nil {
		return err
	}

	var envelope struct {
		Namespace Namespace       `json:"namespace"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return invalidPayload("%v", err)
	}
	var head struct {
		Type PayloadType `json:"type"`
	}
	if err := json.Unmarshal(envelope.Payload, &head); err != nil {
		return invalidPayload("%v", err)
	}

	schema, ok := payloadSchemas[schemaKey(envelope.Namespace, head.Type)]
	if !ok {
		return invalidPayload("%v: %q for namespace %s", ErrUnknownPayloadType, head.Type, envelope.Namespace)
	}
	return validateAgainst(schema, envelope.Payload)
}

func validateAgainst(schema *gojsonschema.Schema, doc []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return invalidPayload("%v", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return invalidPayload("%s", strings.Join(problems, "; "))
}

func decodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if alt, altErr := base64.URLEncoding.DecodeString(s); altErr == nil {
		return alt, nil
	}
	return nil, err
}

// DecodePaymentRequired parses a 402 response body
func DecodePaymentRequired(body []byte) (PaymentRequired, error) {
	var required PaymentRequired
	if err := json.Unmarshal(body, &required); err != nil {
		return PaymentRequired{}, fmt.Errorf("failed to decode payment required response: %w", err)
	}
	if len(required.Accepts) == 0 {
		return PaymentRequired{}, ErrNoRequirements
	}
	return required, nil
}

// PaymentResponseHeader is the settlement summary echoed in X-PAYMENT-RESPONSE
type PaymentResponseHeader struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer"`
}

// EncodeSettleResponseHeader renders the X-PAYMENT-RESPONSE header value
func EncodeSettleResponseHeader(settle SettleResponse) (string, error) {
	transaction := settle.Transaction
	if transaction == "" {
		transaction = settle.TxHash
	}
	data, err := json.Marshal(PaymentResponseHeader{
		Success:     settle.Success,
		Transaction: transaction,
		Network:     settle.Network,
		Payer:       settle.Payer,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettleResponseHeader parses an X-PAYMENT-RESPONSE header value
func DecodeSettleResponseHeader(header string) (PaymentResponseHeader, error) {
	data, err := decodeBase64(strings.TrimSpace(header))
	if err != nil {
		return PaymentResponseHeader{}, fmt.Errorf("failed to decode payment response header: %w", err)
	}
	var resp PaymentResponseHeader
	if err := json.Unmarshal(data, &resp); err != nil {
		return PaymentResponseHeader{}, fmt.Errorf("failed to unmarshal payment response header: %w", err)
	}
	return resp, nil
}
