package h402

import "fmt"

// ValidatePaymentRequirements performs basic validation on payment requirements
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	switch r.Namespace {
	case NamespaceEVM, NamespaceSolana, NamespaceArkade:
	case "":
		return fmt.Errorf("payment namespace is required")
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedNamespace, r.Namespace)
	}
	if r.NetworkID == "" {
		return fmt.Errorf("payment network id is required")
	}
	if r.AmountRequired == "" {
		return fmt.Errorf("payment amount is required")
	}
	if r.PayToAddress == "" {
		return fmt.Errorf("payment recipient is required")
	}
	return nil
}
