package enums

import "fmt"

// TransactionStatus mirrors the payment provider's intent lifecycle.
type TransactionStatus string

const (
	TransactionStatusRequiresPaymentMethod TransactionStatus = "requires_payment_method"
	TransactionStatusRequiresConfirmation  TransactionStatus = "requires_confirmation"
	TransactionStatusProcessing            TransactionStatus = "processing"
	TransactionStatusRequiresAction        TransactionStatus = "requires_action"
	TransactionStatusRequiresCapture       TransactionStatus = "requires_capture"
	TransactionStatusSucceeded             TransactionStatus = "succeeded"
	TransactionStatusCanceled              TransactionStatus = "canceled"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusRequiresPaymentMethod,
	TransactionStatusRequiresConfirmation,
	TransactionStatusProcessing,
	TransactionStatusRequiresAction,
	TransactionStatusRequiresCapture,
	TransactionStatusSucceeded,
	TransactionStatusCanceled,
}

// PixExpirableStatuses are the states a PIX charge can sit in while waiting for
// the payer; only these are eligible for the expiry sweep.
var PixExpirableStatuses = []TransactionStatus{
	TransactionStatusProcessing,
	TransactionStatusRequiresPaymentMethod,
}

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionStatus.
func (t TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the provider will emit no further updates.
func (t TransactionStatus) IsTerminal() bool {
	return t == TransactionStatusSucceeded || t == TransactionStatusCanceled
}

// PixExpirable reports whether a PIX charge in this state can still expire.
func (t TransactionStatus) PixExpirable() bool {
	for _, candidate := range PixExpirableStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
