package payment

import "strings"

// DeclineClass groups gateway failure messages for user-facing copy. It never
// affects control flow.
type DeclineClass string

const (
	DeclineInvalidCard       DeclineClass = "invalid_card"
	DeclineDeclined          DeclineClass = "declined"
	DeclineInsufficientFunds DeclineClass = "insufficient_funds"
	DeclineGeneric           DeclineClass = "generic"
)

// ClassifyDecline matches known gateway phrases, case-insensitively.
func ClassifyDecline(message string) DeclineClass {
	m := strings.ToUpper(message)
	switch {
	case strings.Contains(m, "INVALID CARD"), strings.Contains(m, "NOT FOUND"):
		return DeclineInvalidCard
	case strings.Contains(m, "DECLINED"):
		return DeclineDeclined
	case strings.Contains(m, "INSUFFICIENT"):
		return DeclineInsufficientFunds
	default:
		return DeclineGeneric
	}
}

// Message returns the copy shown on the error screen.
func (c DeclineClass) Message() string {
	switch c {
	case DeclineInvalidCard:
		return "Invalid card details. Please check your card number and try again."
	case DeclineDeclined:
		return "Your card was declined. Please try another card."
	case DeclineInsufficientFunds:
		return "Insufficient funds. Please use another card or top up your balance."
	default:
		return "Your bank declined the payment. Please try again or use another card."
	}
}
