package gate

import "time"

// PaymentEventType identifies the stage of a client payment attempt.
type PaymentEventType string

const (
	// PaymentEventAttempt is emitted when a payment is about to be sent.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess is emitted after the paid retry succeeds.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure is emitted when signing or the paid retry fails.
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent describes a client-side payment lifecycle event for telemetry.
type PaymentEvent struct {
	Type      PaymentEventType
	Timestamp time.Time
	URL       string
	Network   string
	Scheme    string
	Amount    string
	Asset     string
	Recipient string

	// Transaction and Payer are populated on success from the settlement
	// receipt header.
	Transaction string
	Payer       string

	Error    error
	Duration time.Duration
}

// PaymentCallback receives payment lifecycle events.
type PaymentCallback func(PaymentEvent)
