package gate

import (
	"errors"
	"fmt"
)

// Standard sentinel errors shared across the module.
var (
	// ErrPaymentRequired indicates that payment is required to access the resource.
	ErrPaymentRequired = errors.New("payment required")

	// ErrInvalidPayment indicates that the provided payment is invalid.
	ErrInvalidPayment = errors.New("invalid payment")

	// ErrMalformedHeader indicates that the X-PAYMENT header is malformed.
	ErrMalformedHeader = errors.New("malformed payment header")

	// ErrUnsupportedVersion indicates an unsupported x402 protocol version.
	ErrUnsupportedVersion = errors.New("unsupported x402 version")

	// ErrUnsupportedScheme indicates an unsupported payment scheme.
	ErrUnsupportedScheme = errors.New("unsupported payment scheme")

	// ErrUnsupportedNetwork indicates an unsupported blockchain network.
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrInvalidSignature indicates an invalid cryptographic signature.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidAuthorization indicates invalid payment authorization data.
	ErrInvalidAuthorization = errors.New("invalid authorization")

	// ErrExpiredAuthorization indicates the payment authorization has expired.
	ErrExpiredAuthorization = errors.New("expired authorization")

	// ErrNotYetValid indicates the authorization was presented before its
	// validAfter timestamp.
	ErrNotYetValid = errors.New("authorization not yet valid")

	// ErrInsufficientAmount indicates the authorized amount is below the
	// required price.
	ErrInsufficientAmount = errors.New("insufficient payment amount")

	// ErrReplayedNonce indicates an authorization nonce has already been consumed.
	ErrReplayedNonce = errors.New("replayed nonce")

	// ErrInvalidAmount indicates a malformed amount string.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrFacilitatorUnavailable indicates the facilitator service is unavailable.
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")

	// ErrSettlementFailed indicates on-chain settlement failed.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrVerificationFailed indicates payment verification failed.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrInsufficientCredits indicates the account balance cannot cover the cost.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrClaimNotYetEligible indicates the monthly credit claim period has not elapsed.
	ErrClaimNotYetEligible = errors.New("monthly claim not yet eligible")

	// ErrTimeout indicates the operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// Client-side signing errors.

	// ErrInvalidKey indicates an invalid private key.
	ErrInvalidKey = errors.New("invalid private key")

	// ErrInvalidKeystore indicates an unreadable or undecryptable keystore file.
	ErrInvalidKeystore = errors.New("invalid keystore")

	// ErrInvalidMnemonic indicates an invalid BIP-39 mnemonic phrase.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrInvalidNetwork indicates a signer was configured without a valid network.
	ErrInvalidNetwork = errors.New("invalid network")

	// ErrNoTokens indicates a signer was configured without any tokens.
	ErrNoTokens = errors.New("no tokens configured")

	// ErrNoValidSigner indicates no configured signer can satisfy the requirements.
	ErrNoValidSigner = errors.New("no valid signer")

	// ErrAmountExceeded indicates the payment exceeds the signer's per-call limit.
	ErrAmountExceeded = errors.New("amount exceeds per-call limit")

	// ErrSigningFailed indicates payment signing failed.
	ErrSigningFailed = errors.New("signing failed")

	// ErrInvalidRequirements indicates malformed payment requirements.
	ErrInvalidRequirements = errors.New("invalid payment requirements")
)

// ErrorKind classifies a verification or ledger rejection. Every expected
// rejection path surfaces one of these so the HTTP layer can shape a response
// without inspecting error text.
type ErrorKind string

const (
	// KindNone marks a successful result.
	KindNone ErrorKind = ""

	// KindNoPaymentRequired marks a resource with no configured price. Not an error.
	KindNoPaymentRequired ErrorKind = "no_payment_required"

	// KindPaymentMissing marks a priced resource called without a payment.
	// The result carries the requirements for client discovery.
	KindPaymentMissing ErrorKind = "payment_missing"

	// KindUnsupportedNetwork marks an envelope on a network outside the
	// requirement set.
	KindUnsupportedNetwork ErrorKind = "unsupported_network"

	// KindInsufficientAmount marks an authorized value below the required price.
	KindInsufficientAmount ErrorKind = "insufficient_amount"

	// KindNotYetValid marks an authorization presented before validAfter.
	KindNotYetValid ErrorKind = "not_yet_valid"

	// KindExpiredAuthorization marks an authorization presented at or after
	// validBefore.
	KindExpiredAuthorization ErrorKind = "expired_authorization"

	// KindReplayedNonce marks a nonce that was already consumed.
	KindReplayedNonce ErrorKind = "replayed_nonce"

	// KindInvalidSignature marks a signature that does not recover to the payer.
	KindInvalidSignature ErrorKind = "invalid_signature"

	// KindFacilitatorError marks a facilitator rejection, failure, or timeout.
	KindFacilitatorError ErrorKind = "facilitator_error"

	// KindInsufficientCredits marks a ledger balance below the deduction cost.
	KindInsufficientCredits ErrorKind = "insufficient_credits"

	// KindClaimNotYetEligible marks a monthly claim inside the current period.
	KindClaimNotYetEligible ErrorKind = "claim_not_yet_eligible"

	// KindValidationError marks structurally malformed input.
	KindValidationError ErrorKind = "validation_error"
)

// Sentinel returns the sentinel error corresponding to the kind, or nil for
// kinds that are not errors.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindUnsupportedNetwork:
		return ErrUnsupportedNetwork
	case KindInsufficientAmount:
		return ErrInsufficientAmount
	case KindNotYetValid:
		return ErrNotYetValid
	case KindExpiredAuthorization:
		return ErrExpiredAuthorization
	case KindReplayedNonce:
		return ErrReplayedNonce
	case KindInvalidSignature:
		return ErrInvalidSignature
	case KindFacilitatorError:
		return ErrFacilitatorUnavailable
	case KindInsufficientCredits:
		return ErrInsufficientCredits
	case KindClaimNotYetEligible:
		return ErrClaimNotYetEligible
	case KindPaymentMissing:
		return ErrPaymentRequired
	case KindValidationError:
		return ErrInvalidPayment
	default:
		return nil
	}
}

// VerificationError is a classified verification failure. It wraps the
// underlying cause so callers can use errors.Is against the sentinels above.
type VerificationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewVerificationError creates a VerificationError with the given kind.
func NewVerificationError(kind ErrorKind, message string, err error) *VerificationError {
	return &VerificationError{Kind: kind, Message: message, Err: err}
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *VerificationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind.Sentinel()
}
