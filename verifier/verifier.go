// Package verifier orchestrates payment verification for gated endpoints:
// requirement resolution, local pre-checks (amount, time window, nonce,
// signature), facilitator settlement, and nonce consumption. Every expected
// rejection is a typed Result, never an error, so callers can shape an HTTP
// response without inspecting error text.
package verifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/catalog"
	"github.com/mark3labs/x402-gate/encoding"
	"github.com/mark3labs/x402-gate/facilitator"
	"github.com/mark3labs/x402-gate/nonce"
	"github.com/mark3labs/x402-gate/validation"
)

// Result is the outcome of a verification attempt. Exactly one of the
// following holds: Valid with NoPaymentRequired (free endpoint), Valid with a
// ResponseHeader (settled payment), or invalid with an ErrorKind describing
// the first failed check.
type Result struct {
	// Valid is true when the request may proceed to the gated capability.
	Valid bool

	// ErrorKind classifies the rejection. KindNone on success,
	// KindNoPaymentRequired for free endpoints.
	ErrorKind gate.ErrorKind

	// Message carries human-readable detail for the rejection.
	Message string

	// Requirements are the payment options to present on a 402 response.
	// Populated when payment is missing or rejected.
	Requirements []gate.PaymentRequirement

	// Pricing describes the quoted price and any applied discount.
	Pricing *gate.Pricing

	// ResponseHeader is the encoded settlement receipt for the
	// X-PAYMENT-RESPONSE header. Set only on settled payments.
	ResponseHeader string

	// Payer is the verified paying address, when one was identified.
	Payer string

	// Network is the network the payment was verified on.
	Network string
}

// Verifier coordinates the price catalog, nonce registry, and facilitator
// into the full verification pipeline.
type Verifier struct {
	catalog     *catalog.Catalog
	nonces      nonce.Registry
	facilitator facilitator.Interface
	logger      *slog.Logger
	now         func() time.Time
	verifyOnly  bool
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the logger used for verification telemetry.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// WithVerifyOnly makes the verifier stop after the facilitator verify call
// instead of settling. Useful when settlement happens out of band.
func WithVerifyOnly() Option {
	return func(v *Verifier) {
		v.verifyOnly = true
	}
}

// New creates a Verifier over the given catalog, nonce registry, and
// facilitator client.
func New(cat *catalog.Catalog, registry nonce.Registry, fac facilitator.Interface, opts ...Option) *Verifier {
	v := &Verifier{
		catalog:     cat,
		nonces:      registry,
		facilitator: fac,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs the verification pipeline for one request. A non-nil error
// indicates infrastructure failure (catalog, registry); all payment-protocol
// rejections come back as a Result with Valid=false.
func (v *Verifier) Verify(ctx context.Context, method, path string, payment *gate.PaymentPayload, accountID string) (*Result, error) {
	requirements, pricing, err := v.catalog.RequirementsFor(ctx, method, path, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve requirements: %w", err)
	}
	if len(requirements) == 0 {
		return &Result{Valid: true, ErrorKind: gate.KindNoPaymentRequired}, nil
	}

	if payment == nil {
		return &Result{
			Valid:        false,
			ErrorKind:    gate.KindPaymentMissing,
			Message:      "payment required",
			Requirements: requirements,
			Pricing:      pricing,
		}, nil
	}

	if err := validation.ValidatePayment(*payment); err != nil {
		return reject(gate.KindValidationError, err.Error(), requirements, pricing), nil
	}

	requirement, err := gate.FindMatchingRequirement(*payment, requirements)
	if err != nil {
		return reject(gate.KindUnsupportedNetwork,
			fmt.Sprintf("no payment option for network %s", payment.Network),
			requirements, pricing), nil
	}

	network, err := gate.ParseNetwork(payment.Network)
	if err != nil {
		return reject(gate.KindUnsupportedNetwork, err.Error(), requirements, pricing), nil
	}

	var claim nonceClaim
	switch network.Type() {
	case gate.NetworkTypeEVM:
		claim, err = v.checkEVM(*payment, *requirement)
	case gate.NetworkTypeSVM:
		claim, err = v.checkSVM(*payment, *requirement)
	default:
		return reject(gate.KindUnsupportedNetwork, "unsupported network type", requirements, pricing), nil
	}
	if err != nil {
		var verr *gate.VerificationError
		if errors.As(err, &verr) {
			return reject(verr.Kind, verr.Message, requirements, pricing), nil
		}
		return reject(gate.KindValidationError, err.Error(), requirements, pricing), nil
	}

	fresh, err := v.nonces.IsFresh(ctx, claim.payer, payment.Network, claim.nonce)
	if err != nil {
		return nil, fmt.Errorf("nonce registry check failed: %w", err)
	}
	if !fresh {
		return reject(gate.KindReplayedNonce, "authorization nonce already used", requirements, pricing), nil
	}

	verdict, err := v.facilitator.Verify(ctx, *payment, *requirement)
	if err != nil {
		v.logger.Error("facilitator verify failed", "network", payment.Network, "error", err)
		return reject(gate.KindFacilitatorError, err.Error(), requirements, pricing), nil
	}
	if !verdict.IsValid {
		return reject(gate.KindFacilitatorError,
			fmt.Sprintf("facilitator rejected payment: %s", verdict.InvalidReason),
			requirements, pricing), nil
	}

	settlement := gate.SettlementResponse{
		Success: true,
		Network: payment.Network,
		Payer:   claim.payer,
	}
	if !v.verifyOnly {
		settled, err := v.facilitator.Settle(ctx, *payment, *requirement)
		if err != nil {
			// Nonce stays unconsumed so the authorization remains usable
			// until its own validBefore.
			v.logger.Error("facilitator settle failed", "network", payment.Network, "error", err)
			return reject(gate.KindFacilitatorError, err.Error(), requirements, pricing), nil
		}
		if !settled.Success {
			return reject(gate.KindFacilitatorError,
				fmt.Sprintf("settlement failed: %s", settled.ErrorReason),
				requirements, pricing), nil
		}
		settlement = *settled
	}

	if err := v.nonces.Consume(ctx, claim.payer, payment.Network, claim.nonce, claim.expiresAt); err != nil {
		if errors.Is(err, gate.ErrReplayedNonce) {
			return reject(gate.KindReplayedNonce, "authorization nonce already used", requirements, pricing), nil
		}
		return nil, fmt.Errorf("nonce registry consume failed: %w", err)
	}

	header, err := encoding.EncodeSettlement(settlement)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settlement receipt: %w", err)
	}

	v.logger.Info("payment verified",
		"network", payment.Network,
		"payer", claim.payer,
		"transaction", settlement.Transaction)

	return &Result{
		Valid:          true,
		ResponseHeader: header,
		Payer:          claim.payer,
		Pricing:        pricing,
		Network:        payment.Network,
	}, nil
}

// nonceClaim carries the replay-protection identity extracted from a payment.
type nonceClaim struct {
	payer     string
	nonce     string
	expiresAt time.Time
}

func (v *Verifier) checkEVM(payment gate.PaymentPayload, requirement gate.PaymentRequirement) (nonceClaim, error) {
	payload, err := payment.EVMPayload()
	if err != nil {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindValidationError, Message: err.Error(), Err: err}
	}
	auth := payload.Authorization

	if err := validation.ValidateEVMAuthorization(auth); err != nil {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindValidationError, Message: err.Error(), Err: err}
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindValidationError, Message: "authorization value is not a decimal integer"}
	}
	required, ok := new(big.Int).SetString(requirement.MaxAmountRequired, 10)
	if !ok {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindValidationError, Message: "requirement amount is not a decimal integer"}
	}
	if value.Cmp(required) < 0 {
		return nonceClaim{}, &gate.VerificationError{
			Kind:    gate.KindInsufficientAmount,
			Message: fmt.Sprintf("payment of %s below required %s", auth.Value, requirement.MaxAmountRequired),
		}
	}

	validAfter, err := strconv.ParseInt(auth.ValidAfter, 10, 64)
	if err != nil {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindValidationError, Message: "invalid validAfter timestamp"}
	}
	validBefore, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindValidationError, Message: "invalid validBefore timestamp"}
	}
	now := v.now().Unix()
	if now < validAfter {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindNotYetValid, Message: "authorization is not yet valid"}
	}
	if now >= validBefore {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindExpiredAuthorization, Message: "authorization has expired"}
	}

	network, err := gate.ParseNetwork(payment.Network)
	if err != nil {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindUnsupportedNetwork, Message: err.Error(), Err: err}
	}
	domain, err := DomainForNetwork(network, requirement)
	if err != nil {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindUnsupportedNetwork, Message: err.Error(), Err: err}
	}
	valid, err := VerifyAuthorizationSignature(auth, payload.Signature, domain)
	if err != nil {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindInvalidSignature, Message: err.Error(), Err: err}
	}
	if !valid {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindInvalidSignature, Message: "signature does not recover to payer address"}
	}

	return nonceClaim{
		payer:     auth.From,
		nonce:     auth.Nonce,
		expiresAt: time.Unix(validBefore, 0),
	}, nil
}

func (v *Verifier) checkSVM(payment gate.PaymentPayload, requirement gate.PaymentRequirement) (nonceClaim, error) {
	payload, err := payment.SVMPayload()
	if err != nil {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindValidationError, Message: err.Error(), Err: err}
	}

	payer, err := ExtractSVMPayer(payload.Transaction)
	if err != nil {
		return nonceClaim{}, &gate.VerificationError{Kind: gate.KindValidationError, Message: err.Error(), Err: err}
	}

	// A signed Solana transaction is already replay-protected on chain by its
	// blockhash, but the registry still blocks a duplicate submission through
	// this server. Key by the transaction digest.
	sum := sha256.Sum256([]byte(payload.Transaction))
	timeout := requirement.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = 300
	}

	return nonceClaim{
		payer:     payer,
		nonce:     hex.EncodeToString(sum[:]),
		expiresAt: v.now().Add(time.Duration(timeout) * time.Second),
	}, nil
}

func reject(kind gate.ErrorKind, message string, requirements []gate.PaymentRequirement, pricing *gate.Pricing) *Result {
	return &Result{
		Valid:        false,
		ErrorKind:    kind,
		Message:      message,
		Requirements: requirements,
		Pricing:      pricing,
	}
}
