package gate

import (
	"sort"
	"strings"
)

// PaymentSelector selects the appropriate signer and creates a payment.
type PaymentSelector interface {
	// SelectAndSign chooses the best signer for any of the offered
	// requirements and creates a signed payment.
	SelectAndSign(requirements []PaymentRequirement, signers []Signer) (*PaymentPayload, error)
}

// DefaultPaymentSelector implements the standard payment selection algorithm.
// Candidates are ranked by signer priority, then token priority, then the
// order the requirements were offered in.
type DefaultPaymentSelector struct{}

// NewDefaultPaymentSelector creates a new DefaultPaymentSelector.
func NewDefaultPaymentSelector() *DefaultPaymentSelector {
	return &DefaultPaymentSelector{}
}

type signerCandidate struct {
	signer         Signer
	requirement    *PaymentRequirement
	signerPriority int
	tokenPriority  int
	offerIndex     int
}

// SelectAndSign implements PaymentSelector.
func (s *DefaultPaymentSelector) SelectAndSign(requirements []PaymentRequirement, signers []Signer) (*PaymentPayload, error) {
	if len(signers) == 0 {
		return nil, ErrNoValidSigner
	}

	var candidates []signerCandidate
	for i := range requirements {
		req := &requirements[i]

		amount, err := ParseAtomicAmount(req.MaxAmountRequired)
		if err != nil {
			return nil, ErrInvalidRequirements
		}

		for _, signer := range signers {
			if !signer.CanSign(req) {
				continue
			}
			if max := signer.GetMaxAmount(); max != nil && amount.Cmp(max) > 0 {
				continue
			}

			tokenPriority := 0
			for _, token := range signer.GetTokens() {
				if strings.EqualFold(token.Address, req.Asset) {
					tokenPriority = token.Priority
					break
				}
			}

			candidates = append(candidates, signerCandidate{
				signer:         signer,
				requirement:    req,
				signerPriority: signer.GetPriority(),
				tokenPriority:  tokenPriority,
				offerIndex:     i,
			})
		}
	}

	if len(candidates) == 0 {
		return nil, ErrNoValidSigner
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].signerPriority != candidates[j].signerPriority {
			return candidates[i].signerPriority < candidates[j].signerPriority
		}
		if candidates[i].tokenPriority != candidates[j].tokenPriority {
			return candidates[i].tokenPriority < candidates[j].tokenPriority
		}
		return candidates[i].offerIndex < candidates[j].offerIndex
	})

	best := candidates[0]
	payment, err := best.signer.Sign(best.requirement)
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// FindMatchingRequirement returns the requirement matching the payment's
// scheme and network, or ErrUnsupportedScheme if none matches.
func FindMatchingRequirement(payment PaymentPayload, requirements []PaymentRequirement) (*PaymentRequirement, error) {
	for i := range requirements {
		if requirements[i].Network == payment.Network && requirements[i].Scheme == payment.Scheme {
			return &requirements[i], nil
		}
	}
	return nil, ErrUnsupportedScheme
}
