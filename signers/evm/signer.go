// Package evm implements client-side payment signing for EVM networks using
// EIP-3009 transferWithAuthorization messages signed as EIP-712 typed data.
package evm

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	gate "github.com/mark3labs/x402-gate"
)

// Signer signs payment authorizations for one EVM network with one private
// key and a configured set of tokens.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	network    gate.Network
	networkSet bool
	tokens     []gate.TokenConfig
	priority   int
	maxAmount  *big.Int

	// err records the first option failure; NewSigner surfaces it.
	err error
}

var _ gate.Signer = (*Signer)(nil)

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithPrivateKey configures the signer with a hex-encoded private key,
// with or without the 0x prefix.
func WithPrivateKey(hexKey string) SignerOption {
	return func(s *Signer) {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			s.setErr(gate.ErrInvalidKey)
			return
		}
		s.privateKey = key
	}
}

// WithNetwork sets the target network (e.g., "base", "base-sepolia").
func WithNetwork(network string) SignerOption {
	return func(s *Signer) {
		n, err := gate.ParseNetwork(network)
		if err != nil || n.Type() != gate.NetworkTypeEVM {
			s.setErr(gate.ErrInvalidNetwork)
			return
		}
		s.network = n
		s.networkSet = true
	}
}

// WithToken adds a supported token with default priority.
func WithToken(address, symbol string, decimals int) SignerOption {
	return WithTokenPriority(address, symbol, decimals, 0)
}

// WithTokenPriority adds a supported token with an explicit priority.
// Lower numbers are preferred.
func WithTokenPriority(address, symbol string, decimals, priority int) SignerOption {
	return func(s *Signer) {
		s.tokens = append(s.tokens, gate.TokenConfig{
			Address:  address,
			Symbol:   symbol,
			Decimals: decimals,
			Priority: priority,
		})
	}
}

// WithPriority sets the signer's priority among multiple signers.
// Lower numbers are preferred.
func WithPriority(priority int) SignerOption {
	return func(s *Signer) {
		s.priority = priority
	}
}

// WithMaxAmountPerCall caps the atomic-unit amount this signer will
// authorize for a single payment.
func WithMaxAmountPerCall(amount string) SignerOption {
	return func(s *Signer) {
		max, ok := new(big.Int).SetString(amount, 10)
		if !ok || max.Sign() <= 0 {
			s.setErr(gate.ErrInvalidAmount)
			return
		}
		s.maxAmount = max
	}
}

func (s *Signer) setErr(err error) {
	if s.err == nil {
		s.err = err
	}
}

// NewSigner creates a Signer from the given options. A private key, an EVM
// network, and at least one token are required.
func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{}
	for _, opt := range opts {
		opt(s)
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.privateKey == nil {
		return nil, gate.ErrInvalidKey
	}
	if !s.networkSet {
		return nil, gate.ErrInvalidNetwork
	}
	if len(s.tokens) == 0 {
		return nil, gate.ErrNoTokens
	}
	return s, nil
}

// Network returns the network identifier this signer operates on.
func (s *Signer) Network() string {
	return s.network.ID()
}

// Scheme returns the payment scheme this signer produces.
func (s *Signer) Scheme() string {
	return "exact"
}

// Address returns the signer's account address.
func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.privateKey.PublicKey)
}

// GetPriority returns the signer's priority. Lower is preferred.
func (s *Signer) GetPriority() int {
	return s.priority
}

// GetTokens returns the configured tokens.
func (s *Signer) GetTokens() []gate.TokenConfig {
	return s.tokens
}

// GetMaxAmount returns the per-call spending cap, or nil when unset.
func (s *Signer) GetMaxAmount() *big.Int {
	return s.maxAmount
}

// CanSign reports whether the requirement's scheme, network, and asset match
// this signer's configuration. Addresses compare case-insensitively.
func (s *Signer) CanSign(requirement *gate.PaymentRequirement) bool {
	if requirement.Scheme != s.Scheme() || requirement.Network != s.Network() {
		return false
	}
	return s.tokenFor(requirement.Asset) != nil
}

func (s *Signer) tokenFor(asset string) *gate.TokenConfig {
	for i := range s.tokens {
		if strings.EqualFold(s.tokens[i].Address, asset) {
			return &s.tokens[i]
		}
	}
	return nil
}

// Sign creates a signed payment payload satisfying the requirement.
func (s *Signer) Sign(requirement *gate.PaymentRequirement) (*gate.PaymentPayload, error) {
	if !s.CanSign(requirement) {
		return nil, gate.ErrInvalidRequirements
	}

	value, ok := new(big.Int).SetString(requirement.MaxAmountRequired, 10)
	if !ok || value.Sign() <= 0 {
		return nil, gate.ErrInvalidAmount
	}
	if s.maxAmount != nil && value.Cmp(s.maxAmount) > 0 {
		return nil, gate.ErrAmountExceeded
	}

	timeout := requirement.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = 300
	}
	auth, err := CreateAuthorization(s.Address(), common.HexToAddress(requirement.PayTo), value, timeout)
	if err != nil {
		return nil, err
	}

	cfg := s.network.Config()
	name, version := cfg.TokenName, cfg.TokenVersion
	if requirement.Extra != nil {
		if n, ok := requirement.Extra["name"].(string); ok && n != "" {
			name = n
		}
		if v, ok := requirement.Extra["version"].(string); ok && v != "" {
			version = v
		}
	}

	signature, err := SignTransferAuthorization(s.privateKey,
		common.HexToAddress(requirement.Asset),
		cfg.ChainID,
		auth, name, version)
	if err != nil {
		return nil, err
	}

	return &gate.PaymentPayload{
		X402Version: gate.X402Version,
		Scheme:      s.Scheme(),
		Network:     s.Network(),
		Payload: gate.EVMPayload{
			Signature: signature,
			Authorization: gate.EVMAuthorization{
				From:        auth.From.Hex(),
				To:          auth.To.Hex(),
				Value:       auth.Value.String(),
				ValidAfter:  auth.ValidAfter.String(),
				ValidBefore: auth.ValidBefore.String(),
				Nonce:       auth.Nonce.Hex(),
			},
		},
	}, nil
}
