package verifier

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/internal/eip3009"
)

// DomainForNetwork builds the EIP-712 signing domain for the token and chain
// named by a payment requirement. Domain parameters carried on the
// requirement take precedence over the built-in network table so custom
// tokens verify correctly.
func DomainForNetwork(network gate.Network, req gate.PaymentRequirement) (eip3009.Domain, error) {
	cfg := network.Config()
	if cfg.Type != gate.NetworkTypeEVM {
		return eip3009.Domain{}, fmt.Errorf("%w: %s is not an EVM network", gate.ErrUnsupportedNetwork, cfg.ID)
	}

	name := cfg.TokenName
	version := cfg.TokenVersion
	if req.Extra != nil {
		if n, ok := req.Extra["name"].(string); ok && n != "" {
			name = n
		}
		if v, ok := req.Extra["version"].(string); ok && v != "" {
			version = v
		}
	}

	return eip3009.Domain{
		Name:              name,
		Version:           version,
		ChainID:           cfg.ChainID,
		VerifyingContract: common.HexToAddress(req.Asset),
	}, nil
}

// RecoverAuthorizationSigner recovers the address that produced the given
// signature over the authorization under the given domain.
func RecoverAuthorizationSigner(auth gate.EVMAuthorization, signature string, domain eip3009.Domain) (common.Address, error) {
	typed, err := typedAuthorization(auth)
	if err != nil {
		return common.Address{}, err
	}

	digest, err := eip3009.Digest(domain, typed)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", gate.ErrInvalidSignature, err)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: signature is not hex", gate.ErrInvalidSignature)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("%w: signature must be 65 bytes, got %d", gate.ErrInvalidSignature, len(sig))
	}

	// Accept both raw (0/1) and Ethereum (27/28) recovery identifiers.
	recSig := make([]byte, 65)
	copy(recSig, sig)
	if recSig[64] >= 27 {
		recSig[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, recSig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", gate.ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyAuthorizationSignature reports whether the signature over the
// authorization was produced by the authorization's from address.
func VerifyAuthorizationSignature(auth gate.EVMAuthorization, signature string, domain eip3009.Domain) (bool, error) {
	recovered, err := RecoverAuthorizationSigner(auth, signature, domain)
	if err != nil {
		return false, err
	}
	return recovered == common.HexToAddress(auth.From), nil
}

func typedAuthorization(auth gate.EVMAuthorization) (eip3009.Authorization, error) {
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return eip3009.Authorization{}, fmt.Errorf("%w: value %q is not a decimal integer", gate.ErrInvalidAuthorization, auth.Value)
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return eip3009.Authorization{}, fmt.Errorf("%w: validAfter %q is not a decimal integer", gate.ErrInvalidAuthorization, auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return eip3009.Authorization{}, fmt.Errorf("%w: validBefore %q is not a decimal integer", gate.ErrInvalidAuthorization, auth.ValidBefore)
	}

	nonceBytes, err := hex.DecodeString(strings.TrimPrefix(auth.Nonce, "0x"))
	if err != nil || len(nonceBytes) != 32 {
		return eip3009.Authorization{}, fmt.Errorf("%w: nonce must be 32 bytes of hex", gate.ErrInvalidAuthorization)
	}

	return eip3009.Authorization{
		From:        common.HexToAddress(auth.From),
		To:          common.HexToAddress(auth.To),
		Value:       value,
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       common.BytesToHash(nonceBytes),
	}, nil
}
