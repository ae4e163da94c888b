package evm

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/internal/eip3009"
)

// CreateAuthorization builds an EIP-3009 authorization with a fresh random
// nonce. validAfter is backdated 10 seconds to tolerate clock drift between
// client and server.
func CreateAuthorization(from, to common.Address, value *big.Int, timeoutSeconds int) (*eip3009.Authorization, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now().Unix()
	return &eip3009.Authorization{
		From:        from,
		To:          to,
		Value:       value,
		ValidAfter:  big.NewInt(now - 10),
		ValidBefore: big.NewInt(now + int64(timeoutSeconds)),
		Nonce:       nonce,
	}, nil
}

// SignTransferAuthorization signs the authorization as EIP-712 typed data.
// The domain name and version come from the payment requirement.
func SignTransferAuthorization(privateKey *ecdsa.PrivateKey, tokenAddress common.Address, chainID *big.Int, auth *eip3009.Authorization, name, version string) (string, error) {
	digest, err := eip3009.Digest(eip3009.Domain{
		Name:              name,
		Version:           version,
		ChainID:           chainID,
		VerifyingContract: tokenAddress,
	}, *auth)
	if err != nil {
		return "", fmt.Errorf("%w: %v", gate.ErrSigningFailed, err)
	}

	signature, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", gate.ErrSigningFailed, err)
	}

	// Ethereum recovery identifier is 27 or 28.
	signature[64] += 27

	return "0x" + hex.EncodeToString(signature), nil
}

func generateNonce() (common.Hash, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(nonce[:]), nil
}
