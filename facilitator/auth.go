package facilitator

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// JWTAuth mints short-lived ES256 bearer tokens for facilitators that require
// signed API authentication. It is immutable after construction and safe for
// concurrent use; the parsed private key is cached to avoid re-parsing on
// every request.
type JWTAuth struct {
	keyID      string
	audience   string
	privateKey *ecdsa.PrivateKey
	tokenTTL   time.Duration
	now        func() time.Time
}

// NewJWTAuth parses a PEM-encoded ECDSA private key and returns a token
// minter. keyID identifies the key to the facilitator; audience is the
// facilitator's expected `aud` claim.
func NewJWTAuth(keyID, keyPEM, audience string) (*JWTAuth, error) {
	if keyID == "" {
		return nil, fmt.Errorf("jwt auth: key ID cannot be empty")
	}

	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, fmt.Errorf("jwt auth: key is not valid PEM")
	}

	var key *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		parsed, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwt auth: parse EC key: %w", err)
		}
		key = parsed
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwt auth: parse PKCS8 key: %w", err)
		}
		ecKey, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("jwt auth: PKCS8 key is not ECDSA")
		}
		key = ecKey
	default:
		return nil, fmt.Errorf("jwt auth: unsupported PEM block %q", block.Type)
	}

	return &JWTAuth{
		keyID:      keyID,
		audience:   audience,
		privateKey: key,
		tokenTTL:   2 * time.Minute,
		now:        time.Now,
	}, nil
}

// Provider returns an AuthorizationProvider that mints a fresh bearer token
// per request.
func (a *JWTAuth) Provider() AuthorizationProvider {
	return func() (string, error) {
		token, err := a.GenerateBearerToken()
		if err != nil {
			return "", err
		}
		return "Bearer " + token, nil
	}
}

// GenerateBearerToken signs a short-lived ES256 JWT.
func (a *JWTAuth) GenerateBearerToken() (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: a.privateKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", a.keyID),
	)
	if err != nil {
		return "", fmt.Errorf("jwt auth: create signer: %w", err)
	}

	issuedAt := a.now()
	claims := jwt.Claims{
		Issuer:    a.keyID,
		Subject:   a.keyID,
		Audience:  jwt.Audience{a.audience},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
		Expiry:    jwt.NewNumericDate(issuedAt.Add(a.tokenTTL)),
	}

	token, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("jwt auth: sign token: %w", err)
	}
	return token, nil
}
