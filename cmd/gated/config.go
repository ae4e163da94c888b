package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/catalog"
)

// config is assembled from environment variables. Everything downstream is
// constructed from it in main; nothing reads the environment after startup.
type config struct {
	ListenAddr string
	BaseURL    string

	FacilitatorURL      string
	FacilitatorAPIKey   string
	FacilitatorJWTKeyID string
	FacilitatorJWTKey   string
	FacilitatorAudience string

	Networks []gate.Network
	EVMPayTo string
	SVMPayTo string

	// Prices is the endpoint price table, parsed from GATED_PRICES
	// ("POST /v1/analyze=1.00,GET /v1/search=0.05").
	Prices []catalog.Entry

	// DatabaseURL selects the Postgres ledger backend; empty runs in memory.
	DatabaseURL string

	// RedisURL selects the Redis nonce backend; empty runs in memory.
	RedisURL string

	VerifyOnly      bool
	ShutdownTimeout time.Duration
}

func loadConfig() (*config, error) {
	cfg := &config{
		ListenAddr:          envOr("GATED_ADDR", ":8080"),
		BaseURL:             envOr("GATED_BASE_URL", "http://localhost:8080"),
		FacilitatorURL:      os.Getenv("GATED_FACILITATOR_URL"),
		FacilitatorAPIKey:   os.Getenv("GATED_FACILITATOR_API_KEY"),
		FacilitatorJWTKeyID: os.Getenv("GATED_FACILITATOR_JWT_KEY_ID"),
		FacilitatorJWTKey:   os.Getenv("GATED_FACILITATOR_JWT_KEY"),
		FacilitatorAudience: os.Getenv("GATED_FACILITATOR_AUDIENCE"),
		EVMPayTo:            os.Getenv("GATED_EVM_PAY_TO"),
		SVMPayTo:            os.Getenv("GATED_SVM_PAY_TO"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		VerifyOnly:          os.Getenv("GATED_VERIFY_ONLY") == "true",
		ShutdownTimeout:     30 * time.Second,
	}

	for _, raw := range splitList(envOr("GATED_NETWORKS", "base")) {
		network, err := gate.ParseNetwork(raw)
		if err != nil {
			return nil, fmt.Errorf("GATED_NETWORKS: %w", err)
		}
		cfg.Networks = append(cfg.Networks, network)
	}

	prices, err := parsePrices(os.Getenv("GATED_PRICES"))
	if err != nil {
		return nil, err
	}
	cfg.Prices = prices

	return cfg, cfg.validate()
}

func (c *config) validate() error {
	if c.FacilitatorURL == "" {
		return fmt.Errorf("GATED_FACILITATOR_URL is required")
	}
	for _, n := range c.Networks {
		switch n.Type() {
		case gate.NetworkTypeEVM:
			if c.EVMPayTo == "" {
				return fmt.Errorf("GATED_EVM_PAY_TO is required for network %s", n)
			}
		case gate.NetworkTypeSVM:
			if c.SVMPayTo == "" {
				return fmt.Errorf("GATED_SVM_PAY_TO is required for network %s", n)
			}
		}
	}
	if len(c.Prices) == 0 {
		return fmt.Errorf("GATED_PRICES is required (e.g. \"POST /v1/analyze=1.00\")")
	}
	return nil
}

// parsePrices parses "METHOD /path=PRICE" pairs separated by commas.
func parsePrices(raw string) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	for _, pair := range splitList(raw) {
		endpoint, price, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("GATED_PRICES: %q is not METHOD /path=PRICE", pair)
		}
		method, path, ok := strings.Cut(strings.TrimSpace(endpoint), " ")
		if !ok {
			return nil, fmt.Errorf("GATED_PRICES: %q is missing a method", pair)
		}
		entries = append(entries, catalog.Entry{
			Method:   strings.ToUpper(strings.TrimSpace(method)),
			Path:     strings.TrimSpace(path),
			PriceUSD: strings.TrimSpace(price),
		})
	}
	return entries, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
