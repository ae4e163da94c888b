// Package catalog resolves per-endpoint USD prices into concrete payment
// requirements, one per supported network, with subscription discounts
// applied at quoting time.
package catalog

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	gate "github.com/mark3labs/x402-gate"
)

// DiscountSource resolves an account's active discount percentage.
// A zero percentage means no discount. The credits ledger implements this.
type DiscountSource interface {
	GetDiscount(ctx context.Context, accountID string) (int, error)
}

// Entry declares a priced endpoint.
type Entry struct {
	// Method is the HTTP method guarding the endpoint (e.g., "POST").
	Method string

	// Path is the endpoint path (e.g., "/v1/chat").
	Path string

	// PriceUSD is the decimal USD price (e.g., "1.00", "0.05").
	PriceUSD string

	// Description is an optional human-readable payment description.
	Description string
}

// Config configures a Catalog.
type Config struct {
	// BaseURL is the canonical origin used to build Resource URLs
	// (e.g., "https://api.example.com").
	BaseURL string

	// Networks are the networks requirements are offered on.
	Networks []gate.Network

	// EVMPayTo is the recipient address used on EVM networks.
	EVMPayTo string

	// SVMPayTo is the recipient address used on Solana networks.
	SVMPayTo string

	// MaxTimeoutSeconds is the authorization validity window offered to
	// payers. Defaults to 300.
	MaxTimeoutSeconds int

	// MimeType is the content type of gated resources. Defaults to
	// "application/json".
	MimeType string

	// Discounts resolves subscription discounts at quoting time. Optional.
	Discounts DiscountSource
}

type priceEntry struct {
	usd         *big.Rat
	description string
}

// Catalog is a static (method, endpoint) → USD price table.
type Catalog struct {
	cfg    Config
	prices map[string]priceEntry
}

// New builds a Catalog from the configuration and price entries.
func New(cfg Config, entries []Entry) (*Catalog, error) {
	if len(cfg.Networks) == 0 {
		return nil, fmt.Errorf("catalog: at least one network is required")
	}
	for _, n := range cfg.Networks {
		switch n.Type() {
		case gate.NetworkTypeEVM:
			if cfg.EVMPayTo == "" {
				return nil, fmt.Errorf("catalog: EVM network %s configured without EVMPayTo", n)
			}
		case gate.NetworkTypeSVM:
			if cfg.SVMPayTo == "" {
				return nil, fmt.Errorf("catalog: SVM network %s configured without SVMPayTo", n)
			}
		}
	}
	if cfg.MaxTimeoutSeconds == 0 {
		cfg.MaxTimeoutSeconds = 300
	}
	if cfg.MimeType == "" {
		cfg.MimeType = "application/json"
	}

	prices := make(map[string]priceEntry, len(entries))
	for _, e := range entries {
		usd, ok := new(big.Rat).SetString(e.PriceUSD)
		if !ok || usd.Sign() <= 0 {
			return nil, fmt.Errorf("catalog: invalid price %q for %s %s", e.PriceUSD, e.Method, e.Path)
		}
		prices[priceKey(e.Method, e.Path)] = priceEntry{usd: usd, description: e.Description}
	}

	return &Catalog{cfg: cfg, prices: prices}, nil
}

func priceKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// PriceFor returns the undiscounted USD price for an endpoint.
// The second return is false when the endpoint has no configured price,
// which signals "free" to the caller, not an error.
func (c *Catalog) PriceFor(method, path string) (string, bool) {
	entry, ok := c.prices[priceKey(method, path)]
	if !ok {
		return "", false
	}
	return FormatUSD(entry.usd), true
}

// RequirementsFor returns one payment requirement per supported network for
// the endpoint, with the account's subscription discount (if any) already
// applied to the quoted amount. An endpoint with no configured price returns
// an empty list and nil pricing.
func (c *Catalog) RequirementsFor(ctx context.Context, method, path, accountID string) ([]gate.PaymentRequirement, *gate.Pricing, error) {
	entry, ok := c.prices[priceKey(method, path)]
	if !ok {
		return nil, nil, nil
	}

	discount := 0
	if accountID != "" && c.cfg.Discounts != nil {
		d, err := c.cfg.Discounts.GetDiscount(ctx, accountID)
		if err != nil {
			return nil, nil, fmt.Errorf("catalog: discount lookup for %s: %w", accountID, err)
		}
		discount = d
	}

	finalUSD := ApplyDiscount(entry.usd, discount)
	pricing := &gate.Pricing{
		OriginalPrice:   FormatUSD(entry.usd),
		FinalPrice:      FormatUSD(finalUSD),
		DiscountPercent: discount,
		DiscountApplied: discount > 0,
	}

	description := entry.description
	if description == "" {
		description = "Payment required for " + path
	}

	requirements := make([]gate.PaymentRequirement, 0, len(c.cfg.Networks))
	for _, n := range c.cfg.Networks {
		cfg := n.Config()

		req := gate.PaymentRequirement{
			Scheme:            "exact",
			Network:           cfg.ID,
			MaxAmountRequired: AtomicUnits(finalUSD, cfg.Decimals),
			Asset:             cfg.USDCAddress,
			Resource:          c.cfg.BaseURL + path,
			Description:       description,
			MimeType:          c.cfg.MimeType,
			MaxTimeoutSeconds: c.cfg.MaxTimeoutSeconds,
		}

		switch cfg.Type {
		case gate.NetworkTypeEVM:
			req.PayTo = c.cfg.EVMPayTo
			// Domain parameters come from the network table, never from
			// client input.
			req.Extra = map[string]interface{}{
				"name":    cfg.TokenName,
				"version": cfg.TokenVersion,
			}
		case gate.NetworkTypeSVM:
			req.PayTo = c.cfg.SVMPayTo
		}

		requirements = append(requirements, req)
	}

	return requirements, pricing, nil
}

// ApplyDiscount returns price * (1 - percent/100) in exact rational
// arithmetic. Percentages outside [0,100] are clamped.
func ApplyDiscount(price *big.Rat, percent int) *big.Rat {
	if percent <= 0 {
		return new(big.Rat).Set(price)
	}
	if percent >= 100 {
		return new(big.Rat)
	}
	factor := big.NewRat(int64(100-percent), 100)
	return new(big.Rat).Mul(price, factor)
}

// AtomicUnits converts a USD price to the token's atomic unit base using
// integer arithmetic. Rounding is always toward the payer's disadvantage
// (ceiling) so that rounding can never produce an underpayment.
func AtomicUnits(price *big.Rat, decimals uint8) string {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	num := new(big.Int).Mul(price.Num(), scale)

	quo, rem := new(big.Int).QuoRem(num, price.Denom(), new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo.String()
}

// FormatUSD renders a rational USD amount as a decimal string with at least
// two fractional digits and no trailing noise beyond the sixth.
func FormatUSD(amount *big.Rat) string {
	s := amount.FloatString(6)
	s = strings.TrimRight(s, "0")
	if dot := strings.IndexByte(s, '.'); dot >= 0 && len(s)-dot-1 < 2 {
		s += strings.Repeat("0", 2-(len(s)-dot-1))
	}
	return s
}
