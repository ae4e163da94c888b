package credits

import "fmt"

// Tier is an enumerated subscription level. The tier table is fixed at
// compile time so discount and grant amounts cannot drift per deployment.
type Tier string

const (
	TierFree      Tier = "free"
	TierBasic     Tier = "basic"
	TierPro       Tier = "pro"
	TierUnlimited Tier = "unlimited"
)

// TierInfo carries the entitlements of one tier.
type TierInfo struct {
	// Name is the tier identifier.
	Name Tier `json:"name"`

	// PriceUSD is the monthly subscription price.
	PriceUSD string `json:"priceUsd"`

	// DiscountPercent is the pay-per-call discount for active subscribers.
	DiscountPercent int `json:"discountPercent"`

	// CreditsPerMonth is the monthly credit grant. Zero means no grant.
	CreditsPerMonth int64 `json:"creditsPerMonth"`

	// Unlimited marks tiers whose holders bypass credit deduction entirely.
	Unlimited bool `json:"unlimited"`
}

var tierTable = map[Tier]TierInfo{
	TierFree:      {Name: TierFree, PriceUSD: "0.00", DiscountPercent: 0, CreditsPerMonth: 0},
	TierBasic:     {Name: TierBasic, PriceUSD: "9.99", DiscountPercent: 20, CreditsPerMonth: 1000},
	TierPro:       {Name: TierPro, PriceUSD: "29.99", DiscountPercent: 30, CreditsPerMonth: 5000},
	TierUnlimited: {Name: TierUnlimited, PriceUSD: "99.99", DiscountPercent: 50, CreditsPerMonth: 10000, Unlimited: true},
}

// Info returns the tier's entitlements. Unknown tiers resolve to the free
// tier so a corrupted record can never grant more than nothing.
func (t Tier) Info() TierInfo {
	if info, ok := tierTable[t]; ok {
		return info
	}
	return tierTable[TierFree]
}

// ParseTier validates a tier identifier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if _, ok := tierTable[t]; !ok {
		return "", fmt.Errorf("unknown subscription tier: %q", s)
	}
	return t, nil
}

// AllTiers returns every purchasable tier in ascending entitlement order.
func AllTiers() []TierInfo {
	return []TierInfo{
		tierTable[TierFree],
		tierTable[TierBasic],
		tierTable[TierPro],
		tierTable[TierUnlimited],
	}
}
