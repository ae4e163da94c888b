// Package credits maintains the prepaid credit ledger and subscription
// registry. The balance is a derived value over an append-only transaction
// log: every mutation appends exactly one transaction whose balanceAfter is
// computed in the same atomic unit of work as the balance change.
package credits

import "time"

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	KindGrant                TransactionKind = "grant"
	KindDeduction            TransactionKind = "deduction"
	KindMonthlyClaim         TransactionKind = "monthly-claim"
	KindSubscriptionPurchase TransactionKind = "subscription-purchase"
)

// CreditTransaction is an immutable ledger entry. Amount is signed; negative
// amounts are debits. BalanceAfter of entry N always equals BalanceAfter of
// entry N-1 plus Amount.
type CreditTransaction struct {
	ID           string            `json:"id"`
	AccountID    string            `json:"accountId"`
	Amount       int64             `json:"amount"`
	BalanceAfter int64             `json:"balanceAfter"`
	Kind         TransactionKind   `json:"kind"`
	ServiceID    string            `json:"serviceId,omitempty"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// Subscription is a purchased entitlement period. A subscription is active
// while ExpiresAt is in the future; expiry is derived, never stored as state.
type Subscription struct {
	ID              string    `json:"id"`
	AccountID       string    `json:"accountId"`
	Tier            Tier      `json:"tier"`
	PriceUSD        string    `json:"priceUsd"`
	DiscountPercent int       `json:"discountPercent"`
	CreditsPerMonth int64     `json:"creditsPerMonth"`
	StartsAt        time.Time `json:"startsAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	PaymentNetwork  string    `json:"paymentNetwork,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Active reports whether the subscription covers the given instant.
func (s Subscription) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// BalanceInfo is the composite balance view for an account.
type BalanceInfo struct {
	Balance            int64      `json:"balance"`
	Tier               Tier       `json:"tier"`
	SubscriptionActive bool       `json:"subscriptionActive"`
	CanClaimMonthly    bool       `json:"canClaimMonthly"`
	NextClaimDate      *time.Time `json:"nextClaimDate,omitempty"`
}

// CreditCheck is the result of an affordability query.
type CreditCheck struct {
	HasCredits  bool  `json:"hasCredits"`
	Cost        int64 `json:"cost"`
	Balance     int64 `json:"balance"`
	IsUnlimited bool  `json:"isUnlimited"`
}

// DeductResult is the outcome of a credit deduction.
type DeductResult struct {
	Success    bool  `json:"success"`
	NewBalance int64 `json:"newBalance"`
}

// ClaimResult is the outcome of a monthly credit claim. On failure,
// NextClaimDate is deterministic: repeated claims within one period return
// the same date.
type ClaimResult struct {
	Success       bool      `json:"success"`
	CreditsAdded  int64     `json:"creditsAdded"`
	NewBalance    int64     `json:"newBalance"`
	NextClaimDate time.Time `json:"nextClaimDate"`
	Error         string    `json:"error,omitempty"`
}
