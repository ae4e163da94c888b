package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gate "github.com/mark3labs/x402-gate"
)

const (
	// DefaultCostPerCall is the credit price of one gated interaction.
	DefaultCostPerCall = 1

	// DefaultClaimPeriod is the rolling entitlement period for monthly
	// claims: 30 days from the last claim, not calendar-aligned, so the
	// ledger stays stateless and timezone-free.
	DefaultClaimPeriod = 30 * 24 * time.Hour

	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// Ledger exposes the credit and subscription operations over a Store.
type Ledger struct {
	store       Store
	logger      *slog.Logger
	now         func() time.Time
	costPerCall int64
	claimPeriod time.Duration
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLedgerLogger sets the logger for ledger telemetry.
func WithLedgerLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithCostPerCall overrides the per-interaction credit price.
func WithCostPerCall(cost int64) LedgerOption {
	return func(l *Ledger) {
		l.costPerCall = cost
	}
}

// WithLedgerClock overrides the time source. Intended for tests.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a Ledger over the given store.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:       store,
		logger:      slog.Default(),
		now:         time.Now,
		costPerCall: DefaultCostPerCall,
		claimPeriod: DefaultClaimPeriod,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GetBalance returns the account's balance together with its subscription
// tier and monthly-claim eligibility.
func (l *Ledger) GetBalance(ctx context.Context, accountID string) (*BalanceInfo, error) {
	balance, err := l.store.Balance(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}

	now := l.now()
	sub, err := l.store.ActiveSubscription(ctx, accountID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	}

	info := &BalanceInfo{
		Balance: balance,
		Tier:    TierFree,
	}
	if sub != nil {
		info.Tier = sub.Tier
		info.SubscriptionActive = true
	}

	if info.Tier.Info().CreditsPerMonth > 0 {
		last, err := l.store.LastTransactionOfKind(ctx, accountID, KindMonthlyClaim)
		if err != nil {
			return nil, fmt.Errorf("failed to read claim history: %w", err)
		}
		if last == nil {
			info.CanClaimMonthly = true
		} else {
			next := last.CreatedAt.Add(l.claimPeriod)
			info.NextClaimDate = &next
			info.CanClaimMonthly = !now.Before(next)
		}
	}

	return info, nil
}

// HasCredits reports whether the account can afford one interaction.
// Unlimited-tier holders always can, without touching the balance.
func (l *Ledger) HasCredits(ctx context.Context, accountID string) (*CreditCheck, error) {
	sub, err := l.store.ActiveSubscription(ctx, accountID, l.now())
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	}
	if sub != nil && sub.Tier.Info().Unlimited {
		balance, err := l.store.Balance(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to read balance: %w", err)
		}
		return &CreditCheck{HasCredits: true, Cost: l.costPerCall, Balance: balance, IsUnlimited: true}, nil
	}

	balance, err := l.store.Balance(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	return &CreditCheck{
		HasCredits: balance >= l.costPerCall,
		Cost:       l.costPerCall,
		Balance:    balance,
	}, nil
}

// DeductCredit atomically deducts one interaction's cost. Insufficient
// balance at commit time returns gate.ErrInsufficientCredits even when an
// earlier read suggested otherwise. Unlimited-tier holders are not charged.
func (l *Ledger) DeductCredit(ctx context.Context, accountID, serviceID, description string) (*DeductResult, error) {
	sub, err := l.store.ActiveSubscription(ctx, accountID, l.now())
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	}
	if sub != nil && sub.Tier.Info().Unlimited {
		balance, err := l.store.Balance(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to read balance: %w", err)
		}
		return &DeductResult{Success: true, NewBalance: balance}, nil
	}

	tx, err := l.store.Apply(ctx, ApplyRequest{
		AccountID:          accountID,
		Amount:             -l.costPerCall,
		Kind:               KindDeduction,
		ServiceID:          serviceID,
		Description:        description,
		RequireNonNegative: true,
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("credit deducted", "account", accountID, "balance", tx.BalanceAfter)
	return &DeductResult{Success: true, NewBalance: tx.BalanceAfter}, nil
}

// GrantCredits appends a positive grant to the account's ledger.
func (l *Ledger) GrantCredits(ctx context.Context, accountID string, amount int64, description string) (*CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	tx, err := l.store.Apply(ctx, ApplyRequest{
		AccountID:   accountID,
		Amount:      amount,
		Kind:        KindGrant,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ClaimMonthlyCredits grants the account's tier allowance once per rolling
// period. A second claim within the period fails deterministically with the
// same NextClaimDate and never double-grants. Tiers with no allowance get a
// typed failure and no ledger mutation.
func (l *Ledger) ClaimMonthlyCredits(ctx context.Context, accountID string) (*ClaimResult, error) {
	now := l.now()
	sub, err := l.store.ActiveSubscription(ctx, accountID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	}

	tier := TierFree
	if sub != nil {
		tier = sub.Tier
	}
	allowance := tier.Info().CreditsPerMonth

	balance, err := l.store.Balance(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}

	if allowance == 0 {
		return &ClaimResult{
			Success:       false,
			NewBalance:    balance,
			NextClaimDate: now.Add(l.claimPeriod),
			Error:         fmt.Sprintf("tier %s has no monthly credit allowance", tier),
		}, nil
	}

	tx, err := l.store.Apply(ctx, ApplyRequest{
		AccountID:       accountID,
		Amount:          allowance,
		Kind:            KindMonthlyClaim,
		Description:     fmt.Sprintf("monthly credits for %s tier", tier),
		ForbidKindAfter: now.Add(-l.claimPeriod),
	})
	if errors.Is(err, gate.ErrClaimNotYetEligible) {
		last, lookupErr := l.store.LastTransactionOfKind(ctx, accountID, KindMonthlyClaim)
		if lookupErr != nil {
			return nil, fmt.Errorf("failed to read claim history: %w", lookupErr)
		}
		next := now.Add(l.claimPeriod)
		if last != nil {
			next = last.CreatedAt.Add(l.claimPeriod)
		}
		return &ClaimResult{
			Success:       false,
			NewBalance:    balance,
			NextClaimDate: next,
			Error:         "monthly credits already claimed this period",
		}, nil
	}
	if err != nil {
		return nil, err
	}

	l.logger.Info("monthly credits claimed", "account", accountID, "credits", allowance, "balance", tx.BalanceAfter)
	return &ClaimResult{
		Success:       true,
		CreditsAdded:  allowance,
		NewBalance:    tx.BalanceAfter,
		NextClaimDate: tx.CreatedAt.Add(l.claimPeriod),
	}, nil
}

// TransactionHistory returns the account's ledger entries, most recent
// first. The limit is clamped to [1,100]; zero or negative selects the
// default of 50.
func (l *Ledger) TransactionHistory(ctx context.Context, accountID string, limit int) ([]CreditTransaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return l.store.Transactions(ctx, accountID, limit)
}

// GetDiscount returns the account's active subscription discount percentage,
// or zero without one. Implements the catalog's discount source.
func (l *Ledger) GetDiscount(ctx context.Context, accountID string) (int, error) {
	sub, err := l.store.ActiveSubscription(ctx, accountID, l.now())
	if err != nil {
		return 0, fmt.Errorf("failed to read subscription: %w", err)
	}
	if sub == nil {
		return 0, nil
	}
	return sub.Tier.Info().DiscountPercent, nil
}

// ActiveSubscription returns the account's current subscription, or nil.
func (l *Ledger) ActiveSubscription(ctx context.Context, accountID string) (*Subscription, error) {
	return l.store.ActiveSubscription(ctx, accountID, l.now())
}

// SubscriptionHistory returns all of the account's subscriptions, most
// recent first.
func (l *Ledger) SubscriptionHistory(ctx context.Context, accountID string) ([]Subscription, error) {
	return l.store.Subscriptions(ctx, accountID)
}

// RecordPurchase registers a paid subscription. Buying while one is active
// stacks the new period after the current one instead of overlapping it, and
// the tier's monthly allowance is granted immediately as part of the
// purchase.
func (l *Ledger) RecordPurchase(ctx context.Context, accountID string, tier Tier, transactionHash, paymentNetwork string) (*Subscription, error) {
	info := tier.Info()
	if info.Name == TierFree {
		return nil, fmt.Errorf("tier %s is not purchasable", tier)
	}

	now := l.now()
	startsAt := now
	if active, err := l.store.ActiveSubscription(ctx, accountID, now); err != nil {
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	} else if active != nil && active.ExpiresAt.After(startsAt) {
		startsAt = active.ExpiresAt
	}

	sub, err := l.store.CreateSubscription(ctx, Subscription{
		AccountID:       accountID,
		Tier:            info.Name,
		PriceUSD:        info.PriceUSD,
		DiscountPercent: info.DiscountPercent,
		CreditsPerMonth: info.CreditsPerMonth,
		StartsAt:        startsAt,
		ExpiresAt:       startsAt.Add(30 * 24 * time.Hour),
		TransactionHash: transactionHash,
		PaymentNetwork:  paymentNetwork,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record subscription: %w", err)
	}

	if info.CreditsPerMonth > 0 {
		if _, err := l.store.Apply(ctx, ApplyRequest{
			AccountID:   accountID,
			Amount:      info.CreditsPerMonth,
			Kind:        KindSubscriptionPurchase,
			Description: fmt.Sprintf("credits included with %s subscription", tier),
			Metadata:    map[string]string{"subscriptionId": sub.ID},
		}); err != nil {
			return nil, fmt.Errorf("failed to grant subscription credits: %w", err)
		}
	}

	l.logger.Info("subscription purchased",
		"account", accountID, "tier", tier, "startsAt", sub.StartsAt, "expiresAt", sub.ExpiresAt)
	return &sub, nil
}
