package credits

import (
	"context"
	"time"
)

// ApplyRequest describes one atomic ledger mutation. The store must evaluate
// the guards and append the transaction as a single indivisible unit under
// concurrent callers.
type ApplyRequest struct {
	AccountID   string
	Amount      int64
	Kind        TransactionKind
	ServiceID   string
	Description string
	Metadata    map[string]string

	// RequireNonNegative rejects the mutation with gate.ErrInsufficientCredits
	// when it would drive the balance below zero.
	RequireNonNegative bool

	// ForbidKindAfter, when non-zero, rejects the mutation with
	// gate.ErrClaimNotYetEligible if the account already has a transaction of
	// the same Kind created after this instant. Used for claim idempotence.
	ForbidKindAfter time.Time
}

// Store is the persistence contract for the ledger and subscription registry.
// Implementations must make Apply atomic: the balance check, the balance
// update, and the transaction append happen as one transactional unit.
type Store interface {
	// Apply executes one guarded ledger mutation and returns the appended
	// transaction, whose BalanceAfter reflects the committed balance.
	Apply(ctx context.Context, req ApplyRequest) (CreditTransaction, error)

	// Balance returns the current balance. Accounts with no history have
	// balance zero.
	Balance(ctx context.Context, accountID string) (int64, error)

	// Transactions returns the account's ledger entries, most recent first,
	// bounded by limit.
	Transactions(ctx context.Context, accountID string, limit int) ([]CreditTransaction, error)

	// LastTransactionOfKind returns the account's most recent transaction of
	// the given kind, or nil when none exists.
	LastTransactionOfKind(ctx context.Context, accountID string, kind TransactionKind) (*CreditTransaction, error)

	// CreateSubscription records a purchased subscription.
	CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error)

	// ActiveSubscription returns the subscription with the latest ExpiresAt
	// among those still active at now, or nil when none is active.
	ActiveSubscription(ctx context.Context, accountID string, now time.Time) (*Subscription, error)

	// Subscriptions returns the account's full subscription history, most
	// recent first.
	Subscriptions(ctx context.Context, accountID string) ([]Subscription, error)
}
