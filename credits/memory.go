package credits

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	gate "github.com/mark3labs/x402-gate"
)

// MemoryStore is an in-memory Store for tests and single-node development.
// Safe for concurrent use; a single mutex gives Apply its atomicity.
type MemoryStore struct {
	mu            sync.Mutex
	balances      map[string]int64
	transactions  map[string][]CreditTransaction
	subscriptions map[string][]Subscription
	now           func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:      make(map[string]int64),
		transactions:  make(map[string][]CreditTransaction),
		subscriptions: make(map[string][]Subscription),
		now:           time.Now,
	}
}

func (s *MemoryStore) Apply(ctx context.Context, req ApplyRequest) (CreditTransaction, error) {
	if req.AccountID == "" {
		return CreditTransaction{}, fmt.Errorf("apply: account id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !req.ForbidKindAfter.IsZero() {
		for _, tx := range s.transactions[req.AccountID] {
			if tx.Kind == req.Kind && tx.CreatedAt.After(req.ForbidKindAfter) {
				return CreditTransaction{}, gate.ErrClaimNotYetEligible
			}
		}
	}

	balance := s.balances[req.AccountID]
	newBalance := balance + req.Amount
	if req.RequireNonNegative && newBalance < 0 {
		return CreditTransaction{}, gate.ErrInsufficientCredits
	}

	tx := CreditTransaction{
		ID:           uuid.NewString(),
		AccountID:    req.AccountID,
		Amount:       req.Amount,
		BalanceAfter: newBalance,
		Kind:         req.Kind,
		ServiceID:    req.ServiceID,
		Description:  req.Description,
		Metadata:     req.Metadata,
		CreatedAt:    s.now().UTC(),
	}

	s.balances[req.AccountID] = newBalance
	s.transactions[req.AccountID] = append(s.transactions[req.AccountID], tx)
	return tx, nil
}

func (s *MemoryStore) Balance(ctx context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[accountID], nil
}

func (s *MemoryStore) Transactions(ctx context.Context, accountID string, limit int) ([]CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.transactions[accountID]
	result := make([]CreditTransaction, 0, limit)
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, all[i])
	}
	return result, nil
}

func (s *MemoryStore) LastTransactionOfKind(ctx context.Context, accountID string, kind TransactionKind) (*CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.transactions[accountID]
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Kind == kind {
			tx := all[i]
			return &tx, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.CreatedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.AccountID] = append(s.subscriptions[sub.AccountID], sub)
	return sub, nil
}

func (s *MemoryStore) ActiveSubscription(ctx context.Context, accountID string, now time.Time) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active *Subscription
	for i := range s.subscriptions[accountID] {
		sub := s.subscriptions[accountID][i]
		if !sub.Active(now) {
			continue
		}
		if active == nil || sub.ExpiresAt.After(active.ExpiresAt) {
			copied := sub
			active = &copied
		}
	}
	return active, nil
}

func (s *MemoryStore) Subscriptions(ctx context.Context, accountID string) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Subscription, len(s.subscriptions[accountID]))
	copy(result, s.subscriptions[accountID])
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
