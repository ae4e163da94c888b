package credits

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	gate "github.com/mark3labs/x402-gate"
)

// PostgresStore implements Store backed by PostgreSQL. Apply runs the guard
// checks, the balance update, and the transaction append inside one database
// transaction with the balance row locked, so concurrent mutations serialize
// per account and the ledger invariant cannot be violated across instances.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store using the provided database handle.
// The caller owns the handle and the driver registration (lib/pq).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS credit_balances (
	account_id TEXT PRIMARY KEY,
	balance    BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS credit_transactions (
	id            UUID PRIMARY KEY,
	account_id    TEXT NOT NULL,
	amount        BIGINT NOT NULL,
	balance_after BIGINT NOT NULL,
	kind          TEXT NOT NULL,
	service_id    TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	metadata      JSONB,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS credit_transactions_account_idx
	ON credit_transactions (account_id, created_at DESC);

CREATE TABLE IF NOT EXISTS subscriptions (
	id               UUID PRIMARY KEY,
	account_id       TEXT NOT NULL,
	tier             TEXT NOT NULL,
	price_usd        TEXT NOT NULL,
	discount_percent INT NOT NULL,
	credits_per_month BIGINT NOT NULL,
	starts_at        TIMESTAMPTZ NOT NULL,
	expires_at       TIMESTAMPTZ NOT NULL,
	transaction_hash TEXT NOT NULL DEFAULT '',
	payment_network  TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS subscriptions_account_idx
	ON subscriptions (account_id, expires_at DESC);
`

// Migrate creates the ledger tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run credits migration: %w", err)
	}
	return nil
}

func (s *PostgresStore) Apply(ctx context.Context, req ApplyRequest) (CreditTransaction, error) {
	if req.AccountID == "" {
		return CreditTransaction{}, fmt.Errorf("apply: account id is required")
	}

	metadataJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		return CreditTransaction{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CreditTransaction{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_balances (account_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (account_id) DO NOTHING
	`, req.AccountID); err != nil {
		return CreditTransaction{}, err
	}

	var balance int64
	if err := tx.QueryRowContext(ctx, `
		SELECT balance FROM credit_balances
		WHERE account_id = $1
		FOR UPDATE
	`, req.AccountID).Scan(&balance); err != nil {
		return CreditTransaction{}, err
	}

	if !req.ForbidKindAfter.IsZero() {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM credit_transactions
				WHERE account_id = $1 AND kind = $2 AND created_at > $3
			)
		`, req.AccountID, string(req.Kind), req.ForbidKindAfter.UTC()).Scan(&exists); err != nil {
			return CreditTransaction{}, err
		}
		if exists {
			return CreditTransaction{}, gate.ErrClaimNotYetEligible
		}
	}

	newBalance := balance + req.Amount
	if req.RequireNonNegative && newBalance < 0 {
		return CreditTransaction{}, gate.ErrInsufficientCredits
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE credit_balances SET balance = $2 WHERE account_id = $1
	`, req.AccountID, newBalance); err != nil {
		return CreditTransaction{}, err
	}

	record := CreditTransaction{
		ID:           uuid.NewString(),
		AccountID:    req.AccountID,
		Amount:       req.Amount,
		BalanceAfter: newBalance,
		Kind:         req.Kind,
		ServiceID:    req.ServiceID,
		Description:  req.Description,
		Metadata:     req.Metadata,
		CreatedAt:    time.Now().UTC(),
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions
			(id, account_id, amount, balance_after, kind, service_id, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, record.ID, record.AccountID, record.Amount, record.BalanceAfter,
		string(record.Kind), record.ServiceID, record.Description, metadataJSON, record.CreatedAt); err != nil {
		return CreditTransaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return CreditTransaction{}, err
	}
	return record, nil
}

func (s *PostgresStore) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT balance FROM credit_balances WHERE account_id = $1
	`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *PostgresStore) Transactions(ctx context.Context, accountID string, limit int) ([]CreditTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, amount, balance_after, kind, service_id, description, metadata, created_at
		FROM credit_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CreditTransaction
	for rows.Next() {
		var (
			tx          CreditTransaction
			kind        string
			metadataRaw []byte
		)
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Amount, &tx.BalanceAfter,
			&kind, &tx.ServiceID, &tx.Description, &metadataRaw, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Kind = TransactionKind(kind)
		if len(metadataRaw) > 0 {
			_ = json.Unmarshal(metadataRaw, &tx.Metadata)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func (s *PostgresStore) LastTransactionOfKind(ctx context.Context, accountID string, kind TransactionKind) (*CreditTransaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, amount, balance_after, kind, service_id, description, metadata, created_at
		FROM credit_transactions
		WHERE account_id = $1 AND kind = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, accountID, string(kind))

	var (
		tx          CreditTransaction
		kindRaw     string
		metadataRaw []byte
	)
	err := row.Scan(&tx.ID, &tx.AccountID, &tx.Amount, &tx.BalanceAfter,
		&kindRaw, &tx.ServiceID, &tx.Description, &metadataRaw, &tx.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tx.Kind = TransactionKind(kindRaw)
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &tx.Metadata)
	}
	return &tx, nil
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions
			(id, account_id, tier, price_usd, discount_percent, credits_per_month,
			 starts_at, expires_at, transaction_hash, payment_network, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sub.ID, sub.AccountID, string(sub.Tier), sub.PriceUSD, sub.DiscountPercent,
		sub.CreditsPerMonth, sub.StartsAt, sub.ExpiresAt, sub.TransactionHash,
		sub.PaymentNetwork, sub.CreatedAt)
	if err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

func (s *PostgresStore) ActiveSubscription(ctx context.Context, accountID string, now time.Time) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, tier, price_usd, discount_percent, credits_per_month,
		       starts_at, expires_at, transaction_hash, payment_network, created_at
		FROM subscriptions
		WHERE account_id = $1 AND expires_at > $2
		ORDER BY expires_at DESC
		LIMIT 1
	`, accountID, now)

	sub, err := scanSubscription(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *PostgresStore) Subscriptions(ctx context.Context, accountID string) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, tier, price_usd, discount_percent, credits_per_month,
		       starts_at, expires_at, transaction_hash, payment_network, created_at
		FROM subscriptions
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

func scanSubscription(scan func(...interface{}) error) (Subscription, error) {
	var (
		sub  Subscription
		tier string
	)
	err := scan(&sub.ID, &sub.AccountID, &tier, &sub.PriceUSD, &sub.DiscountPercent,
		&sub.CreditsPerMonth, &sub.StartsAt, &sub.ExpiresAt, &sub.TransactionHash,
		&sub.PaymentNetwork, &sub.CreatedAt)
	if err != nil {
		return Subscription{}, err
	}
	sub.Tier = Tier(tier)
	return sub, nil
}
