package billing

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists subscriptions and payments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed billing store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const subscriptionColumns = `id, tenant_id, plan_code, status, stripe_customer_id,
	stripe_subscription_id, trial_ends_at, next_billing_at, created_at, updated_at`

func (p *PostgresStore) CreateSubscription(ctx context.Context, s *Subscription) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, tenant_id, plan_code, status, stripe_customer_id,
			stripe_subscription_id, trial_ends_at, next_billing_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10)`,
		s.ID, s.TenantID, s.PlanCode, string(s.Status), s.StripeCustomerID,
		s.StripeSubscriptionID, s.TrialEndsAt, s.NextBillingAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		// The partial unique index on (tenant_id) over live statuses
		// enforces the one-live-subscription invariant.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrSubscriptionExists
		}
		return err
	}
	return nil
}

func (p *PostgresStore) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	return p.scanSubscription(p.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
}

func (p *PostgresStore) GetLiveByTenant(ctx context.Context, tenantID string) (*Subscription, error) {
	return p.scanSubscription(p.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE tenant_id = $1 AND status != 'canceled'`, tenantID))
}

func (p *PostgresStore) GetByStripeRefs(ctx context.Context, customerID, subscriptionID string) (*Subscription, error) {
	return p.scanSubscription(p.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE stripe_customer_id = $1 AND stripe_subscription_id = $2`, customerID, subscriptionID))
}

func (p *PostgresStore) UpdateSubscription(ctx context.Context, s *Subscription) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE subscriptions SET plan_code = $1, status = $2,
			stripe_customer_id = NULLIF($3, ''), stripe_subscription_id = NULLIF($4, ''),
			trial_ends_at = $5, next_billing_at = $6, updated_at = $7
		WHERE id = $8`,
		s.PlanCode, string(s.Status), s.StripeCustomerID, s.StripeSubscriptionID,
		s.TrialEndsAt, s.NextBillingAt, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (p *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Subscription
	for rows.Next() {
		s, err := scanSubscriptionFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) RecordPayment(ctx context.Context, pay *Payment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscription_payments (id, tenant_id, subscription_id, stripe_invoice_id,
			amount_cents, status, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pay.ID, pay.TenantID, pay.SubscriptionID, pay.StripeInvoiceID,
		pay.AmountCents, string(pay.Status), pay.PaidAt, pay.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListPayments(ctx context.Context, tenantID string, limit int) ([]*Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, subscription_id, stripe_invoice_id, amount_cents, status, paid_at, created_at
		FROM subscription_payments
		WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Payment
	for rows.Next() {
		pay := &Payment{}
		var status string
		var paidAt sql.NullTime
		if err := rows.Scan(&pay.ID, &pay.TenantID, &pay.SubscriptionID, &pay.StripeInvoiceID,
			&pay.AmountCents, &status, &paidAt, &pay.CreatedAt); err != nil {
			return nil, err
		}
		pay.Status = PaymentStatus(status)
		if paidAt.Valid {
			pay.PaidAt = &paidAt.Time
		}
		out = append(out, pay)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanSubscription(row *sql.Row) (*Subscription, error) {
	s, err := scanSubscriptionFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	return s, err
}

func scanSubscriptionFrom(r rowScanner) (*Subscription, error) {
	s := &Subscription{}
	var (
		status                   string
		customerID, stripeSubID  sql.NullString
		trialEndsAt, nextBilling sql.NullTime
	)
	err := r.Scan(&s.ID, &s.TenantID, &s.PlanCode, &status, &customerID, &stripeSubID,
		&trialEndsAt, &nextBilling, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = Status(status)
	s.StripeCustomerID = customerID.String
	s.StripeSubscriptionID = stripeSubID.String
	if trialEndsAt.Valid {
		s.TrialEndsAt = &trialEndsAt.Time
	}
	if nextBilling.Valid {
		s.NextBillingAt = &nextBilling.Time
	}
	return s, nil
}

var _ Store = (*PostgresStore)(nil)
