package billing

import "context"

// Store persists subscriptions and the payment ledger.
type Store interface {
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	// GetLiveByTenant returns the tenant's single non-canceled subscription.
	GetLiveByTenant(ctx context.Context, tenantID string) (*Subscription, error)
	// GetByStripeRefs locates a subscription by processor identifiers.
	GetByStripeRefs(ctx context.Context, customerID, subscriptionID string) (*Subscription, error)
	UpdateSubscription(ctx context.Context, s *Subscription) error
	ListByTenant(ctx context.Context, tenantID string) ([]*Subscription, error)

	RecordPayment(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, tenantID string, limit int) ([]*Payment, error)
}
