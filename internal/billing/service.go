package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tavolohq/tavolo/internal/idgen"
	"github.com/tavolohq/tavolo/internal/logging"
	"github.com/tavolohq/tavolo/internal/metrics"
)

// Service coordinates subscription lifecycle: trial onboarding, plan
// changes, and the state carried in from Stripe webhook events.
type Service struct {
	store     Store
	trialDays int
}

func NewService(store Store, trialDays int) *Service {
	if trialDays <= 0 {
		trialDays = 15
	}
	return &Service{store: store, trialDays: trialDays}
}

// StartTrial opens a trial subscription on the basic plan for a freshly
// onboarded tenant. A tenant that already holds a live subscription is
// left untouched.
func (s *Service) StartTrial(ctx context.Context, tenantID string) error {
	now := time.Now().UTC()
	trialEnd := now.AddDate(0, 0, s.trialDays)
	sub := &Subscription{
		ID:          idgen.WithPrefix("sub_"),
		TenantID:    tenantID,
		PlanCode:    DefaultPlanCode,
		Status:      StatusTrial,
		TrialEndsAt: &trialEnd,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, ErrSubscriptionExists) {
			return nil
		}
		return fmt.Errorf("start trial: %w", err)
	}
	logging.L(ctx).Info("trial started",
		"tenant_id", tenantID,
		"plan", sub.PlanCode,
		"trial_ends_at", trialEnd)
	return nil
}

// ChangePlan moves the tenant's live subscription to a different plan.
// It reports whether the move is an upgrade so callers can decide
// whether to apply it immediately or at the next billing boundary.
func (s *Service) ChangePlan(ctx context.Context, tenantID, planCode string) (*Subscription, bool, error) {
	plan, err := PlanByCode(planCode)
	if err != nil {
		return nil, false, err
	}
	sub, err := s.store.GetLiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	upgrade := false
	if current, err := PlanByCode(sub.PlanCode); err == nil {
		upgrade = plan.Level > current.Level
	}

	sub.PlanCode = plan.Code
	sub.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, false, err
	}
	logging.L(ctx).Info("plan changed",
		"tenant_id", tenantID,
		"to", plan.Code,
		"upgrade", upgrade)
	return sub, upgrade, nil
}

// Subscription returns the tenant's live subscription.
func (s *Service) Subscription(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.store.GetLiveByTenant(ctx, tenantID)
}

// Payments returns the tenant's most recent payments.
func (s *Service) Payments(ctx context.Context, tenantID string, limit int) ([]*Payment, error) {
	return s.store.ListPayments(ctx, tenantID, limit)
}

// MapStripeStatus translates a Stripe subscription status into ours.
func MapStripeStatus(stripeStatus string) Status {
	switch stripeStatus {
	case "trialing":
		return StatusTrial
	case "active":
		return StatusActive
	case "past_due":
		return StatusPastDue
	case "canceled", "unpaid":
		return StatusCanceled
	default:
		return StatusSuspended
	}
}

// SubscriptionEvent carries the fields we act on from a Stripe
// customer.subscription.* event.
type SubscriptionEvent struct {
	CustomerID     string
	SubscriptionID string
	StripeStatus   string
	PlanCode       string
	TrialEnd       *time.Time
	PeriodEnd      *time.Time
}

// ApplySubscriptionCreated records a subscription that was opened on
// Stripe's side, typically after a checkout session completes. The
// tenant is identified by the customer reference stored at checkout.
func (s *Service) ApplySubscriptionCreated(ctx context.Context, tenantID string, ev SubscriptionEvent) error {
	now := time.Now().UTC()

	// Checkout completing for a tenant already on trial converts the
	// trial in place rather than opening a second subscription.
	existing, err := s.store.GetLiveByTenant(ctx, tenantID)
	if err == nil {
		existing.PlanCode = planCodeOrDefault(ev.PlanCode, existing.PlanCode)
		existing.Status = MapStripeStatus(ev.StripeStatus)
		existing.StripeCustomerID = ev.CustomerID
		existing.StripeSubscriptionID = ev.SubscriptionID
		existing.TrialEndsAt = ev.TrialEnd
		existing.NextBillingAt = ev.PeriodEnd
		existing.UpdatedAt = now
		return s.store.UpdateSubscription(ctx, existing)
	}
	if !errors.Is(err, ErrSubscriptionNotFound) {
		return err
	}

	sub := &Subscription{
		ID:                   idgen.WithPrefix("sub_"),
		TenantID:             tenantID,
		PlanCode:             planCodeOrDefault(ev.PlanCode, DefaultPlanCode),
		Status:               MapStripeStatus(ev.StripeStatus),
		StripeCustomerID:     ev.CustomerID,
		StripeSubscriptionID: ev.SubscriptionID,
		TrialEndsAt:          ev.TrialEnd,
		NextBillingAt:        ev.PeriodEnd,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	return s.store.CreateSubscription(ctx, sub)
}

// ApplySubscriptionUpdated syncs status, plan and billing dates from a
// customer.subscription.updated event.
func (s *Service) ApplySubscriptionUpdated(ctx context.Context, ev SubscriptionEvent) error {
	sub, err := s.store.GetByStripeRefs(ctx, ev.CustomerID, ev.SubscriptionID)
	if err != nil {
		return err
	}
	sub.PlanCode = planCodeOrDefault(ev.PlanCode, sub.PlanCode)
	sub.Status = MapStripeStatus(ev.StripeStatus)
	sub.TrialEndsAt = ev.TrialEnd
	sub.NextBillingAt = ev.PeriodEnd
	sub.UpdatedAt = time.Now().UTC()
	return s.store.UpdateSubscription(ctx, sub)
}

// ApplySubscriptionDeleted marks the subscription canceled.
func (s *Service) ApplySubscriptionDeleted(ctx context.Context, customerID, subscriptionID string) error {
	sub, err := s.store.GetByStripeRefs(ctx, customerID, subscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil
		}
		return err
	}
	sub.Status = StatusCanceled
	sub.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	logging.L(ctx).Info("subscription canceled",
		"tenant_id", sub.TenantID,
		"subscription_id", sub.ID)
	return nil
}

// PaymentEvent carries the fields we act on from a Stripe invoice event.
type PaymentEvent struct {
	CustomerID     string
	SubscriptionID string
	InvoiceID      string
	AmountCents    int64
	PeriodEnd      *time.Time
}

// ApplyPaymentSucceeded records the payment and advances the billing
// date. A past_due subscription recovers to active.
func (s *Service) ApplyPaymentSucceeded(ctx context.Context, ev PaymentEvent) error {
	sub, err := s.store.GetByStripeRefs(ctx, ev.CustomerID, ev.SubscriptionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	pay := &Payment{
		ID:              idgen.WithPrefix("pay_"),
		TenantID:        sub.TenantID,
		SubscriptionID:  sub.ID,
		StripeInvoiceID: ev.InvoiceID,
		AmountCents:     ev.AmountCents,
		Status:          PaymentSucceeded,
		PaidAt:          &now,
		CreatedAt:       now,
	}
	if err := s.store.RecordPayment(ctx, pay); err != nil {
		return err
	}

	sub.Status = StatusActive
	sub.NextBillingAt = ev.PeriodEnd
	sub.UpdatedAt = now
	metrics.BillingEventsTotal.WithLabelValues("payment_succeeded").Inc()
	return s.store.UpdateSubscription(ctx, sub)
}

// ApplyPaymentFailed records the failed attempt and flags the
// subscription past_due.
func (s *Service) ApplyPaymentFailed(ctx context.Context, ev PaymentEvent) error {
	sub, err := s.store.GetByStripeRefs(ctx, ev.CustomerID, ev.SubscriptionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	pay := &Payment{
		ID:              idgen.WithPrefix("pay_"),
		TenantID:        sub.TenantID,
		SubscriptionID:  sub.ID,
		StripeInvoiceID: ev.InvoiceID,
		AmountCents:     ev.AmountCents,
		Status:          PaymentFailed,
		CreatedAt:       now,
	}
	if err := s.store.RecordPayment(ctx, pay); err != nil {
		return err
	}

	sub.Status = StatusPastDue
	sub.UpdatedAt = now
	metrics.BillingEventsTotal.WithLabelValues("payment_failed").Inc()
	logging.L(ctx).Warn("payment failed, subscription past due",
		"tenant_id", sub.TenantID,
		"invoice_id", ev.InvoiceID)
	return s.store.UpdateSubscription(ctx, sub)
}

func planCodeOrDefault(code, fallback string) string {
	if ValidPlan(code) {
		return code
	}
	return fallback
}
