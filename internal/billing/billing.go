// Package billing tracks tenant subscriptions and the payment ledger.
// It consumes normalized payment-processor events; it never calls out to
// the processor itself.
package billing

import (
	"errors"
	"time"
)

// Errors
var (
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	ErrPlanNotFound         = errors.New("billing: plan not found")
	ErrSubscriptionExists   = errors.New("billing: tenant already has a live subscription")
)

// Status represents a subscription's lifecycle state.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCanceled  Status = "canceled"
	StatusSuspended Status = "suspended"
)

// Live returns true for every status except canceled. A tenant holds at
// most one live subscription at a time; canceled rows are kept for history.
func (s Status) Live() bool {
	return s != StatusCanceled && s != ""
}

// Entitled returns true when the subscription grants plan entitlements.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrial
}

// Subscription binds a tenant to a plan.
type Subscription struct {
	ID                   string     `json:"id"`
	TenantID             string     `json:"tenantId"`
	PlanCode             string     `json:"planCode"`
	Status               Status     `json:"status"`
	StripeCustomerID     string     `json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string     `json:"stripeSubscriptionId,omitempty"`
	TrialEndsAt          *time.Time `json:"trialEndsAt,omitempty"`
	NextBillingAt        *time.Time `json:"nextBillingAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// PaymentStatus is the outcome of one invoice payment attempt.
type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment is one ledger entry for an invoice payment attempt.
type Payment struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"tenantId"`
	SubscriptionID  string        `json:"subscriptionId"`
	StripeInvoiceID string        `json:"stripeInvoiceId"`
	AmountCents     int64         `json:"amountCents"`
	Status          PaymentStatus `json:"status"`
	PaidAt          *time.Time    `json:"paidAt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}
