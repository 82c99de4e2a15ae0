// Package entitlement answers "may tenant X do Y" questions against the
// tenant's current plan, and meters resource consumption.
package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/tavolohq/tavolo/internal/billing"
	"github.com/tavolohq/tavolo/internal/logging"
	"github.com/tavolohq/tavolo/internal/metrics"
)

// StatusNone is reported for tenants with no subscription row at all.
const StatusNone = "none"

// SubscriptionSource provides the tenant's live subscription.
type SubscriptionSource interface {
	GetLiveByTenant(ctx context.Context, tenantID string) (*billing.Subscription, error)
}

// UsageCounter reports the current live count of a metered resource for
// a tenant, queried from the owning store. Limits are checked against
// live counts rather than cached figures so enforcement never drifts
// from truth.
type UsageCounter func(ctx context.Context, tenantID string) (int, error)

// Engine evaluates plan features and limits for tenants.
type Engine struct {
	subs     SubscriptionSource
	usage    UsageStore
	counters map[string]UsageCounter
}

func NewEngine(subs SubscriptionSource, usage UsageStore) *Engine {
	return &Engine{
		subs:     subs,
		usage:    usage,
		counters: make(map[string]UsageCounter),
	}
}

// RegisterCounter binds a live-count query to a resource name. The
// floor store registers one for max_tables; user and menu stores
// register theirs the same way.
func (e *Engine) RegisterCounter(resource string, counter UsageCounter) {
	e.counters[resource] = counter
}

// Plan resolves the plan governing the tenant right now. Tenants with
// no subscription row fall back to the default plan, which lets a
// restaurant be evaluated before any billing is set up.
func (e *Engine) Plan(ctx context.Context, tenantID string) (*billing.Plan, error) {
	sub, err := e.subs.GetLiveByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return billing.PlanByCode(billing.DefaultPlanCode)
		}
		return nil, err
	}
	plan, err := billing.PlanByCode(sub.PlanCode)
	if err != nil {
		// A subscription referencing a retired plan code still gets
		// the default plan rather than an outage.
		logging.L(ctx).Warn("subscription has unknown plan code, using default",
			"tenant_id", tenantID,
			"plan_code", sub.PlanCode)
		return billing.PlanByCode(billing.DefaultPlanCode)
	}
	return plan, nil
}

// HasFeature reports whether the tenant's plan includes the feature.
func (e *Engine) HasFeature(ctx context.Context, tenantID, feature string) (bool, error) {
	plan, err := e.Plan(ctx, tenantID)
	if err != nil {
		return false, err
	}
	ok := plan.HasFeature(feature)
	outcome := "denied"
	if ok {
		outcome = "allowed"
	}
	metrics.EntitlementChecksTotal.WithLabelValues(feature, outcome).Inc()
	return ok, nil
}

// HasReachedLimit reports whether the tenant is at or over the plan
// limit for the resource. When the caller already holds the current
// count it passes it in and no counting query runs.
func (e *Engine) HasReachedLimit(ctx context.Context, tenantID, resource string, current ...int) (bool, error) {
	plan, err := e.Plan(ctx, tenantID)
	if err != nil {
		return false, err
	}
	limit, known := plan.Limit(resource)
	if !known {
		// No limit configured for this resource name: permissive by
		// default, but loudly so.
		logging.L(ctx).Warn("limit check for unknown resource", "resource", resource, "tenant_id", tenantID)
		metrics.EntitlementUnknownResourceTotal.WithLabelValues(resource).Inc()
		return false, nil
	}
	if limit == billing.Unlimited {
		return false, nil
	}

	var value int
	if len(current) > 0 {
		value = current[0]
	} else {
		value, err = e.CurrentUsage(ctx, tenantID, resource)
		if err != nil {
			return false, err
		}
	}

	reached := value >= limit
	outcome := "allowed"
	if reached {
		outcome = "limit_reached"
	}
	metrics.EntitlementChecksTotal.WithLabelValues(resource, outcome).Inc()
	return reached, nil
}

// CurrentUsage returns the live count for a resource: a registered
// counter when one exists, or the current calendar month's metered
// total for period-based resources.
func (e *Engine) CurrentUsage(ctx context.Context, tenantID, resource string) (int, error) {
	if counter, ok := e.counters[resource]; ok {
		return counter(ctx, tenantID)
	}
	if resource == billing.ResourceMaxMonthlyOrders {
		now := time.Now().UTC()
		return e.usage.MonthTotal(ctx, tenantID, resource, now.Year(), now.Month())
	}
	logging.L(ctx).Warn("usage query for unknown resource", "resource", resource, "tenant_id", tenantID)
	metrics.EntitlementUnknownResourceTotal.WithLabelValues(resource).Inc()
	return 0, nil
}

// RecordUsage increments the tenant's metered counter for today. The
// store upsert is atomic so concurrent increments never lose counts.
func (e *Engine) RecordUsage(ctx context.Context, tenantID, resource string, count int) error {
	if count <= 0 {
		count = 1
	}
	return e.usage.Increment(ctx, tenantID, resource, time.Now().UTC(), count)
}

// SubscriptionStatus returns the tenant's live subscription status, or
// "none" when no subscription row exists.
func (e *Engine) SubscriptionStatus(ctx context.Context, tenantID string) (string, error) {
	sub, err := e.subs.GetLiveByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return StatusNone, nil
		}
		return "", err
	}
	return string(sub.Status), nil
}

// IsActive reports whether the tenant is entitled to use the product,
// meaning an active or trial subscription.
func (e *Engine) IsActive(ctx context.Context, tenantID string) (bool, error) {
	status, err := e.SubscriptionStatus(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return billing.Status(status).Entitled(), nil
}
