package billing

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/tavolohq/tavolo/internal/logging"
	"github.com/tavolohq/tavolo/internal/metrics"
)

// StripeWebhook verifies and dispatches Stripe events into the billing
// service. The tenant is carried in the subscription metadata set at
// checkout time.
type StripeWebhook struct {
	service       *Service
	signingSecret string
}

func NewStripeWebhook(service *Service, signingSecret string) *StripeWebhook {
	return &StripeWebhook{service: service, signingSecret: signingSecret}
}

// RegisterRoutes mounts the webhook endpoint. It must be registered
// outside the tenant-resolution middleware: the caller is Stripe.
func (w *StripeWebhook) RegisterRoutes(r gin.IRouter) {
	r.POST("/webhook/stripe", w.handleEvent)
}

const maxWebhookBody = 64 << 10

func (w *StripeWebhook) handleEvent(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read_failed", "message": "could not read request body"})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), w.signingSecret)
	if err != nil {
		logging.L(c.Request.Context()).Warn("stripe signature verification failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature", "message": "signature verification failed"})
		return
	}

	metrics.BillingEventsTotal.WithLabelValues(string(event.Type)).Inc()
	ctx := c.Request.Context()

	switch event.Type {
	case "customer.subscription.created":
		var sub stripe.Subscription
		if err = json.Unmarshal(event.Data.Raw, &sub); err == nil {
			tenantID := sub.Metadata["tenant_id"]
			if tenantID == "" {
				logging.L(ctx).Warn("subscription event without tenant metadata", "subscription", sub.ID)
				break
			}
			err = w.service.ApplySubscriptionCreated(ctx, tenantID, subscriptionEvent(&sub))
		}
	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err = json.Unmarshal(event.Data.Raw, &sub); err == nil {
			err = w.service.ApplySubscriptionUpdated(ctx, subscriptionEvent(&sub))
		}
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err = json.Unmarshal(event.Data.Raw, &sub); err == nil {
			err = w.service.ApplySubscriptionDeleted(ctx, customerID(&sub), sub.ID)
		}
	case "invoice.payment_succeeded":
		var inv stripe.Invoice
		if err = json.Unmarshal(event.Data.Raw, &inv); err == nil {
			err = w.service.ApplyPaymentSucceeded(ctx, paymentEvent(&inv, inv.AmountPaid))
		}
	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err = json.Unmarshal(event.Data.Raw, &inv); err == nil {
			err = w.service.ApplyPaymentFailed(ctx, paymentEvent(&inv, inv.AmountDue))
		}
	default:
		// Acknowledge event types we do not act on so Stripe stops
		// retrying them.
	}

	if err != nil {
		logging.L(ctx).Error("stripe event handling failed", "type", event.Type, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event_failed", "message": "event could not be processed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func subscriptionEvent(sub *stripe.Subscription) SubscriptionEvent {
	ev := SubscriptionEvent{
		CustomerID:     customerID(sub),
		SubscriptionID: sub.ID,
		StripeStatus:   string(sub.Status),
		PlanCode:       sub.Metadata["plan_code"],
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		ev.TrialEnd = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		ev.PeriodEnd = &t
	}
	return ev
}

func paymentEvent(inv *stripe.Invoice, amountCents int64) PaymentEvent {
	ev := PaymentEvent{
		InvoiceID:   inv.ID,
		AmountCents: amountCents,
	}
	if inv.Customer != nil {
		ev.CustomerID = inv.Customer.ID
	}
	if inv.Subscription != nil {
		ev.SubscriptionID = inv.Subscription.ID
	}
	if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil {
		if end := inv.Lines.Data[0].Period.End; end > 0 {
			t := time.Unix(end, 0).UTC()
			ev.PeriodEnd = &t
		}
	}
	return ev
}

func customerID(sub *stripe.Subscription) string {
	if sub.Customer != nil {
		return sub.Customer.ID
	}
	return ""
}
