package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"typerush/internal/auth"
	"typerush/internal/payment"
	"typerush/internal/service"
)

const webhookTimeout = 30 * time.Second

// PaymentHandler serves checkout creation and payment webhooks.
type PaymentHandler struct {
	payments *service.PaymentService
	webhooks *payment.WebhookValidator
	pending  sync.WaitGroup
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService, webhooks *payment.WebhookValidator) *PaymentHandler {
	return &PaymentHandler{payments: payments, webhooks: webhooks}
}

type checkoutRequest struct {
	Hearts int `json:"hearts"`
}

type catalogResponse struct {
	PricePerHeart string `json:"price_per_heart"`
	Currency      string `json:"currency"`
	MinHearts     int    `json:"min_hearts"`
	MaxHearts     int    `json:"max_hearts"`
	QuickPicks    []int  `json:"quick_picks"`
}

// HandleCatalog returns heart pricing for the purchase screen.
func (h *PaymentHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	c := h.payments.Catalog()
	writeJSON(w, http.StatusOK, catalogResponse{
		PricePerHeart: c.PricePerHeart.StringFixed(2),
		Currency:      c.Currency,
		MinHearts:     payment.MinHearts,
		MaxHearts:     payment.MaxHearts,
		QuickPicks:    payment.QuickPicks,
	})
}

// HandleCheckout creates a checkout configuration for the requested hearts.
func (h *PaymentHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	req := checkoutRequest{Hearts: 1}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	userID := auth.UserID(r.Context())
	co, err := h.payments.CreateCheckout(r.Context(), userID, req.Hearts)
	if err != nil {
		var apiErr *payment.APIError
		if errors.As(err, &apiErr) {
			log.Ctx(r.Context()).Error().Err(err).Str("user_id", userID).Msg("Checkout creation rejected by platform")
			WriteMessage(w, http.StatusBadGateway, "failed to create checkout")
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, co)
}

// HandleWebhook validates a platform webhook, acknowledges it at once and
// processes it in the background. Processing errors are only logged.
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	wh, err := h.webhooks.Validate(r)
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("Rejected webhook")
		switch {
		case errors.Is(err, payment.ErrMissingSignature),
			errors.Is(err, payment.ErrBadSignature),
			errors.Is(err, payment.ErrStaleWebhook):
			WriteMessage(w, http.StatusUnauthorized, "invalid signature")
		default:
			WriteMessage(w, http.StatusBadRequest, "invalid webhook")
		}
		return
	}

	ctx := context.WithoutCancel(r.Context())
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
		defer cancel()
		if err := h.payments.HandleWebhook(ctx, wh); err != nil {
			log.Ctx(ctx).Error().
				Err(err).
				Str("action", wh.Action).
				Str("payment_id", wh.Data.ID).
				Msg("Failed to process webhook")
		}
	}()

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// Wait blocks until in-flight webhook processing finishes or ctx is done.
func (h *PaymentHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
