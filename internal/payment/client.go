package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"typerush/internal/model"
)

// ClientOptions configures the platform REST client.
type ClientOptions struct {
	BaseURL   string
	APIKey    string
	CompanyID string
	// CheckoutURLTemplate builds the purchase link when the API omits one.
	// {plan_id} and {checkout_id} are substituted.
	CheckoutURLTemplate string
	Timeout             time.Duration
	HTTPClient          *http.Client
}

// Client creates checkout configurations on the payment platform.
type Client struct {
	opts    ClientOptions
	http    *http.Client
	catalog *Catalog
}

// NewClient creates a platform client.
func NewClient(opts ClientOptions, catalog *Catalog) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{opts: opts, http: hc, catalog: catalog}
}

// Checkout identifies a created checkout configuration.
type Checkout struct {
	ID          string `json:"checkout_id"`
	PlanID      string `json:"plan_id"`
	PurchaseURL string `json:"purchase_url"`
	Hearts      int    `json:"hearts"`
	Amount      string `json:"amount"`
	Session     string `json:"session"`
}

type checkoutPlan struct {
	CompanyID    string      `json:"company_id"`
	InitialPrice json.Number `json:"initial_price"`
	PlanType     string      `json:"plan_type"`
	Currency     string      `json:"currency"`
}

type checkoutRequest struct {
	Plan     checkoutPlan      `json:"plan"`
	Metadata map[string]string `json:"metadata"`
}

type checkoutResponse struct {
	ID          string `json:"id"`
	PurchaseURL string `json:"purchase_url"`
	Plan        struct {
		ID string `json:"id"`
	} `json:"plan"`
}

// Metadata keys attached to every checkout and echoed back in webhooks.
const (
	MetaPaymentType = "payment_type"
	MetaHearts      = "hearts"
	MetaUserID      = "user_id"
	MetaGameSession = "game_session"
)

// CreateCheckoutConfig creates a one-time plan for hearts and returns the
// identifiers the client needs to open the purchase.
func (c *Client) CreateCheckoutConfig(ctx context.Context, userID string, hearts int) (*Checkout, error) {
	if err := c.catalog.Validate(hearts); err != nil {
		return nil, err
	}

	price := c.catalog.Price(hearts)
	session := uuid.NewString()

	body := checkoutRequest{
		Plan: checkoutPlan{
			CompanyID:    c.opts.CompanyID,
			InitialPrice: json.Number(price.StringFixed(2)),
			PlanType:     "one_time",
			Currency:     c.catalog.Currency,
		},
		Metadata: map[string]string{
			MetaPaymentType: model.PaymentTypeGameContinue,
			MetaHearts:      strconv.Itoa(hearts),
			MetaUserID:      userID,
			MetaGameSession: session,
		},
	}

	var resp checkoutResponse
	if err := c.do(ctx, http.MethodPost, "/checkout_configurations", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to create checkout configuration: %w", err)
	}
	if resp.ID == "" || resp.Plan.ID == "" {
		return nil, fmt.Errorf("failed to create checkout configuration: response missing ids")
	}

	purchaseURL := resp.PurchaseURL
	if purchaseURL == "" {
		purchaseURL = strings.NewReplacer(
			"{plan_id}", resp.Plan.ID,
			"{checkout_id}", resp.ID,
		).Replace(c.opts.CheckoutURLTemplate)
	}

	log.Info().
		Str("user_id", userID).
		Int("hearts", hearts).
		Str("amount", price.StringFixed(2)).
		Str("checkout_id", resp.ID).
		Msg("Checkout configuration created")

	return &Checkout{
		ID:          resp.ID,
		PlanID:      resp.Plan.ID,
		PurchaseURL: purchaseURL,
		Hearts:      hearts,
		Amount:      price.StringFixed(2),
		Session:     session,
	}, nil
}

// APIError is a non-2xx response from the platform.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform api returned %d: %s", e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
