package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Webhook actions handled by the server.
const (
	ActionPaymentSucceeded = "payment.succeeded"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>".
const SignatureHeader = "X-Whop-Signature"

// Webhook validation errors.
var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrBadSignature     = errors.New("webhook signature mismatch")
	ErrStaleWebhook     = errors.New("webhook timestamp outside tolerance")
)

// Webhook is a validated webhook delivery.
type Webhook struct {
	Action string      `json:"action"`
	Data   PaymentData `json:"data"`
}

// PaymentData is the payload of payment events.
type PaymentData struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	Currency    string          `json:"currency"`
	Metadata    map[string]any  `json:"metadata"`
}

// Hearts returns the hearts quantity recorded in the checkout metadata, or 0.
func (d PaymentData) Hearts() int {
	switch v := d.Metadata[MetaHearts].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// MetaString returns a string metadata value.
func (d PaymentData) MetaString(key string) string {
	s, _ := d.Metadata[key].(string)
	return s
}

// WebhookValidator authenticates webhook deliveries with a shared secret.
type WebhookValidator struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookValidator creates a validator. An empty secret accepts unsigned
// deliveries and is refused by config validation in production.
func NewWebhookValidator(secret string, tolerance time.Duration) *WebhookValidator {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &WebhookValidator{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// Sign computes the signature header value for body at t.
func (v *WebhookValidator) Sign(body []byte, t time.Time) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return "t=" + ts + ",v1=" + v.mac(ts, body)
}

func (v *WebhookValidator) mac(ts string, body []byte) string {
	m := hmac.New(sha256.New, v.secret)
	m.Write([]byte(ts))
	m.Write([]byte("."))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

// Validate reads the request body, checks its signature and decodes it.
func (v *WebhookValidator) Validate(r *http.Request) (*Webhook, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook body: %w", err)
	}
	if len(v.secret) > 0 {
		if err := v.verify(r.Header.Get(SignatureHeader), body); err != nil {
			return nil, err
		}
	}

	var wh Webhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if wh.Action == "" {
		return nil, fmt.Errorf("invalid webhook payload: missing action")
	}
	return &wh, nil
}

func (v *WebhookValidator) verify(header string, body []byte) error {
	if header == "" {
		return ErrMissingSignature
	}

	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			sig = val
		}
	}
	if ts == "" || sig == "" {
		return ErrMissingSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	age := v.now().Sub(time.Unix(unix, 0))
	if age < -v.tolerance || age > v.tolerance {
		return ErrStaleWebhook
	}

	if !hmac.Equal([]byte(sig), []byte(v.mac(ts, body))) {
		return ErrBadSignature
	}
	return nil
}
