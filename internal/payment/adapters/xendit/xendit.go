package xendit

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/moviestore/internal/payment/domain"
	"github.com/smallbiznis/moviestore/internal/pricing"
)

const (
	defaultBaseURL      = "https://api.xendit.co"
	callbackTokenHeader = "X-Callback-Token"
	// Invoices stay payable for one day.
	invoiceDuration = 86400
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "xendit"
}

func (f *Factory) NewGateway(cfg paymentdomain.GatewayConfig) (paymentdomain.Gateway, error) {
	apiKey := strings.TrimSpace(cfg.SecretKey)
	token := strings.TrimSpace(cfg.CallbackToken)
	if apiKey == "" || token == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Adapter{
		apiKey:        apiKey,
		callbackToken: token,
		baseURL:       baseURL,
		successURL:    cfg.SuccessURL,
		failureURL:    cfg.CancelURL,
		currency:      strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		client:        client,
	}, nil
}

type Adapter struct {
	apiKey        string
	callbackToken string
	baseURL       string
	successURL    string
	failureURL    string
	currency      string
	client        *http.Client
}

func (a *Adapter) Provider() string { return "xendit" }

// jsonNumber carries a decimal amount as a bare JSON number.
type jsonNumber decimal.Decimal

func (n jsonNumber) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(n).String()), nil
}

func (n *jsonNumber) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*n = jsonNumber(d)
	return nil
}

func (n jsonNumber) Decimal() decimal.Decimal { return decimal.Decimal(n) }

type invoiceRequest struct {
	ExternalID         string     `json:"external_id"`
	Amount             jsonNumber `json:"amount"`
	Description        string     `json:"description"`
	PayerEmail         string     `json:"payer_email,omitempty"`
	Currency           string     `json:"currency,omitempty"`
	InvoiceDuration    int        `json:"invoice_duration"`
	SuccessRedirectURL string     `json:"success_redirect_url,omitempty"`
	FailureRedirectURL string     `json:"failure_redirect_url,omitempty"`
}

type invoice struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id"`
	Status      string     `json:"status"`
	InvoiceURL  string     `json:"invoice_url"`
	ExpiryDate  time.Time  `json:"expiry_date"`
	Amount      jsonNumber `json:"amount"`
	PaidAmount  jsonNumber `json:"paid_amount"`
	Currency    string     `json:"currency"`
	PaidAt      time.Time  `json:"paid_at"`
	Updated     time.Time  `json:"updated"`
	PaymentID   string     `json:"payment_id"`
	PayerEmail  string     `json:"payer_email"`
	Description string     `json:"description"`
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = a.currency
	}
	body, err := json.Marshal(invoiceRequest{
		ExternalID:         req.ExternalID,
		Amount:             jsonNumber(req.Amount.Round(2)),
		Description:        req.Description,
		PayerEmail:         req.CustomerEmail,
		Currency:           currency,
		InvoiceDuration:    invoiceDuration,
		SuccessRedirectURL: a.successURL,
		FailureRedirectURL: a.failureURL,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/invoices", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(a.apiKey, "")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-key", req.IdempotencyKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: xendit responded %d: %s", paymentdomain.ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out invoice
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode xendit invoice: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("xendit: empty invoice id")
	}

	session := &paymentdomain.CheckoutSession{Reference: out.ID, URL: out.InvoiceURL}
	if !out.ExpiryDate.IsZero() {
		expires := out.ExpiryDate.UTC()
		session.ExpiresAt = &expires
	}
	return session, nil
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	token := strings.TrimSpace(headers.Get(callbackTokenHeader))
	if token == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.callbackToken)) != 1 {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var callback invoice
	if err := json.Unmarshal(payload, &callback); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(callback.ID) == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	status := strings.ToUpper(strings.TrimSpace(callback.Status))
	var eventType string
	switch status {
	case "PAID", "SETTLED":
		eventType = paymentdomain.EventTypePaymentSucceeded
	case "EXPIRED":
		eventType = paymentdomain.EventTypePaymentExpired
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	occurredAt := callback.PaidAt
	if occurredAt.IsZero() {
		occurredAt = callback.Updated
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	paid := callback.PaidAmount.Decimal()
	if paid.IsZero() {
		paid = callback.Amount.Decimal()
	}
	amount, err := pricing.ToMinorUnits(paid, 2)
	if err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	return &paymentdomain.PaymentEvent{
		Provider: "xendit",
		// PAID and SETTLED callbacks for one invoice are distinct deliveries.
		ProviderEventID: callback.ID + ":" + status,
		Type:            eventType,
		Reference:       callback.ID,
		ExternalID:      callback.ExternalID,
		Amount:          amount,
		Currency:        strings.ToUpper(strings.TrimSpace(callback.Currency)),
		OccurredAt:      occurredAt.UTC(),
		RawPayload:      payload,
	}, nil
}
