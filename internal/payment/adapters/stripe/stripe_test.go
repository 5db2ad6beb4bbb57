package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/moviestore/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{}}}`)
	timestamp := time.Now().Unix()

	header := buildStripeSignatureHeader(secret, payload, timestamp)
	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", header)

	adapter := &Adapter{webhookSecret: secret}
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, timestamp))
	if err := adapter.Verify(context.Background(), payload, reqHeader); err == nil {
		t.Fatalf("expected invalid signature error")
	}

	if err := adapter.Verify(context.Background(), payload, http.Header{}); err != paymentdomain.ErrInvalidSignature {
		t.Fatalf("expected missing header to be rejected, got %v", err)
	}
}

func TestParseCheckoutEvents(t *testing.T) {
	adapter := &Adapter{}
	created := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC).Unix()

	tests := []struct {
		name     string
		event    map[string]any
		wantType string
		wantErr  error
	}{{
		name: "completed and paid",
		event: map[string]any{
			"id": "evt_1", "type": "checkout.session.completed", "created": created,
			"data": map[string]any{"object": map[string]any{
				"id": "cs_test_1", "client_reference_id": "42", "payment_status": "paid",
				"amount_total": 200, "currency": "usd",
			}},
		},
		wantType: paymentdomain.EventTypePaymentSucceeded,
	}, {
		name: "completed but unpaid",
		event: map[string]any{
			"id": "evt_2", "type": "checkout.session.completed",
			"data": map[string]any{"object": map[string]any{"id": "cs_test_2", "payment_status": "unpaid"}},
		},
		wantErr: paymentdomain.ErrEventIgnored,
	}, {
		name: "expired",
		event: map[string]any{
			"id": "evt_3", "type": "checkout.session.expired",
			"data": map[string]any{"object": map[string]any{"id": "cs_test_3"}},
		},
		wantType: paymentdomain.EventTypePaymentExpired,
	}, {
		name: "unrelated type",
		event: map[string]any{
			"id": "evt_4", "type": "customer.created",
			"data": map[string]any{"object": map[string]any{}},
		},
		wantErr: paymentdomain.ErrEventIgnored,
	}, {
		name: "missing session id",
		event: map[string]any{
			"id": "evt_5", "type": "checkout.session.completed",
			"data": map[string]any{"object": map[string]any{"payment_status": "paid"}},
		},
		wantErr: paymentdomain.ErrInvalidReference,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := json.Marshal(tc.event)
			require.NoError(t, err)

			event, err := adapter.Parse(context.Background(), payload)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, event.Type)
			assert.Equal(t, "stripe", event.Provider)
			assert.NotEmpty(t, event.Reference)
		})
	}
}

func TestParseCompletedCarriesReference(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","created":1715342400,
		"data":{"object":{"id":"cs_test_1","client_reference_id":"42","payment_status":"paid","amount_total":200,"currency":"usd"}}}`)
	event, err := (&Adapter{}).Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", event.Reference)
	assert.Equal(t, "42", event.ExternalID)
	assert.EqualValues(t, 200, event.Amount)
	assert.Equal(t, "USD", event.Currency)
	assert.Equal(t, time.Unix(1715342400, 0).UTC(), event.OccurredAt)
}

func TestCreateCheckoutSession(t *testing.T) {
	var gotForm map[string][]string
	var gotAuth, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_9","url":"https://checkout.stripe.com/c/pay/cs_test_9","expires_at":1715428800}`))
	}))
	defer srv.Close()

	gw, err := NewFactory().NewGateway(paymentdomain.GatewayConfig{
		SecretKey:     "sk_test_1",
		WebhookSecret: "whsec_1",
		BaseURL:       srv.URL,
		SuccessURL:    "https://store.local/ok",
		CancelURL:     "https://store.local/cancel",
		Currency:      "USD",
		Timeout:       time.Second,
	})
	require.NoError(t, err)

	session, err := gw.CreateCheckoutSession(context.Background(), paymentdomain.CheckoutRequest{
		ExternalID:     "42",
		Description:    "Rent: Heat",
		Amount:         decimal.RequireFromString("0.30"),
		IdempotencyKey: "rent-42",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_9", session.Reference)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_9", session.URL)
	require.NotNil(t, session.ExpiresAt)

	assert.Equal(t, "Bearer sk_test_1", gotAuth)
	assert.Equal(t, "rent-42", gotKey)
	assert.Equal(t, []string{"30"}, gotForm["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, []string{"usd"}, gotForm["line_items[0][price_data][currency]"])
	assert.Equal(t, []string{"42"}, gotForm["client_reference_id"])
}

func TestCreateCheckoutSessionRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"card declined"}}`))
	}))
	defer srv.Close()

	gw, err := NewFactory().NewGateway(paymentdomain.GatewayConfig{SecretKey: "sk", WebhookSecret: "wh", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = gw.CreateCheckoutSession(context.Background(), paymentdomain.CheckoutRequest{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, paymentdomain.ErrUnexpectedStatus)
}

func TestNewGatewayRequiresSecrets(t *testing.T) {
	_, err := NewFactory().NewGateway(paymentdomain.GatewayConfig{SecretKey: "sk"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
