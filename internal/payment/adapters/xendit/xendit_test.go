package xendit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/moviestore/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, baseURL string) paymentdomain.Gateway {
	t.Helper()
	gw, err := NewFactory().NewGateway(paymentdomain.GatewayConfig{
		SecretKey:     "xnd_development_key",
		CallbackToken: "cb-token",
		BaseURL:       baseURL,
		Currency:      "idr",
		Timeout:       time.Second,
	})
	require.NoError(t, err)
	return gw
}

func TestCreateInvoice(t *testing.T) {
	var got invoiceRequest
	var raw map[string]json.RawMessage
	var user string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/invoices", r.URL.Path)
		user, _, _ = r.BasicAuth()
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))
		assert.NoError(t, json.Unmarshal(body, &raw))
		_, _ = w.Write([]byte(`{"id":"inv_1","external_id":"42","status":"PENDING","invoice_url":"https://checkout.xendit.co/web/inv_1","expiry_date":"2024-05-11T12:00:00.000Z"}`))
	}))
	defer srv.Close()

	session, err := newTestGateway(t, srv.URL).CreateCheckoutSession(context.Background(), paymentdomain.CheckoutRequest{
		ExternalID:    "42",
		Description:   "Rent: Heat",
		Amount:        decimal.RequireFromString("12345678.905"),
		CustomerEmail: "renter@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "inv_1", session.Reference)
	assert.Equal(t, "https://checkout.xendit.co/web/inv_1", session.URL)
	require.NotNil(t, session.ExpiresAt)
	assert.Equal(t, "xnd_development_key", user)
	assert.Equal(t, "42", got.ExternalID)
	assert.Equal(t, "12345678.91", string(raw["amount"]))
	assert.True(t, decimal.RequireFromString("12345678.91").Equal(got.Amount.Decimal()))
	assert.Equal(t, "IDR", got.Currency)
	assert.Equal(t, "renter@example.com", got.PayerEmail)
}

func TestCreateInvoiceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":"API_VALIDATION_ERROR"}`))
	}))
	defer srv.Close()

	_, err := newTestGateway(t, srv.URL).CreateCheckoutSession(context.Background(), paymentdomain.CheckoutRequest{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, paymentdomain.ErrUnexpectedStatus)
}

func TestVerifyCallbackToken(t *testing.T) {
	gw := newTestGateway(t, "")

	headers := http.Header{}
	assert.ErrorIs(t, gw.Verify(context.Background(), nil, headers), paymentdomain.ErrInvalidSignature)

	headers.Set("x-callback-token", "wrong")
	assert.ErrorIs(t, gw.Verify(context.Background(), nil, headers), paymentdomain.ErrInvalidSignature)

	headers.Set("x-callback-token", "cb-token")
	assert.NoError(t, gw.Verify(context.Background(), nil, headers))
}

func TestParseCallback(t *testing.T) {
	gw := newTestGateway(t, "")

	paid := []byte(`{"id":"inv_1","external_id":"42","status":"PAID","paid_amount":40.5,"currency":"IDR","paid_at":"2024-05-10T08:00:00.000Z"}`)
	event, err := gw.Parse(context.Background(), paid)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypePaymentSucceeded, event.Type)
	assert.Equal(t, "inv_1", event.Reference)
	assert.Equal(t, "inv_1:PAID", event.ProviderEventID)
	assert.EqualValues(t, 4050, event.Amount)
	assert.Equal(t, time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC), event.OccurredAt)

	large := []byte(`{"id":"inv_2","status":"SETTLED","amount":98765432.17}`)
	event, err = gw.Parse(context.Background(), large)
	require.NoError(t, err)
	assert.EqualValues(t, 9876543217, event.Amount)

	_, err = gw.Parse(context.Background(), []byte(`{"id":"inv_1","status":"PENDING"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)

	_, err = gw.Parse(context.Background(), []byte(`{"status":"PAID"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidReference)

	_, err = gw.Parse(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestNewGatewayRequiresCallbackToken(t *testing.T) {
	_, err := NewFactory().NewGateway(paymentdomain.GatewayConfig{SecretKey: "k"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}
