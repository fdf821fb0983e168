package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signFor(t *testing.T, secret, orderRef, paymentRef string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key_test", user)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_ABC123","amount":216000,"currency":"INR","status":"created"}`))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "key_test", "secret")
	intent, err := p.CreateIntent(context.Background(), "LM-20260315-0001", decimal.RequireFromString("2160.00"), "INR")
	require.NoError(t, err)
	assert.Equal(t, "order_ABC123", intent.ProviderOrderID)
	assert.Equal(t, int64(216000), intent.AmountPaise)
	assert.Equal(t, "INR", intent.Currency)
}

func TestCreateIntentGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "key_test", "secret")
	_, err := p.CreateIntent(context.Background(), "LM-1", decimal.NewFromInt(100), "INR")
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	p := NewProvider("", "key_test", "secret")

	sig := signFor(t, "secret", "order_ABC", "pay_XYZ")
	assert.True(t, p.VerifySignature("order_ABC", "pay_XYZ", sig))
	assert.False(t, p.VerifySignature("order_ABC", "pay_XYZ", "deadbeef"))
	assert.False(t, p.VerifySignature("order_other", "pay_XYZ", sig))
}
