// Package payment integrates the hosted payment gateway. The gateway speaks
// Razorpay-style semantics: amounts travel in paise, and payment callbacks
// carry an HMAC-SHA256 signature over "order_ref|payment_ref".
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Intent is a gateway order the client completes on their side.
type Intent struct {
	ProviderOrderID string
	AmountPaise     int64
	Currency        string
}

// Gateway creates payment intents and verifies callback signatures.
type Gateway interface {
	CreateIntent(ctx context.Context, receipt string, amount decimal.Decimal, currency string) (*Intent, error)
	VerifySignature(orderRef, paymentRef, signature string) bool
}

// Provider talks to the gateway's REST API.
type Provider struct {
	baseURL string
	keyID   string
	secret  string
	client  *http.Client
}

// NewProvider builds a gateway client. keyID/secret come from configuration;
// the secret also keys signature verification.
func NewProvider(baseURL, keyID, secret string) *Provider {
	return &Provider{
		baseURL: baseURL,
		keyID:   keyID,
		secret:  secret,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

var paiseFactor = decimal.NewFromInt(100)

// CreateIntent registers an order with the gateway. The rupee amount is
// converted to integral paise; the gateway rejects fractional paise, so the
// amount must already be rounded to 2 places.
func (p *Provider) CreateIntent(ctx context.Context, receipt string, amount decimal.Decimal, currency string) (*Intent, error) {
	paise := amount.Mul(paiseFactor).IntPart()

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) { e.Int64(paise) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(currency) })
		e.Field("receipt", func(e *jx.Encoder) { e.Str(receipt) })
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/orders", bytes.NewReader(e.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(p.keyID, p.secret)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call gateway")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("gateway returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read gateway response")
	}
	return decodeIntent(body, currency)
}

func decodeIntent(body []byte, currency string) (*Intent, error) {
	intent := &Intent{Currency: currency}
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			id, err := d.Str()
			if err != nil {
				return err
			}
			intent.ProviderOrderID = id
		case "amount":
			n, err := d.Int64()
			if err != nil {
				return err
			}
			intent.AmountPaise = n
		case "currency":
			c, err := d.Str()
			if err != nil {
				return err
			}
			intent.Currency = c
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode gateway response")
	}
	if intent.ProviderOrderID == "" {
		return nil, errors.New("gateway response missing order id")
	}
	return intent, nil
}

// VerifySignature checks the callback signature: HMAC-SHA256 over
// "orderRef|paymentRef" keyed with the secret, hex encoded. Comparison is
// constant time.
func (p *Provider) VerifySignature(orderRef, paymentRef, signature string) bool {
	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write([]byte(orderRef + "|" + paymentRef))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

var _ Gateway = (*Provider)(nil)
