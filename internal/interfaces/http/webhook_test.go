package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"eventType":"consent.revoked"}`)

	t.Run("valid signature accepted", func(t *testing.T) {
		assert.True(t, verifySignature("secret", body, sign("secret", string(body))))
	})

	t.Run("wrong signature rejected", func(t *testing.T) {
		assert.False(t, verifySignature("secret", body, sign("other", string(body))))
	})

	t.Run("missing signature rejected", func(t *testing.T) {
		assert.False(t, verifySignature("secret", body, ""))
	})

	t.Run("empty secret disables verification", func(t *testing.T) {
		assert.True(t, verifySignature("", body, ""))
	})
}

func TestHandleBankWebhook(t *testing.T) {
	handler := NewWebhookHandler(nil, nil, nil, nil, "bank-secret", "pay-secret")

	newRequest := func(provider, body, signature string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/webhooks/bank/"+provider, strings.NewReader(body))
		r.SetPathValue("provider", provider)
		if signature != "" {
			r.Header.Set(SignatureHeader, signature)
		}
		return r
	}

	t.Run("invalid signature rejected", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.HandleBankWebhook(rr, newRequest("plaid", `{}`, "bogus"))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("missing provider rejected", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/webhooks/bank/", strings.NewReader(`{}`))
		handler.HandleBankWebhook(rr, r)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed payload acknowledged", func(t *testing.T) {
		body := `not json`
		rr := httptest.NewRecorder()
		handler.HandleBankWebhook(rr, newRequest("plaid", body, sign("bank-secret", body)))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("unhandled event code acknowledged", func(t *testing.T) {
		body := `{"webhook_type":"TRANSACTIONS","webhook_code":"RECURRING_TRANSACTIONS_UPDATE","item_id":"item-1"}`
		rr := httptest.NewRecorder()
		handler.HandleBankWebhook(rr, newRequest("plaid", body, sign("bank-secret", body)))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestHandlePaymentsWebhook(t *testing.T) {
	handler := NewWebhookHandler(nil, nil, nil, nil, "bank-secret", "pay-secret")

	newRequest := func(body, signature string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
		if signature != "" {
			r.Header.Set(SignatureHeader, signature)
		}
		return r
	}

	t.Run("invalid signature rejected", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.HandlePaymentsWebhook(rr, newRequest(`{}`, "bogus"))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown event type acknowledged", func(t *testing.T) {
		body := `{"type":"payout.created","data":{"id":"po_1"}}`
		rr := httptest.NewRecorder()
		handler.HandlePaymentsWebhook(rr, newRequest(body, sign("pay-secret", body)))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("missing charge id acknowledged", func(t *testing.T) {
		body := `{"type":"charge.succeeded","data":{}}`
		rr := httptest.NewRecorder()
		handler.HandlePaymentsWebhook(rr, newRequest(body, sign("pay-secret", body)))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("malformed payload acknowledged", func(t *testing.T) {
		body := `not json`
		rr := httptest.NewRecorder()
		handler.HandlePaymentsWebhook(rr, newRequest(body, sign("pay-secret", body)))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
