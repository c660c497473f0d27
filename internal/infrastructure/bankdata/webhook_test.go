package bankdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookEvent(t *testing.T) {
	t.Run("aggregator sync update", func(t *testing.T) {
		body := []byte(`{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-1"}`)

		event, err := ParseWebhookEvent("plaid", body)
		require.NoError(t, err)
		assert.Equal(t, EventTransactionsUpdated, event.Type)
		assert.Equal(t, "item-1", event.ItemID)
		assert.Equal(t, "plaid", event.Provider)
	})

	t.Run("aggregator login required maps to repairable error", func(t *testing.T) {
		body := []byte(`{"webhook_type":"ITEM","webhook_code":"ERROR","item_id":"item-1","error":{"error_code":"ITEM_LOGIN_REQUIRED"}}`)

		event, err := ParseWebhookEvent("plaid", body)
		require.NoError(t, err)
		assert.Equal(t, EventConnectionError, event.Type)
		assert.Equal(t, "ITEM_LOGIN_REQUIRED", event.ErrorCode)
	})

	t.Run("aggregator item gone maps to invalidated", func(t *testing.T) {
		body := []byte(`{"webhook_type":"ITEM","webhook_code":"ERROR","item_id":"item-1","error":{"error_code":"ITEM_NOT_FOUND"}}`)

		event, err := ParseWebhookEvent("plaid", body)
		require.NoError(t, err)
		assert.Equal(t, EventConnectionInvalidated, event.Type)
	})

	t.Run("aggregator permission revoked", func(t *testing.T) {
		body := []byte(`{"webhook_type":"ITEM","webhook_code":"USER_PERMISSION_REVOKED","item_id":"item-1"}`)

		event, err := ParseWebhookEvent("plaid", body)
		require.NoError(t, err)
		assert.Equal(t, EventConsentRevoked, event.Type)
	})

	t.Run("aggregator unknown code yields empty type", func(t *testing.T) {
		body := []byte(`{"webhook_type":"TRANSACTIONS","webhook_code":"RECURRING_TRANSACTIONS_UPDATE","item_id":"item-1"}`)

		event, err := ParseWebhookEvent("plaid", body)
		require.NoError(t, err)
		assert.Empty(t, event.Type)
	})

	t.Run("direct bank consent expired", func(t *testing.T) {
		body := []byte(`{"eventType":"consent.expired","resource":{"itemId":"item-9"}}`)

		event, err := ParseWebhookEvent("finbank", body)
		require.NoError(t, err)
		assert.Equal(t, EventConsentExpired, event.Type)
		assert.Equal(t, "item-9", event.ItemID)
	})

	t.Run("direct bank connection invalidated", func(t *testing.T) {
		body := []byte(`{"eventType":"connection.invalidated","resource":{"itemId":"item-9","errorCode":"REVOKED_BY_BANK"}}`)

		event, err := ParseWebhookEvent("finbank", body)
		require.NoError(t, err)
		assert.Equal(t, EventConnectionInvalidated, event.Type)
		assert.Equal(t, "REVOKED_BY_BANK", event.ErrorCode)
	})

	t.Run("direct bank account closed", func(t *testing.T) {
		body := []byte(`{"eventType":"account.updated","resource":{"itemId":"item-9","accountId":"acc-1","accountStatus":"closed"}}`)

		event, err := ParseWebhookEvent("finbank", body)
		require.NoError(t, err)
		assert.Equal(t, EventAccountUpdated, event.Type)
		assert.Equal(t, "closed", event.AccountStatus)
	})

	t.Run("unrecognized shape errors", func(t *testing.T) {
		_, err := ParseWebhookEvent("plaid", []byte(`{"hello":"world"}`))
		assert.Error(t, err)
	})

	t.Run("invalid json errors", func(t *testing.T) {
		_, err := ParseWebhookEvent("plaid", []byte(`not-json`))
		assert.Error(t, err)
	})
}
