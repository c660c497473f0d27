package bankdata

import (
	"encoding/json"
	"fmt"
)

// Normalized webhook event types. Values line up with the connection
// domain's event vocabulary.
const (
	EventTransactionsUpdated   = "transactions.updated"
	EventConnectionInvalidated = "connection.invalidated"
	EventConsentRevoked        = "consent.revoked"
	EventConsentExpired        = "consent.expired"
	EventAccountUpdated        = "account.updated"
	EventUserDeleted           = "user.deleted"
	EventConnectionError       = "connection.error"
)

// WebhookEvent is a provider webhook flattened into one shape. Two payload
// dialects are accepted: the aggregator's native item-webhook format
// (webhook_type/webhook_code) and the direct-bank format (eventType plus a
// resource object). Type is empty when the payload carried an event this
// service does not act on.
type WebhookEvent struct {
	Type          string
	Provider      string
	ItemID        string
	AccountID     string
	AccountStatus string
	ErrorCode     string
}

type aggregatorWebhook struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
	Error       *struct {
		ErrorCode string `json:"error_code"`
	} `json:"error"`
}

type directBankWebhook struct {
	EventType string `json:"eventType"`
	Resource  struct {
		ItemID        string `json:"itemId"`
		AccountID     string `json:"accountId"`
		AccountStatus string `json:"accountStatus"`
		ErrorCode     string `json:"errorCode"`
	} `json:"resource"`
}

// ParseWebhookEvent normalizes a raw webhook payload. The dialect is detected
// from the payload itself: webhook_type marks the aggregator format,
// eventType the direct-bank format. Unrecognized codes inside a known dialect
// yield an event with an empty Type, which callers skip; a payload matching
// neither dialect is an error.
func ParseWebhookEvent(provider string, body []byte) (*WebhookEvent, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	if _, ok := probe["webhook_type"]; ok {
		var payload aggregatorWebhook
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("failed to parse aggregator webhook: %w", err)
		}
		return parseAggregator(provider, payload), nil
	}

	if _, ok := probe["eventType"]; ok {
		var payload directBankWebhook
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("failed to parse bank webhook: %w", err)
		}
		return parseDirectBank(provider, payload), nil
	}

	return nil, fmt.Errorf("unrecognized webhook payload shape")
}

func parseAggregator(provider string, payload aggregatorWebhook) *WebhookEvent {
	event := &WebhookEvent{Provider: provider, ItemID: payload.ItemID}
	if payload.Error != nil {
		event.ErrorCode = payload.Error.ErrorCode
	}

	switch payload.WebhookType {
	case "TRANSACTIONS":
		switch payload.WebhookCode {
		case "SYNC_UPDATES_AVAILABLE", "DEFAULT_UPDATE", "INITIAL_UPDATE", "HISTORICAL_UPDATE":
			event.Type = EventTransactionsUpdated
		}
	case "ITEM":
		switch payload.WebhookCode {
		case "ERROR":
			switch event.ErrorCode {
			case "ITEM_NOT_FOUND", "ACCESS_NOT_GRANTED", "ITEM_NO_LONGER_SUPPORTED":
				// Access is permanently gone; login-required and transient
				// provider errors stay repairable.
				event.Type = EventConnectionInvalidated
			default:
				event.Type = EventConnectionError
			}
		case "PENDING_EXPIRATION", "PENDING_DISCONNECT":
			event.Type = EventConsentExpired
		case "USER_PERMISSION_REVOKED", "USER_ACCOUNT_REVOKED":
			event.Type = EventConsentRevoked
		}
	}
	return event
}

func parseDirectBank(provider string, payload directBankWebhook) *WebhookEvent {
	event := &WebhookEvent{
		Provider:      provider,
		ItemID:        payload.Resource.ItemID,
		AccountID:     payload.Resource.AccountID,
		AccountStatus: payload.Resource.AccountStatus,
		ErrorCode:     payload.Resource.ErrorCode,
	}

	switch payload.EventType {
	case "transactions.updated", "transactions.posted":
		event.Type = EventTransactionsUpdated
	case "consent.revoked":
		event.Type = EventConsentRevoked
	case "consent.expired":
		event.Type = EventConsentExpired
	case "account.updated":
		event.Type = EventAccountUpdated
	case "user.deleted":
		event.Type = EventUserDeleted
	case "connection.invalidated":
		event.Type = EventConnectionInvalidated
	case "connection.error", "connection.login-required":
		event.Type = EventConnectionError
	}
	return event
}
