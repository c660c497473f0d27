package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	chargesPath    = "/v1/charges"
)

// Charge statuses reported by the processor.
const (
	ChargeSucceeded  = "succeeded"
	ChargeProcessing = "processing"
	ChargeFailed     = "failed"
)

// Client handles communication with the payment processor API
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

// Ensure Client implements API
var _ API = (*Client)(nil)

// NewClient creates a new payment processor client
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL:   baseURL,
		secretKey: secretKey,
	}
}

// ChargeParams describes one charge request. IdempotencyKey makes retries of
// the same settlement safe: the processor returns the original charge
// instead of creating a second one.
type ChargeParams struct {
	Amount          float64
	Currency        string
	PaymentMethodID string
	Description     string
	IdempotencyKey  string
	Metadata        map[string]string
}

// Charge represents a charge from the processor API
type Charge struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	AmountString  string `json:"amount"` // API returns amount as string
	Currency      string `json:"currency"`
	FailureReason string `json:"failureReason,omitempty"`
}

// GetAmount returns the charged amount as a float64
func (c *Charge) GetAmount() (float64, error) {
	if c.AmountString == "" {
		return 0, nil
	}
	amount, err := strconv.ParseFloat(c.AmountString, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", c.AmountString, err)
	}
	return amount, nil
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateCharge submits a charge against a stored payment method.
func (c *Client) CreateCharge(ctx context.Context, params ChargeParams) (*Charge, error) {
	payload := map[string]any{
		"amount":          fmt.Sprintf("%.2f", params.Amount),
		"currency":        params.Currency,
		"paymentMethodId": params.PaymentMethodID,
		"description":     params.Description,
		"metadata":        params.Metadata,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chargesPath, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.secretKey))
	req.Header.Set("Idempotency-Key", params.IdempotencyKey)

	return c.do(req)
}

// GetCharge fetches the current state of a charge.
func (c *Client) GetCharge(ctx context.Context, chargeID string) (*Charge, error) {
	endpoint := c.baseURL + chargesPath + "/" + url.PathEscape(chargeID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.secretKey))

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Charge, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("API error (status %d): %s - %s", resp.StatusCode, errResp.Error, errResp.Message)
	}

	var charge Charge
	if err := json.Unmarshal(body, &charge); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &charge, nil
}
