package bankdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultTimeout   = 60 * time.Second
	exchangePath     = "/item/public_token/exchange"
	accountsPath     = "/accounts/get"
	transactionsPath = "/transactions/sync"
)

// Client handles communication with the bank data aggregator API
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
}

// Ensure Client implements API
var _ API = (*Client)(nil)

// NewClient creates a new bank data aggregator client
func NewClient(baseURL, clientID, secret string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL:  baseURL,
		clientID: clientID,
		secret:   secret,
	}
}

// ExchangeResponse represents the API response for a public token exchange
type ExchangeResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
	ItemID      string `json:"itemId"`
}

// AccountResponse represents the API response for account data
type AccountResponse struct {
	Success   bool      `json:"success"`
	Data      []Account `json:"data"`
	Count     int       `json:"count"`
	Timestamp string    `json:"timestamp"`
}

// Account represents a linked bank account from the aggregator API
type Account struct {
	ID            string `json:"id"`
	ItemID        string `json:"itemId"` // Identifies the bank connection/relationship
	Name          string `json:"name"`
	Mask          string `json:"mask"` // Last digits of the account number
	Type          string `json:"type"`
	Subtype       string `json:"subtype"`
	CurrencyCode  string `json:"currencyCode"`
	BalanceString string `json:"balance"` // API returns balance as string
}

// GetBalance returns the balance as a float64
func (a *Account) GetBalance() (float64, error) {
	if a.BalanceString == "" {
		return 0, nil
	}
	balance, err := strconv.ParseFloat(a.BalanceString, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse balance '%s': %w", a.BalanceString, err)
	}
	return balance, nil
}

// SyncResponse represents one page of the cursor-based transaction sync
type SyncResponse struct {
	Success    bool          `json:"success"`
	Data       []Transaction `json:"data"`
	NextCursor string        `json:"nextCursor"`
	HasMore    bool          `json:"hasMore"`
	Count      int           `json:"count"`
	Timestamp  string        `json:"timestamp"`
}

// Transaction represents a transaction from the aggregator API
type Transaction struct {
	ID           string   `json:"id"`
	AccountID    string   `json:"accountId"`
	Description  string   `json:"description"`
	MerchantName string   `json:"merchantName"`
	Categories   []string `json:"categories"`
	CurrencyCode string   `json:"currencyCode"`
	AmountString string   `json:"amount"` // API returns amount as string
	DateString   string   `json:"date"`   // "2025-09-28" or RFC3339
	Type         string   `json:"type"`   // "DEBIT" or "CREDIT"
	Status       string   `json:"status"` // "PENDING" or "POSTED"
}

// GetAmount returns the amount as a float64
func (t *Transaction) GetAmount() (float64, error) {
	if t.AmountString == "" {
		return 0, nil
	}
	amount, err := strconv.ParseFloat(t.AmountString, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", t.AmountString, err)
	}
	return amount, nil
}

// GetDate parses and returns the transaction date
func (t *Transaction) GetDate() (*time.Time, error) {
	if t.DateString == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, t.DateString)
	if err != nil {
		parsed, err = time.Parse("2006-01-02", t.DateString)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date '%s': %w", t.DateString, err)
		}
	}
	return &parsed, nil
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ExchangePublicToken trades a short-lived public token from the link flow
// for a long-lived access token and the provider item id.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	payload := map[string]string{"publicToken": publicToken}

	body, err := c.post(ctx, exchangePath, "", payload)
	if err != nil {
		return "", "", err
	}

	var exchangeResp ExchangeResponse
	if err := json.Unmarshal(body, &exchangeResp); err != nil {
		return "", "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !exchangeResp.Success {
		return "", "", fmt.Errorf("API returned success=false")
	}

	return exchangeResp.AccessToken, exchangeResp.ItemID, nil
}

// GetAccounts fetches the accounts reachable through an access token
func (c *Client) GetAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	body, err := c.post(ctx, accountsPath, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var accountResp AccountResponse
	if err := json.Unmarshal(body, &accountResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !accountResp.Success {
		return nil, fmt.Errorf("API returned success=false")
	}

	return accountResp.Data, nil
}

// SyncTransactions fetches one page of transactions after the given cursor.
// An empty cursor starts from the beginning of the item's history.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncResponse, error) {
	payload := map[string]string{"cursor": cursor}

	body, err := c.post(ctx, transactionsPath, accessToken, payload)
	if err != nil {
		return nil, err
	}

	var syncResp SyncResponse
	if err := json.Unmarshal(body, &syncResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !syncResp.Success {
		return nil, fmt.Errorf("API returned success=false")
	}

	return &syncResp, nil
}

func (c *Client) post(ctx context.Context, path, accessToken string, payload any) ([]byte, error) {
	url := c.baseURL + path

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Id", c.clientID)
	req.Header.Set("X-Client-Secret", c.secret)
	if accessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))
	}

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

	return body, nil
}
