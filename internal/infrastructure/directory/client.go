package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"roundup/internal/domain/charity"
)

const (
	defaultTimeout    = 30 * time.Second
	causesPath        = "/v1/causes"
	organizationsPath = "/v1/organizations"
)

// Client handles communication with the charity directory API
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Ensure Client implements charity.Directory
var _ charity.Directory = (*Client)(nil)

// NewClient creates a new charity directory client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// CauseResponse represents the API response for a cause lookup
type CauseResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		ID             string `json:"id"`
		OrganizationID string `json:"organizationId"`
		Name           string `json:"name"`
		Status         string `json:"status"` // "active" or "retired"
	} `json:"data"`
}

// OrganizationResponse represents the API response for an organization lookup
type OrganizationResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		ID             string `json:"id"`
		Name           string `json:"name"`
		PayoutsEnabled bool   `json:"payoutsEnabled"`
	} `json:"data"`
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// GetCause looks up a cause by id. Returns nil when the directory does not
// know the cause.
func (c *Client) GetCause(ctx context.Context, causeID string) (*charity.Cause, error) {
	body, status, err := c.get(ctx, causesPath+"/"+url.PathEscape(causeID))
	if err != nil {
		if status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	var causeResp CauseResponse
	if err := json.Unmarshal(body, &causeResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !causeResp.Success || causeResp.Data == nil {
		return nil, nil
	}

	return &charity.Cause{
		ID:             causeResp.Data.ID,
		OrganizationID: causeResp.Data.OrganizationID,
		Name:           causeResp.Data.Name,
		Active:         causeResp.Data.Status == "active",
	}, nil
}

// GetOrganizationPayoutStatus reports whether an organization can receive
// payouts.
func (c *Client) GetOrganizationPayoutStatus(ctx context.Context, organizationID string) (bool, error) {
	body, status, err := c.get(ctx, organizationsPath+"/"+url.PathEscape(organizationID))
	if err != nil {
		if status == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}

	var orgResp OrganizationResponse
	if err := json.Unmarshal(body, &orgResp); err != nil {
		return false, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !orgResp.Success || orgResp.Data == nil {
		return false, nil
	}

	return orgResp.Data.PayoutsEnabled, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}
		return nil, resp.StatusCode, fmt.Errorf("API error (status %d): %s - %s", resp.StatusCode, errResp.Error, errResp.Message)
	}

	return body, resp.StatusCode, nil
}
