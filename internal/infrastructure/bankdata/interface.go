package bankdata

import (
	"context"
)

// API defines the methods required from the bank data aggregator client
type API interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) // Returns access token and item id
	GetAccounts(ctx context.Context, accessToken string) ([]Account, error)
	SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncResponse, error)
}
