package payments

import (
	"context"
)

// API defines the methods required from the payment processor client
type API interface {
	CreateCharge(ctx context.Context, params ChargeParams) (*Charge, error)
	GetCharge(ctx context.Context, chargeID string) (*Charge, error)
}
