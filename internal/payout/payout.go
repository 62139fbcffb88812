package payout

import (
	"context"

	"github.com/shopspring/decimal"
)

// Tip is one outbound micro-payment.
type Tip struct {
	ToUserID   string
	ToUserName string
	Amount     decimal.Decimal
}

// Sender delivers tips through the payout API.
type Sender interface {
	SendTip(ctx context.Context, tip Tip) error
}
