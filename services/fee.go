package services

import (
	"github.com/shopspring/decimal"
)

// FeeBreakdown is the platform fee applied to a quoted price
type FeeBreakdown struct {
	Amount      decimal.Decimal `json:"amount"`
	FeeRate     decimal.Decimal `json:"fee_rate"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// CalculateFee computes platformFee = round(amount * rate, 2) and totalAmount = amount + platformFee.
// It is deterministic and side-effect free. Values returned to clients are advisory; the
// authoritative breakdown is computed again when a Payment is created.
func CalculateFee(amount, rate decimal.Decimal) (FeeBreakdown, error) {
	if amount.IsNegative() {
		return FeeBreakdown{}, newValidationError("amount", "amount must not be negative")
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return FeeBreakdown{}, newValidationError("fee_rate", "fee rate must be in [0, 1)")
	}

	fee := amount.Mul(rate).Round(2)
	return FeeBreakdown{
		Amount:      amount,
		FeeRate:     rate,
		PlatformFee: fee,
		TotalAmount: amount.Add(fee),
	}, nil
}
