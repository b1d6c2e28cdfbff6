package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts go over the wire as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Payment is the monetary transaction record for an Order, inclusive of platform fee.
// PlatformFee and TotalAmount are fixed when the payment is created.
type Payment struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	OrderID            uint            `gorm:"not null;uniqueIndex:idx_payment_order_attempt" json:"order_id"`
	Attempt            int             `gorm:"not null;uniqueIndex:idx_payment_order_attempt" json:"attempt"`
	Amount             decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	PlatformFee        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"platform_fee"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	Currency           string          `gorm:"size:3;not null;default:'USD'" json:"currency"`
	PaymentMethod      PaymentMethod   `gorm:"not null" json:"payment_method"`
	Status             PaymentStatus   `gorm:"not null;default:'Pending';index" json:"status"`
	TransactionID      *string         `json:"transaction_id"`                // set once the charge completes
	ProcessorReference *string         `json:"processor_reference,omitempty"` // payment id at the processor
	FailureReason      *string         `json:"failure_reason,omitempty"`      // processor decline reason
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the Payment model
func (Payment) TableName() string {
	return "payments"
}

// PaymentTransaction records one movement of money for a Payment
type PaymentTransaction struct {
	ID                    uint            `gorm:"primaryKey" json:"id"`
	PaymentID             uint            `gorm:"not null;index" json:"payment_id"`
	TransactionID         string          `gorm:"uniqueIndex;not null" json:"transaction_id"`
	Type                  TransactionType `gorm:"not null" json:"type"`
	Amount                decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status                PaymentStatus   `gorm:"not null;default:'Pending'" json:"status"`
	Reason                string          `gorm:"type:text" json:"reason,omitempty"`
	ProcessorReference    *string         `json:"processor_reference,omitempty"`
	OriginalTransactionID *string         `json:"original_transaction_id,omitempty"` // a Refund points at the Charge it reverses
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the PaymentTransaction model
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}
