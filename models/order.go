package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is the commitment created when a Quote is accepted
type Order struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	OrderNumber   string          `gorm:"uniqueIndex;not null" json:"order_number"`
	DesignID      uint            `gorm:"not null;index" json:"design_id"`
	Design        *Design         `gorm:"foreignKey:DesignID" json:"design,omitempty"`
	DesignerID    uint            `gorm:"not null;index" json:"designer_id"`
	Designer      User            `gorm:"foreignKey:DesignerID" json:"designer"`
	SupplierID    uint            `gorm:"not null;index" json:"supplier_id"`
	Supplier      User            `gorm:"foreignKey:SupplierID" json:"supplier"`
	QuoteID       uint            `gorm:"uniqueIndex;not null" json:"quote_id"` // exactly one order per accepted quote
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Status        OrderStatus     `gorm:"not null;default:'Pending'" json:"status"`
	PaymentStatus PaymentStatus   `gorm:"not null;default:'Pending';index" json:"payment_status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// HasParticipant reports whether the user is the designer or the supplier of the order
func (o Order) HasParticipant(userID uint) bool {
	return o.DesignerID == userID || o.SupplierID == userID
}
