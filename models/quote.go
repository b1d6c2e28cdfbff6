package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Quote is a supplier's priced, timed proposal against one Design
type Quote struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	DesignID           uint            `gorm:"not null;index" json:"design_id"`
	Design             *Design         `gorm:"foreignKey:DesignID" json:"design,omitempty"`
	SupplierID         uint            `gorm:"not null;index" json:"supplier_id"`
	Supplier           User            `gorm:"foreignKey:SupplierID" json:"supplier"`
	Price              decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Currency           string          `gorm:"size:3;not null;default:'USD'" json:"currency"`
	DeliveryTimeInDays int             `gorm:"not null;check:delivery_time_in_days > 0" json:"delivery_time_in_days"`
	QuoteText          string          `gorm:"type:text" json:"quote_text"`
	TermsAndConditions string          `gorm:"type:text" json:"terms_and_conditions"`
	Status             QuoteStatus     `gorm:"not null;default:'Submitted';index" json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	DeletedAt          gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Quote model
func (Quote) TableName() string {
	return "quotes"
}
