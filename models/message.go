package models

import (
	"time"

	"gorm.io/gorm"
)

// Message is a direct message between a designer and a supplier,
// optionally scoped to a design or a quote
type Message struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	SenderID   uint           `gorm:"not null;index" json:"sender_id"` // foreign key to users table
	Sender     User           `gorm:"foreignKey:SenderID" json:"sender"`
	ReceiverID uint           `gorm:"not null;index" json:"receiver_id"`
	DesignID   *uint          `gorm:"index" json:"design_id,omitempty"`
	QuoteID    *uint          `gorm:"index" json:"quote_id,omitempty"`
	Content    string         `gorm:"type:text;not null" json:"content"`
	IsRead     bool           `gorm:"not null;default:false" json:"is_read"`
	ReadAt     *time.Time     `json:"read_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Message model
func (Message) TableName() string {
	return "messages"
}
