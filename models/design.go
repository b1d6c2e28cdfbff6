package models

import (
	"time"

	"gorm.io/gorm"
)

// Design is a designer's manufacturing brief open for supplier quoting
type Design struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	DesignerID     uint           `gorm:"not null;index" json:"designer_id"` // foreign key to users table
	Designer       User           `gorm:"foreignKey:DesignerID" json:"designer"`
	Title          string         `gorm:"not null" json:"title"`
	Description    string         `gorm:"type:text;not null" json:"description"`
	Category       Category       `gorm:"not null;index" json:"category"`
	Quantity       int            `gorm:"not null;check:quantity > 0" json:"quantity"`
	Specifications string         `gorm:"type:text" json:"specifications"`
	FileURLs       []string       `gorm:"serializer:json" json:"file_urls"` // ordered; entries may be storage keys
	Deadline       *time.Time     `json:"deadline"`
	Status         DesignStatus   `gorm:"not null;default:'Published';index" json:"status"`
	QuoteCount     int            `gorm:"not null;default:0" json:"quote_count"` // live quotes referencing this design
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Design model
func (Design) TableName() string {
	return "designs"
}
