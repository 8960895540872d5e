package models

import "time"

// Payment is the dedupe/audit record for gateway confirmations, upserted on
// every verification attempt (webhook or poll) keyed by token. Status is
// last-write-wins; repeated settlement of the same token converges here.
type Payment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Token      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"token"`
	OrderID    string    `gorm:"type:varchar(64);not null;index" json:"order_id"`
	PaymentID  string    `gorm:"type:varchar(64);not null;default:''" json:"payment_id"`
	StatusCode string    `gorm:"type:varchar(16);not null;default:''" json:"status_code"`
	StatusText string    `gorm:"type:varchar(64);not null;default:''" json:"status_text"`
	RawPayload string    `gorm:"type:longtext" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
