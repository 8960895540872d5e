package models

import "time"

// AuditEvent is an append-only record of a security-relevant decision. Rows
// are only ever inserted; there is no update or delete path.
type AuditEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Kind          string    `gorm:"type:varchar(50);not null;index" json:"kind"`
	WalletAddress string    `gorm:"type:varchar(42);not null;default:'';index" json:"wallet_address"`
	ClientIP      string    `gorm:"type:varchar(45);not null;default:''" json:"client_ip"`
	Detail        string    `gorm:"type:text" json:"detail"`
	ContextJSON   string    `gorm:"type:longtext" json:"context_json"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
