package models

import "time"

const (
	GrantSourceDonation = "donation"
	GrantSourceManual   = "manual"
)

// SupporterGrant is the append-only history of membership upgrades. The
// unique index on (wallet_id, payment_token) guarantees exactly one grant
// record per payment even when webhook and poll both record it.
type SupporterGrant struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	WalletID     uint       `gorm:"not null;index:ux_supporter_grants_wallet_token,unique,priority:1" json:"wallet_id"`
	PaymentToken string     `gorm:"type:varchar(64);not null;index:ux_supporter_grants_wallet_token,unique,priority:2" json:"payment_token"`
	StartsAt     time.Time  `gorm:"not null" json:"starts_at"`
	ExpiresAt    *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	Source       string     `gorm:"type:varchar(32);not null;default:'donation'" json:"source"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
