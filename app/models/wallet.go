package models

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Wallet is the sole identity primitive: one row per lowercase address.
// Rows are created on first successful signature verification or first
// payment attempt, never on plain read paths, and never deleted.
type Wallet struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	Address             string          `gorm:"type:varchar(42);uniqueIndex;not null" json:"address"`
	MembershipTypeID    uint            `gorm:"not null;index" json:"membership_type_id"`
	MembershipType      *MembershipType `json:"membership_type,omitempty"`
	MembershipExpiresAt *time.Time      `gorm:"type:timestamp;default:null" json:"membership_expires_at,omitempty"`
	SessionEpoch        uint64          `gorm:"not null;default:0" json:"session_epoch"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// NormalizeAddress lowercases and trims a wallet address so the unique index
// on wallets.address compares a canonical form.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsValidAddress reports whether address is a well-formed 0x hex address.
func IsValidAddress(address string) bool {
	return common.IsHexAddress(strings.TrimSpace(address))
}

// MembershipExpired reports whether a time-limited membership has lapsed.
// A nil expiry means the membership does not expire.
func (w *Wallet) MembershipExpired(now time.Time) bool {
	return w.MembershipExpiresAt != nil && w.MembershipExpiresAt.Before(now)
}

// GetOrCreateWallet resolves address to its wallet row, creating it at the
// default membership when absent. Concurrent callers race safely: the insert
// is OnConflict DoNothing against the address unique index and the row is
// reselected afterwards, so at most one row per address ever persists.
func GetOrCreateWallet(db *gorm.DB, address string) (*Wallet, error) {
	addr := NormalizeAddress(address)

	var def MembershipType
	if err := db.Where("is_default = ?", true).First(&def).Error; err != nil {
		return nil, err
	}

	w := &Wallet{Address: addr, MembershipTypeID: def.ID}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoNothing: true,
	}).Create(w).Error; err != nil {
		return nil, err
	}

	var stored Wallet
	if err := db.Preload("MembershipType").Where("address = ?", addr).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// FindWalletByAddress looks up a wallet without creating one.
func FindWalletByAddress(db *gorm.DB, address string) (*Wallet, error) {
	var w Wallet
	err := db.Preload("MembershipType").
		Where("address = ?", NormalizeAddress(address)).
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// BumpWalletEpoch increments the wallet's session epoch, invalidating every
// outstanding session for that wallet on its next validation check.
func BumpWalletEpoch(db *gorm.DB, walletID uint) error {
	return db.Model(&Wallet{}).
		Where("id = ?", walletID).
		UpdateColumn("session_epoch", gorm.Expr("session_epoch + 1")).Error
}
