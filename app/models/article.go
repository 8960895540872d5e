package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Article holds the access metadata for one content item. Content bodies live
// elsewhere; this table is only the server-side truth for visibility and
// price, so neither can be tampered with from the client.
type Article struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	Slug           string           `gorm:"type:varchar(191);uniqueIndex;not null" json:"slug" validate:"required"`
	Title          string           `gorm:"type:varchar(255);not null" json:"title"`
	MembershipSlug string           `gorm:"type:varchar(50);not null;default:''" json:"membership_slug"`
	Price          *decimal.Decimal `gorm:"type:decimal(10,2);default:null" json:"price,omitempty"`
	Purchasable    bool             `gorm:"default:false" json:"purchasable"`
	ViewCount      int64            `gorm:"not null;default:0" json:"view_count"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// IndividuallyPurchasable reports whether the article can be bought outright,
// independent of membership rank.
func (a *Article) IndividuallyPurchasable() bool {
	return a.Purchasable && a.Price != nil && a.Price.IsPositive()
}
