package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentOutbox records payment intent before the client is redirected to the
// gateway, keyed by the gateway-issued token. Settlement cross-checks the
// confirmation against this row and deletes it on success; leftover rows are
// abandoned checkouts and purely diagnostic.
type PaymentOutbox struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Token             string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"token"`
	OrderID           string          `gorm:"type:varchar(64);not null;index" json:"order_id"`
	WalletID          uint            `gorm:"not null;index" json:"wallet_id"`
	ArticleSlug       string          `gorm:"type:varchar(191);not null;default:''" json:"article_slug"`
	ExpectedPrice     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"expected_price"`
	IntegrityHash     string          `gorm:"type:varchar(64);not null;default:''" json:"-"`
	IntegrityIssuedAt *time.Time      `gorm:"type:timestamp;default:null" json:"-"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
