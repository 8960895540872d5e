package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ArticlePurchase grants permanent access to one article. The unique index on
// (wallet_id, article_slug) makes repeated settlement of the same payment a
// no-op regardless of how often the webhook and the poll race.
type ArticlePurchase struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	WalletID     uint            `gorm:"not null;index:ux_article_purchases_wallet_slug,unique,priority:1" json:"wallet_id"`
	ArticleSlug  string          `gorm:"type:varchar(191);not null;index:ux_article_purchases_wallet_slug,unique,priority:2" json:"article_slug"`
	PaymentToken string          `gorm:"type:varchar(64);not null;index" json:"payment_token"`
	PricePaid    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price_paid"`
	PurchasedAt  time.Time       `gorm:"autoCreateTime" json:"purchased_at"`
}

// HasArticlePurchase reports whether the wallet already bought the article.
func HasArticlePurchase(db *gorm.DB, walletID uint, slug string) (bool, error) {
	var count int64
	err := db.Model(&ArticlePurchase{}).
		Where("wallet_id = ? AND article_slug = ?", walletID, slug).
		Count(&count).Error
	return count > 0, err
}
