package payment

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yvza/sudo.party-sub000/app/models"
)

// Repository provides the DB operations used by initiation and settlement.
// Exactly-once effects live here: every "create if not exists" rides a unique
// constraint, so the relational store stays the sole arbiter under races.
type Repository interface {
	GetOrCreateWallet(address string) (*models.Wallet, error)
	GetWalletByID(id uint) (*models.Wallet, error)
	BumpEpoch(walletID uint) error

	FindMembershipBySlug(slug string) (*models.MembershipType, error)
	FindArticle(slug string) (*models.Article, error)

	CreateOutbox(row *models.PaymentOutbox) error
	FindOutboxByToken(token string) (*models.PaymentOutbox, error)
	DeleteOutboxByToken(token string) error

	UpsertPayment(p *models.Payment) error
	CreateArticlePurchaseIfNotExists(row *models.ArticlePurchase) (bool, error)
	CreateSupporterGrantIfNotExists(row *models.SupporterGrant) (bool, error)
	ApplyMembershipUpgrade(walletID, typeID uint, tierRank int, expiresAt *time.Time) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetOrCreateWallet(address string) (*models.Wallet, error) {
	return models.GetOrCreateWallet(r.db, address)
}

func (r *gormRepository) GetWalletByID(id uint) (*models.Wallet, error) {
	var w models.Wallet
	if err := r.db.Preload("MembershipType").First(&w, id).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *gormRepository) BumpEpoch(walletID uint) error {
	return models.BumpWalletEpoch(r.db, walletID)
}

func (r *gormRepository) FindMembershipBySlug(slug string) (*models.MembershipType, error) {
	var mt models.MembershipType
	if err := r.db.Where("slug = ?", slug).First(&mt).Error; err != nil {
		return nil, err
	}
	return &mt, nil
}

func (r *gormRepository) FindArticle(slug string) (*models.Article, error) {
	var a models.Article
	if err := r.db.Where("slug = ?", slug).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) CreateOutbox(row *models.PaymentOutbox) error {
	return r.db.Create(row).Error
}

func (r *gormRepository) FindOutboxByToken(token string) (*models.PaymentOutbox, error) {
	var row models.PaymentOutbox
	if err := r.db.Where("token = ?", token).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *gormRepository) DeleteOutboxByToken(token string) error {
	return r.db.Where("token = ?", token).Delete(&models.PaymentOutbox{}).Error
}

// UpsertPayment is keyed by token: repeated verification attempts for the
// same charge converge on one row with last-write-wins status.
func (r *gormRepository) UpsertPayment(p *models.Payment) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"order_id",
			"payment_id",
			"status_code",
			"status_text",
			"raw_payload",
			"updated_at",
		}),
	}).Create(p).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("token = ?", p.Token).First(p).Error
}

func (r *gormRepository) CreateArticlePurchaseIfNotExists(row *models.ArticlePurchase) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "wallet_id"},
			{Name: "article_slug"},
		},
		DoNothing: true,
	}).Create(row)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) CreateSupporterGrantIfNotExists(row *models.SupporterGrant) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "wallet_id"},
			{Name: "payment_token"},
		},
		DoNothing: true,
	}).Create(row)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ApplyMembershipUpgrade moves the wallet to the tier and bumps its session
// epoch in one statement. The guard admits strictly lower ranked tiers (an
// upgrade) and the same tier (a renewal extending the expiry); a higher
// ranked tier is never touched. Double application of one payment is fenced
// upstream by the grant row's unique key, not here.
func (r *gormRepository) ApplyMembershipUpgrade(walletID, typeID uint, tierRank int, expiresAt *time.Time) (bool, error) {
	tx := r.db.Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Where("membership_type_id IN (?) OR membership_type_id = ?",
			r.db.Model(&models.MembershipType{}).Select("id").Where("`rank` < ?", tierRank),
			typeID).
		Updates(map[string]interface{}{
			"membership_type_id":    typeID,
			"membership_expires_at": expiresAt,
			"session_epoch":         gorm.Expr("session_epoch + 1"),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
