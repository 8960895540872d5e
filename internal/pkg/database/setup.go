package database

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yvza/sudo.party-sub000/app/models"
	"github.com/yvza/sudo.party-sub000/internal/pkg/env"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

func SetupDatabase() {
	var err error
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{})
		if err == nil {
			if err := Migrate(DB); err != nil {
				panic(err)
			}
			if err := SeedMembershipTypes(DB); err != nil {
				panic(err)
			}
			return
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

func GetDB() *gorm.DB {
	return DB
}

// Migrate creates or updates the schema for every model. Also used by the
// sqlite-backed test databases.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.MembershipType{},
		&models.Wallet{},
		&models.Article{},
		&models.PaymentOutbox{},
		&models.Payment{},
		&models.ArticlePurchase{},
		&models.SupporterGrant{},
		&models.AuditEvent{},
	)
}

// SeedMembershipTypes ensures the three seeded tiers exist with exactly one
// default. Existing rows are left untouched so operators can rename tiers.
func SeedMembershipTypes(db *gorm.DB) error {
	seeds := []models.MembershipType{
		{Slug: models.MembershipPublic, Name: "Public", Rank: 1, IsDefault: true},
		{Slug: models.MembershipSupporter, Name: "Supporter", Rank: 2},
		{Slug: models.MembershipInsider, Name: "Insider", Rank: 3},
	}
	for _, seed := range seeds {
		var existing models.MembershipType
		err := db.Where("slug = ?", seed.Slug).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Create(&seed).Error; err != nil {
			return err
		}
	}
	return nil
}
