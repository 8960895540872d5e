package models

import "time"

// Well-known membership slugs. Ranks are stored in the table so new tiers can
// be added without a code change; these constants only name the seeded rows.
const (
	MembershipPublic    = "public"
	MembershipSupporter = "supporter"
	MembershipInsider   = "insider"
)

// MembershipType is a totally ordered access tier. A higher rank permits
// everything lower ranks permit. Exactly one row has IsDefault set; that rank
// is the floor for every wallet.
type MembershipType struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Slug      string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"slug"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	Rank      int       `gorm:"not null;index" json:"rank"`
	IsDefault bool      `gorm:"default:false" json:"is_default"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
