// Package membership maps wallets to ranked access tiers. Rank is a total
// order: a higher rank permits everything lower ranks permit, and equality
// grants access.
package membership

import (
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/yvza/sudo.party-sub000/app/models"
	"github.com/yvza/sudo.party-sub000/internal/pkg/cache"
)

const rankCacheTTL = 5 * time.Minute

// Resolver answers rank questions from the relational store. Read paths never
// create wallet rows; only identity verification and payment flows do that.
type Resolver struct {
	db       *gorm.DB
	useCache bool
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// WithCache enables the Redis-backed rank cache for tier metadata. Tests and
// one-off tools run without it.
func (r *Resolver) WithCache() *Resolver {
	r.useCache = true
	return r
}

// DefaultType returns the tier marked is_default, the floor for any wallet.
func (r *Resolver) DefaultType() (*models.MembershipType, error) {
	var mt models.MembershipType
	if err := r.db.Where("is_default = ?", true).First(&mt).Error; err != nil {
		return nil, err
	}
	return &mt, nil
}

// RankBySlug resolves a tier slug to its rank. Unknown slugs fall back to the
// default rank so a stale article reference degrades to public instead of
// locking everyone out.
func (r *Resolver) RankBySlug(slug string) (int, error) {
	if slug == "" {
		def, err := r.DefaultType()
		if err != nil {
			return 0, err
		}
		return def.Rank, nil
	}

	if r.useCache {
		if v, err := cache.GetInt("membership:rank:" + slug); err == nil {
			return v, nil
		}
	}

	var mt models.MembershipType
	err := r.db.Where("slug = ?", slug).First(&mt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		def, derr := r.DefaultType()
		if derr != nil {
			return 0, derr
		}
		return def.Rank, nil
	}
	if err != nil {
		return 0, err
	}

	if r.useCache {
		_ = cache.Set("membership:rank:"+slug, strconv.Itoa(mt.Rank), rankCacheTTL)
	}
	return mt.Rank, nil
}

// RankFor maps a wallet address to its effective rank. Absent wallets resolve
// to the default rank without inserting a row. Expiry is enforced lazily at
// read time: a lapsed time-limited membership reads as the default rank.
func (r *Resolver) RankFor(address string) (int, error) {
	_, _, rank, err := r.Snapshot(address)
	return rank, err
}

// Snapshot returns the wallet row (nil when absent) together with the
// effective membership slug and rank.
func (r *Resolver) Snapshot(address string) (*models.Wallet, string, int, error) {
	return r.snapshot(address, time.Now())
}

func (r *Resolver) snapshot(address string, now time.Time) (*models.Wallet, string, int, error) {
	w, err := models.FindWalletByAddress(r.db, address)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		def, derr := r.DefaultType()
		if derr != nil {
			return nil, "", 0, derr
		}
		return nil, def.Slug, def.Rank, nil
	}
	if err != nil {
		return nil, "", 0, err
	}

	if w.MembershipExpired(now) || w.MembershipType == nil {
		def, derr := r.DefaultType()
		if derr != nil {
			return nil, "", 0, derr
		}
		return w, def.Slug, def.Rank, nil
	}
	return w, w.MembershipType.Slug, w.MembershipType.Rank, nil
}

// RequiredRankFor derives the rank needed to read an article from its
// metadata. Unknown articles and articles without a declared tier require
// only the default (public) rank.
func (r *Resolver) RequiredRankFor(articleSlug string) (int, error) {
	var a models.Article
	err := r.db.Where("slug = ?", articleSlug).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.RankBySlug("")
	}
	if err != nil {
		return 0, err
	}
	return r.RankBySlug(a.MembershipSlug)
}

// Allowed is the access decision; ties grant access.
func Allowed(viewerRank, requiredRank int) bool {
	return viewerRank >= requiredRank
}
