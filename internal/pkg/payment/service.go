package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yvza/sudo.party-sub000/app/models"
	"github.com/yvza/sudo.party-sub000/internal/pkg/audit"
	"github.com/yvza/sudo.party-sub000/internal/pkg/env"
	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
)

type Config struct {
	// Currency is the single settlement currency; anything else is rejected.
	Currency string
	// MinDonation is the floor for membership donations.
	MinDonation decimal.Decimal
	// SupporterMonths is how many months one donation extends the supporter
	// tier; zero means the grant does not expire.
	SupporterMonths int
	// PriceTolerance absorbs gateway rounding on amount comparison.
	PriceTolerance decimal.Decimal
	// IntegritySecret keys the outbox integrity hash.
	IntegritySecret string
}

func ConfigFromEnv() Config {
	minDonation, err := decimal.NewFromString(env.GetEnv("PAYMENT_MIN_DONATION", "5"))
	if err != nil {
		minDonation = decimal.NewFromInt(5)
	}
	tolerance, err := decimal.NewFromString(env.GetEnv("PAYMENT_PRICE_TOLERANCE", "0.01"))
	if err != nil {
		tolerance = decimal.RequireFromString("0.01")
	}
	return Config{
		Currency:        strings.ToUpper(env.GetEnv("PAYMENT_CURRENCY", "USD")),
		MinDonation:     minDonation,
		SupporterMonths: env.GetEnvInt("SUPPORTER_MONTHS", 3),
		PriceTolerance:  tolerance,
		IntegritySecret: env.GetEnv("OUTBOX_INTEGRITY_SECRET", ""),
	}
}

// Service implements payment initiation and the idempotent settlement
// procedure both the webhook and the poll adapters call into.
type Service struct {
	repo Repository
	gw   Gateway
	aud  *audit.Recorder
	cfg  Config
}

func NewService(repo Repository, gw Gateway, aud *audit.Recorder, cfg Config) *Service {
	return &Service{repo: repo, gw: gw, aud: aud, cfg: cfg}
}

// NewServiceFromDB wires a service from a GORM handle and a gateway client.
func NewServiceFromDB(db *gorm.DB, gw Gateway, cfg Config) *Service {
	return NewService(NewRepository(db), gw, audit.NewRecorder(db), cfg)
}

type InitiateInput struct {
	// Address is the wallet the caller claims to pay for.
	Address string
	// SessionAddress is the wallet bound to the caller's live session; it
	// must equal Address or the request is rejected.
	SessionAddress string
	Amount         decimal.Decimal
	Currency       string
	// ArticleSlug is set for individual article purchases, empty for
	// membership donations.
	ArticleSlug string
	ClientIP    string
}

// Initiate validates a purchase/donation request against server-side truth,
// opens a gateway order and records the outbox intent row before the caller
// gets redirected.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (string, error) {
	addr := models.NormalizeAddress(in.Address)
	if !models.IsValidAddress(addr) {
		return "", reason.New(reason.ValidationFailed, "invalid wallet address")
	}
	if addr != models.NormalizeAddress(in.SessionAddress) {
		s.aud.Record(audit.KindTamperSuspected, in.SessionAddress, in.ClientIP,
			"payment initiation for a foreign wallet", map[string]interface{}{
				"claimed_wallet": addr,
			})
		return "", reason.New(reason.ValidationFailed, "wallet does not match session")
	}
	if !strings.EqualFold(strings.TrimSpace(in.Currency), s.cfg.Currency) {
		return "", reason.New(reason.ValidationFailed, "unsupported currency")
	}
	if !in.Amount.IsPositive() {
		return "", reason.New(reason.ValidationFailed, "amount must be positive")
	}

	description := "sudo.party membership donation"
	if in.ArticleSlug != "" {
		article, err := s.repo.FindArticle(in.ArticleSlug)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", reason.New(reason.ValidationFailed, "unknown article")
			}
			return "", err
		}
		if !article.IndividuallyPurchasable() {
			return "", reason.New(reason.ValidationFailed, "article is not purchasable")
		}
		if !s.amountMatches(in.Amount, *article.Price) {
			s.aud.Record(audit.KindTamperSuspected, addr, in.ClientIP,
				"submitted amount differs from server price", map[string]interface{}{
					"article":   article.Slug,
					"submitted": in.Amount.String(),
					"price":     article.Price.String(),
				})
			return "", reason.New(reason.PriceMismatch, "amount does not match the article price")
		}
		description = "sudo.party article: " + article.Slug
	} else if in.Amount.LessThan(s.cfg.MinDonation) {
		return "", reason.New(reason.ValidationFailed,
			fmt.Sprintf("minimum donation is %s %s", s.cfg.MinDonation.StringFixed(2), s.cfg.Currency))
	}

	wallet, err := s.repo.GetOrCreateWallet(addr)
	if err != nil {
		return "", err
	}

	orderID := "sdp-" + uuid.NewString()
	charge, err := s.gw.CreateCharge(ctx, CreateChargeInput{
		OrderID:     orderID,
		Amount:      in.Amount,
		Currency:    s.cfg.Currency,
		Description: description,
		AdditionalData: map[string]string{
			"wallet":  addr,
			"article": in.ArticleSlug,
		},
	})
	if err != nil {
		return "", err
	}

	now := time.Now()
	outbox := &models.PaymentOutbox{
		Token:             charge.Token,
		OrderID:           orderID,
		WalletID:          wallet.ID,
		ArticleSlug:       in.ArticleSlug,
		ExpectedPrice:     in.Amount,
		IntegrityHash:     s.integrityHash(charge.Token, orderID, in.Amount),
		IntegrityIssuedAt: &now,
	}
	if err := s.repo.CreateOutbox(outbox); err != nil {
		return "", err
	}
	return charge.RedirectURL, nil
}

// Settle is the single idempotent settlement procedure. The webhook and poll
// adapters may race arbitrarily; every attempt re-verifies with the gateway
// and converges through unique constraints, so applying the same confirmed
// payment N times equals applying it once.
func (s *Service) Settle(ctx context.Context, token, clientIP string) (*SettleOutcome, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, reason.New(reason.ValidationFailed, "token is required")
	}

	vr, err := s.gw.VerifyCharge(ctx, token)
	if err != nil {
		// A gateway outage is indistinguishable from "still processing";
		// report pending so the caller retries instead of failing hard.
		if reason.IsCode(err, reason.GatewayUnreachable) {
			return &SettleOutcome{Code: reason.PaymentPending}, nil
		}
		return nil, err
	}

	switch vr.Kind {
	case VerifyRejected:
		// Rejections land in the dedupe/audit table too; last-write-wins on
		// status like any other verification attempt.
		if err := s.repo.UpsertPayment(&models.Payment{
			Token:      token,
			StatusCode: truncate([]byte(vr.ErrorCode), 13),
			StatusText: truncate([]byte(vr.ErrorMessage), 61),
			RawPayload: string(vr.Raw),
		}); err != nil {
			return nil, err
		}
		return &SettleOutcome{Code: reason.GatewayRejected}, nil
	case VerifyUnrecognized:
		return &SettleOutcome{Code: reason.PaymentPending}, nil
	}

	conf := vr.Confirmation
	if conf.Token != token {
		s.aud.Record(audit.KindTamperSuspected, conf.WalletAddress(), clientIP,
			"gateway echoed a different token", map[string]interface{}{
				"requested": token,
				"echoed":    conf.Token,
			})
		return nil, reason.New(reason.TamperSuspected, "payment could not be verified")
	}

	// Dedupe/audit record first: every verification attempt lands here,
	// success or not, last-write-wins on status.
	if err := s.repo.UpsertPayment(&models.Payment{
		Token:      conf.Token,
		OrderID:    conf.OrderID,
		PaymentID:  conf.PaymentID,
		StatusCode: conf.StatusCode,
		StatusText: conf.StatusText,
		RawPayload: string(conf.Raw),
	}); err != nil {
		return nil, err
	}

	if !conf.Approved() {
		return &SettleOutcome{Code: reason.PaymentPending}, nil
	}

	outbox, err := s.repo.FindOutboxByToken(token)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if outbox != nil && outbox.OrderID != conf.OrderID {
		s.aud.Record(audit.KindTamperSuspected, conf.WalletAddress(), clientIP,
			"confirmation order id does not match outbox", map[string]interface{}{
				"token":          token,
				"outbox_order":   outbox.OrderID,
				"gateway_order":  conf.OrderID,
				"gateway_amount": conf.Amount.String(),
			})
		return nil, reason.New(reason.TamperSuspected, "payment could not be verified")
	}

	if outbox != nil && outbox.IntegrityHash != "" &&
		outbox.IntegrityHash != s.integrityHash(outbox.Token, outbox.OrderID, outbox.ExpectedPrice) {
		s.aud.Record(audit.KindTamperSuspected, conf.WalletAddress(), clientIP,
			"outbox integrity hash does not verify", map[string]interface{}{
				"token": token,
			})
		return nil, reason.New(reason.TamperSuspected, "payment could not be verified")
	}

	wallet, err := s.resolveWallet(outbox, conf)
	if err != nil {
		return nil, err
	}

	articleSlug := conf.ArticleSlug()
	if outbox != nil && outbox.ArticleSlug != "" {
		articleSlug = outbox.ArticleSlug
	}

	var outcome *SettleOutcome
	if articleSlug != "" {
		outcome, err = s.settleArticle(wallet, articleSlug, conf, clientIP)
	} else {
		outcome, err = s.settleDonation(wallet, conf, clientIP)
	}
	if err != nil {
		return nil, err
	}

	// The intent row served its purpose; leftovers are only diagnostic.
	if err := s.repo.DeleteOutboxByToken(token); err != nil {
		return nil, err
	}
	return outcome, nil
}

// settleArticle re-derives the canonical price from article metadata: the
// gateway's echoed amount confirms payment but never authorizes the price.
func (s *Service) settleArticle(wallet *models.Wallet, slug string, conf *Confirmation, clientIP string) (*SettleOutcome, error) {
	article, err := s.repo.FindArticle(slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reason.New(reason.ValidationFailed, "unknown article")
		}
		return nil, err
	}
	if !article.IndividuallyPurchasable() {
		return nil, reason.New(reason.ValidationFailed, "article is not purchasable")
	}
	if !s.amountMatches(conf.Amount, *article.Price) {
		s.aud.Record(audit.KindTamperSuspected, wallet.Address, clientIP,
			"paid amount differs from canonical article price", map[string]interface{}{
				"article": article.Slug,
				"paid":    conf.Amount.String(),
				"price":   article.Price.String(),
				"token":   conf.Token,
			})
		return nil, reason.New(reason.PriceMismatch, "paid amount does not match the article price")
	}

	created, err := s.repo.CreateArticlePurchaseIfNotExists(&models.ArticlePurchase{
		WalletID:     wallet.ID,
		ArticleSlug:  article.Slug,
		PaymentToken: conf.Token,
		PricePaid:    conf.Amount,
	})
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.repo.BumpEpoch(wallet.ID); err != nil {
			return nil, err
		}
		s.aud.Record(audit.KindGrantApplied, wallet.Address, clientIP,
			"article purchase settled", map[string]interface{}{
				"article": article.Slug,
				"token":   conf.Token,
			})
	}
	return &SettleOutcome{Code: SettleCodeOK, Kind: SettleKindArticle, Granted: created}, nil
}

// settleDonation upgrades the wallet to the supporter tier, monotonically:
// a wallet already holding an equal or higher live tier is never touched, so
// the invite-only top tier survives any donation flow.
func (s *Service) settleDonation(wallet *models.Wallet, conf *Confirmation, clientIP string) (*SettleOutcome, error) {
	if conf.Amount.LessThan(s.cfg.MinDonation) {
		s.aud.Record(audit.KindTamperSuspected, wallet.Address, clientIP,
			"donation below the configured minimum", map[string]interface{}{
				"paid":  conf.Amount.String(),
				"token": conf.Token,
			})
		return nil, reason.New(reason.PriceMismatch, "donation below the minimum amount")
	}

	tier, err := s.repo.FindMembershipBySlug(models.MembershipSupporter)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var expiresAt *time.Time
	if s.cfg.SupporterMonths > 0 {
		base := now
		if wallet.MembershipExpiresAt != nil && wallet.MembershipExpiresAt.After(now) {
			base = *wallet.MembershipExpiresAt
		}
		t := base.AddDate(0, s.cfg.SupporterMonths, 0)
		expiresAt = &t
	}

	created, err := s.repo.CreateSupporterGrantIfNotExists(&models.SupporterGrant{
		WalletID:     wallet.ID,
		PaymentToken: conf.Token,
		StartsAt:     now,
		ExpiresAt:    expiresAt,
		Source:       models.GrantSourceDonation,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		// This token was already recorded; the earlier attempt did the work.
		return &SettleOutcome{Code: SettleCodeOK, Kind: SettleKindDonation, Granted: false}, nil
	}

	upgraded, err := s.repo.ApplyMembershipUpgrade(wallet.ID, tier.ID, tier.Rank, expiresAt)
	if err != nil {
		return nil, err
	}
	if !upgraded {
		// Equal or higher live tier: record the grant history, change nothing.
		return &SettleOutcome{Code: SettleCodeOK, Kind: SettleKindDonation, Granted: true}, nil
	}

	// ApplyMembershipUpgrade already bumped the epoch, so every live session
	// picks up the new rank on its next request.
	s.aud.Record(audit.KindGrantApplied, wallet.Address, clientIP,
		"membership donation settled", map[string]interface{}{
			"tier":  tier.Slug,
			"token": conf.Token,
		})
	return &SettleOutcome{Code: SettleCodeOK, Kind: SettleKindDonation, Granted: true}, nil
}

func (s *Service) resolveWallet(outbox *models.PaymentOutbox, conf *Confirmation) (*models.Wallet, error) {
	if outbox != nil {
		return s.repo.GetWalletByID(outbox.WalletID)
	}
	addr := models.NormalizeAddress(conf.WalletAddress())
	if !models.IsValidAddress(addr) {
		return nil, reason.New(reason.WalletUnresolvable, "payment carries no resolvable wallet")
	}
	return s.repo.GetOrCreateWallet(addr)
}

func (s *Service) amountMatches(got, want decimal.Decimal) bool {
	return got.Sub(want).Abs().LessThanOrEqual(s.cfg.PriceTolerance)
}

func (s *Service) integrityHash(token, orderID string, amount decimal.Decimal) string {
	sum := sha256.Sum256([]byte(token + "|" + orderID + "|" + amount.StringFixed(2) + "|" + s.cfg.IntegritySecret))
	return hex.EncodeToString(sum[:])
}
