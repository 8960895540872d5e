package controllers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/yvza/sudo.party-sub000/app/models"
	"github.com/yvza/sudo.party-sub000/internal/pkg/audit"
	"github.com/yvza/sudo.party-sub000/internal/pkg/database"
	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
	"github.com/yvza/sudo.party-sub000/internal/pkg/session"
	"github.com/yvza/sudo.party-sub000/internal/pkg/siwe"
	"github.com/yvza/sudo.party-sub000/internal/pkg/walletcontext"
)

// HandleAuthNonce issues the one-time login nonce and parks it in the pending
// session cookie. The later verify call must echo exactly this nonce inside
// the signed message.
func HandleAuthNonce(c *fiber.Ctx) error {
	nonce, err := session.NewNonce()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, reason.InternalError, "something went wrong")
	}

	d := sessions.Load(c)
	d.Nonce = nonce
	if err := sessions.Save(c, d); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, reason.InternalError, "something went wrong")
	}

	return c.JSON(fiber.Map{"nonce": nonce})
}

type authVerifyRequest struct {
	Message   siwe.Message `json:"message" validate:"required"`
	Signature string       `json:"signature" validate:"required"`
	Remember  bool         `json:"remember"`
}

// HandleAuthVerify checks the signed message and opens a wallet session. All
// verification failure classes collapse into one generic rejection; the real
// reason only ever lands in the audit trail.
func HandleAuthVerify(c *fiber.Ctx) error {
	if !isSameOrigin(c) {
		return jsonError(c, fiber.StatusForbidden, reason.ValidationFailed, "cross-origin request rejected")
	}

	var req authVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, reason.ValidationFailed, "malformed request body")
	}
	if err := validate.Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, reason.ValidationFailed, "message and signature are required")
	}

	d := sessions.Load(c)
	expectedNonce := d.Nonce

	// The nonce burns on first use, success or failure.
	d.Nonce = ""
	if err := sessions.Save(c, d); err != nil {
		log.Printf("auth: failed to burn nonce: %v", err)
	}

	address, err := siwe.Verify(&req.Message, req.Signature, publicHost(), expectedNonce)
	if err != nil {
		aud.Record(audit.KindSignatureInvalid, req.Message.Address, c.IP(),
			"sign-in verification failed", map[string]interface{}{
				"reason": reason.CodeOf(err),
				"domain": req.Message.Domain,
			})
		return jsonError(c, fiber.StatusUnauthorized, reason.InvalidSignature, "invalid signature")
	}

	wallet, err := models.GetOrCreateWallet(database.GetDB(), address)
	if err != nil {
		log.Printf("auth: wallet lookup failed for %s: %v", address, err)
		return jsonError(c, fiber.StatusInternalServerError, reason.InternalError, "something went wrong")
	}

	_, slug, rank, err := resolver.Snapshot(address)
	if err != nil {
		log.Printf("auth: rank lookup failed for %s: %v", address, err)
		return jsonError(c, fiber.StatusInternalServerError, reason.InternalError, "something went wrong")
	}

	now := time.Now()
	fresh := &session.Data{
		LoggedIn:       true,
		Address:        wallet.Address,
		WalletID:       wallet.ID,
		MembershipSlug: slug,
		MembershipRank: rank,
		CreatedAt:      now,
		LastActivity:   now,
		Remember:       req.Remember,
		LastSignedAt:   now,
		Epoch:          wallet.SessionEpoch,
	}
	if err := sessions.Save(c, fresh); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, reason.InternalError, "something went wrong")
	}

	return c.JSON(fiber.Map{
		"address":         wallet.Address,
		"membership_slug": slug,
		"membership_rank": rank,
	})
}

// HandleAuthLogout revokes every session of the wallet by bumping its epoch,
// then expires the caller's cookie.
func HandleAuthLogout(c *fiber.Ctx) error {
	wc := walletcontext.Get(c)
	if wc.LoggedIn {
		if err := models.BumpWalletEpoch(database.GetDB(), wc.WalletID); err != nil {
			log.Printf("auth: epoch bump failed for wallet %d: %v", wc.WalletID, err)
			return jsonError(c, fiber.StatusInternalServerError, reason.InternalError, "something went wrong")
		}
		aud.Record(audit.KindSessionRevoked, wc.Address, c.IP(), "logout", nil)
	}
	sessions.Destroy(c)
	return c.JSON(fiber.Map{"ok": true})
}

// HandleMe returns the caller's session snapshot with the authoritative rank,
// re-read on this request by the wallet context middleware.
func HandleMe(c *fiber.Ctx) error {
	wc := walletcontext.Get(c)
	if !wc.LoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, reason.AuthenticationRequired, "login required")
	}
	return c.JSON(fiber.Map{
		"address":         wc.Address,
		"membership_slug": wc.MembershipSlug,
		"membership_rank": wc.Rank,
		"fresh":           wc.Fresh,
	})
}
