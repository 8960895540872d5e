package controllers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/yvza/sudo.party-sub000/app/models"
	"github.com/yvza/sudo.party-sub000/internal/pkg/database"
	"github.com/yvza/sudo.party-sub000/internal/pkg/membership"
	"github.com/yvza/sudo.party-sub000/internal/pkg/metrics/counter"
	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
	"github.com/yvza/sudo.party-sub000/internal/pkg/walletcontext"
)

// HandleArticleAccess answers whether the caller may read an article. Rank
// covers it first; an individual purchase covers exactly its one article.
// The denial tells the caller which rank it holds and which it needs, so the
// client can render the right upsell without a second request.
func HandleArticleAccess(c *fiber.Ctx) error {
	slug := c.Params("slug")

	required, err := resolver.RequiredRankFor(slug)
	if err != nil {
		log.Printf("article: required rank lookup for %q failed: %v", slug, err)
		return jsonError(c, fiber.StatusInternalServerError, reason.InternalError, "something went wrong")
	}

	wc := walletcontext.Get(c)
	if !wc.LoggedIn {
		def, err := resolver.DefaultType()
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, reason.InternalError, "something went wrong")
		}
		if membership.Allowed(def.Rank, required) {
			return grantArticleAccess(c, slug, "public")
		}
		return jsonError(c, fiber.StatusUnauthorized, reason.AuthenticationRequired, "login required")
	}

	if membership.Allowed(wc.Rank, required) {
		return grantArticleAccess(c, slug, "membership")
	}

	purchased, err := models.HasArticlePurchase(database.GetDB(), wc.WalletID, slug)
	if err != nil {
		log.Printf("article: purchase lookup for wallet %d failed: %v", wc.WalletID, err)
		return jsonError(c, fiber.StatusInternalServerError, reason.InternalError, "something went wrong")
	}
	if purchased {
		return grantArticleAccess(c, slug, "purchase")
	}

	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error":         reason.InsufficientMembership,
		"message":       "your membership does not cover this article",
		"required_rank": required,
		"held_rank":     wc.Rank,
	})
}

// grantArticleAccess answers an allowed check and counts the view. The
// counter is best effort; a Redis hiccup never blocks access.
func grantArticleAccess(c *fiber.Ctx, slug, via string) error {
	if err := counter.AddArticleView(slug); err != nil {
		log.Printf("article: view counter for %q failed: %v", slug, err)
	}
	return c.JSON(fiber.Map{"access": true, "via": via})
}
