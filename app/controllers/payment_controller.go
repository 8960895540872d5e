package controllers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/yvza/sudo.party-sub000/internal/pkg/audit"
	"github.com/yvza/sudo.party-sub000/internal/pkg/env"
	"github.com/yvza/sudo.party-sub000/internal/pkg/payment"
	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
	"github.com/yvza/sudo.party-sub000/internal/pkg/walletcontext"
)

const settleTimeout = 20 * time.Second

type paymentCreateRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Currency    string `json:"currency" validate:"required,len=3"`
	ArticleSlug string `json:"article_slug"`
	Address     string `json:"address" validate:"required"`
}

// HandlePaymentCreate opens a gateway order for a donation or an article
// purchase. Amounts and slugs in the body are claims, not facts: the service
// re-derives everything against server-side state.
func HandlePaymentCreate(c *fiber.Ctx) error {
	if !isSameOrigin(c) {
		return jsonError(c, fiber.StatusForbidden, reason.ValidationFailed, "cross-origin request rejected")
	}

	var req paymentCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, reason.ValidationFailed, "malformed request body")
	}
	if err := validate.Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, reason.ValidationFailed, "amount, currency and address are required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, reason.ValidationFailed, "amount must be a decimal number")
	}

	ctx, cancel := context.WithTimeout(c.Context(), settleTimeout)
	defer cancel()

	redirectURL, err := paySvc.Initiate(ctx, payment.InitiateInput{
		Address:        req.Address,
		SessionAddress: walletcontext.GetAddress(c),
		Amount:         amount,
		Currency:       req.Currency,
		ArticleSlug:    req.ArticleSlug,
		ClientIP:       c.IP(),
	})
	if err != nil {
		switch reason.CodeOf(err) {
		case reason.ValidationFailed:
			return jsonError(c, fiber.StatusBadRequest, reason.ValidationFailed, reason.SafeMessage(err))
		case reason.PriceMismatch, reason.TamperSuspected:
			// Tamper detail stays in the audit trail.
			return jsonError(c, fiber.StatusBadRequest, reason.ValidationFailed, "payment could not be created")
		case reason.GatewayUnreachable, reason.GatewayRejected:
			return jsonError(c, fiber.StatusBadGateway, reason.CodeOf(err), "payment gateway is unavailable")
		default:
			log.Printf("payment: create failed: %v", err)
			return jsonError(c, fiber.StatusInternalServerError, reason.InternalError, "something went wrong")
		}
	}

	return c.JSON(fiber.Map{"redirect_url": redirectURL})
}

type webhookBody struct {
	Token string `json:"token"`
}

// HandlePaymentWebhook is the gateway-facing settlement adapter. It always
// answers 200 so the gateway stops redelivering; the ok marker is internal.
// Settlement never trusts the body beyond the token, which gets re-verified
// against the gateway anyway.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("X-Gateway-Signature")
	secret := env.GetEnv("GATEWAY_WEBHOOK_SECRET", "")

	if !payment.VerifyWebhookSignature(rawBody, signature, secret) {
		aud.Record(audit.KindWebhookRejected, "", c.IP(),
			"webhook signature verification failed", map[string]interface{}{
				"body_bytes": len(rawBody),
			})
		return c.JSON(fiber.Map{"ok": false})
	}

	var body webhookBody
	if err := c.BodyParser(&body); err != nil || body.Token == "" {
		aud.Record(audit.KindWebhookRejected, "", c.IP(), "webhook body carries no token", nil)
		return c.JSON(fiber.Map{"ok": false})
	}

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	outcome, err := paySvc.Settle(ctx, body.Token, c.IP())
	if err != nil {
		log.Printf("webhook: settlement of %s failed: %v", body.Token, err)
		return c.JSON(fiber.Map{"ok": false})
	}

	return c.JSON(fiber.Map{"ok": outcome.Code == payment.SettleCodeOK})
}

type paymentVerifyRequest struct {
	Token   string `json:"token" validate:"required"`
	Attempt int    `json:"attempt" validate:"gte=0"`
}

// HandlePaymentVerify is the client-driven settlement adapter for when the
// webhook loses the race or never arrives. The attempt counter drives the
// retry hints; an exhausted budget reports "may still be processing", never a
// fabricated failure.
func HandlePaymentVerify(c *fiber.Ctx) error {
	if !isSameOrigin(c) {
		return jsonError(c, fiber.StatusForbidden, reason.ValidationFailed, "cross-origin request rejected")
	}

	var req paymentVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, reason.ValidationFailed, "malformed request body")
	}
	if err := validate.Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, reason.ValidationFailed, "token is required")
	}

	ctx, cancel := context.WithTimeout(c.Context(), settleTimeout)
	defer cancel()

	outcome, err := paySvc.Settle(ctx, req.Token, c.IP())
	if err != nil {
		switch reason.CodeOf(err) {
		case reason.ValidationFailed:
			return jsonError(c, fiber.StatusBadRequest, reason.ValidationFailed, reason.SafeMessage(err))
		case reason.TamperSuspected, reason.PriceMismatch, reason.WalletUnresolvable:
			return jsonError(c, fiber.StatusBadRequest, reason.ValidationFailed, "payment could not be verified")
		default:
			log.Printf("payment: verify of %s failed: %v", req.Token, err)
			return jsonError(c, fiber.StatusInternalServerError, reason.InternalError, "something went wrong")
		}
	}

	if outcome.Code == payment.SettleCodeOK {
		return c.JSON(fiber.Map{
			"status":  "settled",
			"kind":    outcome.Kind,
			"granted": outcome.Granted,
		})
	}

	if payment.Retryable(outcome.Code) && !pollPolicy.Exhausted(req.Attempt) {
		return c.JSON(fiber.Map{
			"status":         "pending",
			"code":           outcome.Code,
			"retryable":      true,
			"retry_after_ms": pollPolicy.NextDelay(req.Attempt).Milliseconds(),
		})
	}
	if payment.Retryable(outcome.Code) {
		return c.JSON(fiber.Map{
			"status":    "pending",
			"code":      outcome.Code,
			"retryable": false,
			"message":   "the payment may still be processing, check back later",
		})
	}

	return c.JSON(fiber.Map{
		"status":    "rejected",
		"code":      outcome.Code,
		"retryable": false,
	})
}
