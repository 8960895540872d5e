package controllers

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/yvza/sudo.party-sub000/internal/pkg/audit"
	"github.com/yvza/sudo.party-sub000/internal/pkg/env"
	"github.com/yvza/sudo.party-sub000/internal/pkg/membership"
	"github.com/yvza/sudo.party-sub000/internal/pkg/payment"
	"github.com/yvza/sudo.party-sub000/internal/pkg/session"
)

var (
	sessions   *session.Manager
	resolver   *membership.Resolver
	paySvc     *payment.Service
	aud        *audit.Recorder
	validate   = validator.New()
	pollPolicy = payment.DefaultSchedule()
)

// InitializeControllers wires the shared dependencies every handler uses.
// Called once from the router during startup.
func InitializeControllers(sess *session.Manager, res *membership.Resolver, svc *payment.Service, recorder *audit.Recorder) {
	sessions = sess
	resolver = res
	paySvc = svc
	aud = recorder
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}

// publicHost is the host the sign-in message must be bound to.
func publicHost() string {
	raw := strings.TrimSpace(env.GetEnv("PUBLIC_DOMAIN", ""))
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}

// isSameOrigin checks the Origin (falling back to Referer) header against the
// configured public host. State-changing endpoints reject cross-site callers;
// the webhook never goes through this because the gateway is not a browser.
func isSameOrigin(c *fiber.Ctx) bool {
	host := publicHost()
	if host == "" {
		return env.IsDev()
	}

	origin := strings.TrimSpace(c.Get(fiber.HeaderOrigin))
	if origin == "" {
		origin = strings.TrimSpace(c.Get(fiber.HeaderReferer))
	}
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}
