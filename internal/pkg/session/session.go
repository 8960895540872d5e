// Package session implements the client-held session blob: an encrypted,
// HMAC-signed cookie carrying the wallet identity and its validity timers.
// The cookie's outer max-age is deliberately longer than any inner timeout;
// the inner timeouts plus the wallet's session epoch are the real
// enforcement, because cookie expiry alone cannot revoke a stolen token.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/securecookie"

	"github.com/yvza/sudo.party-sub000/internal/pkg/env"
	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
)

// Data is the session snapshot stored inside the cookie. The membership
// fields are an advisory cache only: access decisions always re-read the
// authoritative rank from the membership resolver.
type Data struct {
	LoggedIn       bool      `json:"logged_in"`
	Address        string    `json:"address,omitempty"`
	WalletID       uint      `json:"wallet_id,omitempty"`
	MembershipSlug string    `json:"membership_slug,omitempty"`
	MembershipRank int       `json:"membership_rank,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
	Remember       bool      `json:"remember,omitempty"`
	LastSignedAt   time.Time `json:"last_signed_at,omitempty"`
	Epoch          uint64    `json:"epoch"`
	Nonce          string    `json:"nonce,omitempty"`
}

type Config struct {
	CookieName string
	HashKey    []byte
	BlockKey   []byte

	IdleTimeout             time.Duration
	IdleTimeoutRemember     time.Duration
	AbsoluteTimeout         time.Duration
	AbsoluteTimeoutRemember time.Duration
	FreshnessWindow         time.Duration
	CookieMaxAge            time.Duration

	Secure bool
}

type Manager struct {
	cfg Config
	sc  *securecookie.SecureCookie
}

func NewManager(cfg Config) *Manager {
	sc := securecookie.New(cfg.HashKey, cfg.BlockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(int(cfg.CookieMaxAge.Seconds()))
	return &Manager{cfg: cfg, sc: sc}
}

func NewManagerFromEnv() *Manager {
	hashKey, err := hex.DecodeString(env.GetEnv("SESSION_HASH_KEY", ""))
	if err != nil || len(hashKey) < 32 {
		panic("SESSION_HASH_KEY must be at least 32 hex-encoded bytes")
	}
	blockKey, err := hex.DecodeString(env.GetEnv("SESSION_BLOCK_KEY", ""))
	if err != nil || len(blockKey) != 32 {
		panic("SESSION_BLOCK_KEY must be exactly 32 hex-encoded bytes")
	}

	return NewManager(Config{
		CookieName:              env.GetEnv("SESSION_COOKIE_NAME", "sdp_session"),
		HashKey:                 hashKey,
		BlockKey:                blockKey,
		IdleTimeout:             env.GetEnvDuration("SESSION_IDLE_TIMEOUT", 1*time.Hour),
		IdleTimeoutRemember:     env.GetEnvDuration("SESSION_IDLE_TIMEOUT_REMEMBER", 24*time.Hour),
		AbsoluteTimeout:         env.GetEnvDuration("SESSION_ABSOLUTE_TIMEOUT", 24*time.Hour),
		AbsoluteTimeoutRemember: env.GetEnvDuration("SESSION_ABSOLUTE_TIMEOUT_REMEMBER", 30*24*time.Hour),
		FreshnessWindow:         env.GetEnvDuration("SESSION_FRESHNESS_WINDOW", 15*time.Minute),
		CookieMaxAge:            env.GetEnvDuration("SESSION_COOKIE_MAX_AGE", 35*24*time.Hour),
		Secure:                  !env.IsDev(),
	})
}

// Load decodes the session cookie. A missing or undecodable cookie yields a
// fresh anonymous session rather than an error.
func (m *Manager) Load(c *fiber.Ctx) *Data {
	raw := c.Cookies(m.cfg.CookieName)
	if raw == "" {
		return &Data{}
	}
	var d Data
	if err := m.sc.Decode(m.cfg.CookieName, raw, &d); err != nil {
		return &Data{}
	}
	return &d
}

// Save encodes the session into the cookie.
func (m *Manager) Save(c *fiber.Ctx, d *Data) error {
	encoded, err := m.sc.Encode(m.cfg.CookieName, d)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     m.cfg.CookieName,
		Value:    encoded,
		Path:     "/",
		Expires:  time.Now().Add(m.cfg.CookieMaxAge),
		HTTPOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return nil
}

// Destroy expires the cookie immediately.
func (m *Manager) Destroy(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Validate is a pure check of the session against the wallet's current epoch
// and the clock. It has no side effects; callers roll LastActivity forward
// with Touch after a successful check.
func (m *Manager) Validate(d *Data, currentEpoch uint64, now time.Time) error {
	if d == nil || !d.LoggedIn {
		return reason.New(reason.AuthenticationRequired, "login required")
	}

	absolute := m.cfg.AbsoluteTimeout
	idle := m.cfg.IdleTimeout
	if d.Remember {
		absolute = m.cfg.AbsoluteTimeoutRemember
		idle = m.cfg.IdleTimeoutRemember
	}

	if now.Sub(d.CreatedAt) > absolute {
		return reason.New(reason.SessionExpiredAbsolute, "session expired")
	}
	if now.Sub(d.LastActivity) > idle {
		return reason.New(reason.SessionExpiredIdle, "session expired")
	}
	if d.Epoch != currentEpoch {
		return reason.New(reason.SessionRevokedEpoch, "session revoked")
	}
	return nil
}

// Fresh reports whether the last signature is recent enough for especially
// sensitive actions, independent of general session validity.
func (m *Manager) Fresh(d *Data, now time.Time) bool {
	return d != nil && d.LoggedIn && now.Sub(d.LastSignedAt) <= m.cfg.FreshnessWindow
}

// Touch rolls the idle window forward.
func (m *Manager) Touch(d *Data, now time.Time) {
	d.LastActivity = now
}

// NewNonce generates the one-time login nonce stored in the pending session.
func NewNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
