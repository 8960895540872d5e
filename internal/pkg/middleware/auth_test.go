package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yvza/sudo.party-sub000/internal/pkg/walletcontext"
)

func newGuardedApp(guard fiber.Handler, wc *walletcontext.WalletContext) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if wc != nil {
			c.Locals(walletcontext.LocalsKey, *wc)
		}
		return c.Next()
	})
	app.Post("/guarded", guard, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func postGuarded(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestRequireWallet(t *testing.T) {
	t.Run("anonymous is refused", func(t *testing.T) {
		resp := postGuarded(t, newGuardedApp(RequireWallet, nil))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("logged in passes", func(t *testing.T) {
		wc := &walletcontext.WalletContext{LoggedIn: true, WalletID: 1}
		resp := postGuarded(t, newGuardedApp(RequireWallet, wc))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRequireFresh(t *testing.T) {
	t.Run("anonymous is refused", func(t *testing.T) {
		resp := postGuarded(t, newGuardedApp(RequireFresh, nil))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("stale signature is refused", func(t *testing.T) {
		// A valid session whose last signature fell out of the freshness
		// window must not reach the handler.
		wc := &walletcontext.WalletContext{LoggedIn: true, WalletID: 1, Fresh: false}
		resp := postGuarded(t, newGuardedApp(RequireFresh, wc))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("fresh signature passes", func(t *testing.T) {
		wc := &walletcontext.WalletContext{LoggedIn: true, WalletID: 1, Fresh: true}
		resp := postGuarded(t, newGuardedApp(RequireFresh, wc))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
