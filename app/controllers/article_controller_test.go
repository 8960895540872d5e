package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gofiber/fiber/v2"

	"github.com/yvza/sudo.party-sub000/app/models"
	"github.com/yvza/sudo.party-sub000/internal/pkg/audit"
	"github.com/yvza/sudo.party-sub000/internal/pkg/database"
	"github.com/yvza/sudo.party-sub000/internal/pkg/membership"
	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
	"github.com/yvza/sudo.party-sub000/internal/pkg/session"
	"github.com/yvza/sudo.party-sub000/internal/pkg/walletcontext"
)

func testSessionManager() *session.Manager {
	return session.NewManager(session.Config{
		CookieName:              "sdp_session",
		HashKey:                 []byte("0123456789abcdef0123456789abcdef"),
		BlockKey:                []byte("fedcba9876543210fedcba9876543210"),
		IdleTimeout:             time.Hour,
		IdleTimeoutRemember:     24 * time.Hour,
		AbsoluteTimeout:         24 * time.Hour,
		AbsoluteTimeoutRemember: 30 * 24 * time.Hour,
		FreshnessWindow:         15 * time.Minute,
		CookieMaxAge:            35 * 24 * time.Hour,
	})
}

// setupControllerTest points the package globals at a fresh sqlite database.
func setupControllerTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.SeedMembershipTypes(db))

	database.DB = db
	InitializeControllers(testSessionManager(), membership.NewResolver(db), nil, audit.NewRecorder(db))
	return db
}

func newAccessApp(wc walletcontext.WalletContext) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(walletcontext.LocalsKey, wc)
		return c.Next()
	})
	app.Get("/api/v1/articles/:slug/access", HandleArticleAccess)
	return app
}

func getAccess(t *testing.T, app *fiber.App, slug string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/articles/"+slug+"/access", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

func TestArticleAccessPublicArticleAnonymous(t *testing.T) {
	db := setupControllerTest(t)
	require.NoError(t, db.Create(&models.Article{Slug: "open-post", Title: "Open post"}).Error)

	status, body := getAccess(t, newAccessApp(walletcontext.WalletContext{}), "open-post")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["access"])
	assert.Equal(t, "public", body["via"])
}

func TestArticleAccessGatedArticleAnonymous(t *testing.T) {
	db := setupControllerTest(t)
	require.NoError(t, db.Create(&models.Article{
		Slug:           "members-only",
		Title:          "Members only",
		MembershipSlug: models.MembershipSupporter,
	}).Error)

	status, body := getAccess(t, newAccessApp(walletcontext.WalletContext{}), "members-only")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, reason.AuthenticationRequired, body["error"])
}

func TestArticleAccessGatedArticleInsufficientRank(t *testing.T) {
	db := setupControllerTest(t)
	require.NoError(t, db.Create(&models.Article{
		Slug:           "members-only",
		Title:          "Members only",
		MembershipSlug: models.MembershipSupporter,
	}).Error)
	w, err := models.GetOrCreateWallet(db, "0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)

	app := newAccessApp(walletcontext.WalletContext{
		WalletID: w.ID,
		Address:  w.Address,
		LoggedIn: true,
		Rank:     1,
	})
	status, body := getAccess(t, app, "members-only")
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, reason.InsufficientMembership, body["error"])
	assert.EqualValues(t, 2, body["required_rank"])
	assert.EqualValues(t, 1, body["held_rank"])
}

func TestArticleAccessGatedArticleSufficientRank(t *testing.T) {
	db := setupControllerTest(t)
	require.NoError(t, db.Create(&models.Article{
		Slug:           "members-only",
		Title:          "Members only",
		MembershipSlug: models.MembershipSupporter,
	}).Error)

	app := newAccessApp(walletcontext.WalletContext{
		WalletID: 1,
		Address:  "0x00000000000000000000000000000000000000ab",
		LoggedIn: true,
		Rank:     2,
	})
	status, body := getAccess(t, app, "members-only")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "membership", body["via"])
}

func TestArticleAccessViaPurchase(t *testing.T) {
	db := setupControllerTest(t)
	price := decimal.NewFromInt(10)
	require.NoError(t, db.Create(&models.Article{
		Slug:           "deep-dive",
		Title:          "Deep dive",
		MembershipSlug: models.MembershipSupporter,
		Price:          &price,
		Purchasable:    true,
	}).Error)
	w, err := models.GetOrCreateWallet(db, "0x00000000000000000000000000000000000000ac")
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.ArticlePurchase{
		WalletID:     w.ID,
		ArticleSlug:  "deep-dive",
		PaymentToken: "tok_test",
		PricePaid:    price,
	}).Error)

	app := newAccessApp(walletcontext.WalletContext{
		WalletID: w.ID,
		Address:  w.Address,
		LoggedIn: true,
		Rank:     1,
	})
	status, body := getAccess(t, app, "deep-dive")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "purchase", body["via"])
}
