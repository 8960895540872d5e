package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yvza/sudo.party-sub000/app/models"
	"github.com/yvza/sudo.party-sub000/internal/pkg/audit"
	"github.com/yvza/sudo.party-sub000/internal/pkg/membership"
	"github.com/yvza/sudo.party-sub000/internal/pkg/payment"
)

type webhookStubGateway struct {
	verify   *payment.VerifyResult
	verifies int
}

func (g *webhookStubGateway) CreateCharge(ctx context.Context, in payment.CreateChargeInput) (*payment.Charge, error) {
	return nil, fmt.Errorf("create is not part of webhook settlement")
}

func (g *webhookStubGateway) VerifyCharge(ctx context.Context, token string) (*payment.VerifyResult, error) {
	g.verifies++
	return g.verify, nil
}

func setupWebhookTest(t *testing.T, gw payment.Gateway) *gorm.DB {
	t.Helper()
	t.Setenv("GATEWAY_WEBHOOK_SECRET", "hook-secret")
	db := setupControllerTest(t)
	svc := payment.NewServiceFromDB(db, gw, payment.Config{
		Currency:        "USD",
		MinDonation:     decimal.NewFromInt(5),
		SupporterMonths: 3,
		PriceTolerance:  decimal.RequireFromString("0.01"),
		IntegritySecret: "test-secret",
	})
	InitializeControllers(testSessionManager(), membership.NewResolver(db), svc, audit.NewRecorder(db))
	return db
}

func newWebhookApp() *fiber.App {
	app := fiber.New()
	app.Post("/api/v1/payments/webhook", HandlePaymentWebhook)
	return app
}

func signWebhook(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Gateway-Signature", signature)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	return resp.StatusCode, parsed
}

func countAudits(t *testing.T, db *gorm.DB, kind string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.AuditEvent{}).Where("kind = ?", kind).Count(&n).Error)
	return n
}

func TestPaymentWebhookBadSignature(t *testing.T) {
	gw := &webhookStubGateway{}
	db := setupWebhookTest(t, gw)

	body := []byte(`{"token":"tok_hook"}`)
	status, parsed := postWebhook(t, newWebhookApp(), body, "deadbeef")

	// Always 200; a failed check only shows in the internal marker.
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, parsed["ok"])
	assert.Equal(t, 0, gw.verifies)
	assert.EqualValues(t, 1, countAudits(t, db, audit.KindWebhookRejected))
}

func TestPaymentWebhookMissingToken(t *testing.T) {
	gw := &webhookStubGateway{}
	db := setupWebhookTest(t, gw)

	body := []byte(`{}`)
	status, parsed := postWebhook(t, newWebhookApp(), body, signWebhook(body, "hook-secret"))

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, parsed["ok"])
	assert.Equal(t, 0, gw.verifies)
	assert.EqualValues(t, 1, countAudits(t, db, audit.KindWebhookRejected))
}

func TestPaymentWebhookSettlesConfirmedDonation(t *testing.T) {
	addr := "0x00000000000000000000000000000000000000d1"
	gw := &webhookStubGateway{
		verify: &payment.VerifyResult{
			Kind: payment.VerifyConfirmation,
			Confirmation: &payment.Confirmation{
				Token:          "tok_hook",
				OrderID:        "sdp-order-1",
				StatusText:     "paid",
				Amount:         decimal.NewFromInt(10),
				Currency:       "USD",
				AdditionalData: map[string]string{"wallet": addr},
			},
		},
	}
	db := setupWebhookTest(t, gw)

	body := []byte(`{"token":"tok_hook"}`)
	status, parsed := postWebhook(t, newWebhookApp(), body, signWebhook(body, "hook-secret"))

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, parsed["ok"])
	assert.Equal(t, 1, gw.verifies)

	var grants int64
	require.NoError(t, db.Model(&models.SupporterGrant{}).Where("payment_token = ?", "tok_hook").Count(&grants).Error)
	assert.EqualValues(t, 1, grants)

	var wallet models.Wallet
	require.NoError(t, db.Where("address = ?", addr).First(&wallet).Error)
	var tier models.MembershipType
	require.NoError(t, db.First(&tier, wallet.MembershipTypeID).Error)
	assert.Equal(t, models.MembershipSupporter, tier.Slug)
}
