package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/yvza/sudo.party-sub000/app/controllers"
	"github.com/yvza/sudo.party-sub000/internal/pkg/constants"
	"github.com/yvza/sudo.party-sub000/internal/pkg/env"
	"github.com/yvza/sudo.party-sub000/internal/pkg/middleware"
	"github.com/yvza/sudo.party-sub000/internal/pkg/ratelimit"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIBase, cors.New(cors.Config{
		AllowOrigins:     env.GetEnv("PUBLIC_DOMAIN", "http://localhost:3000"),
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept",
	}))

	v1 := api.Group(constants.APIv1)

	v1.Get(constants.AuthNonceRoute, ratelimit.New("auth-nonce", 10, time.Minute), controllers.HandleAuthNonce)
	v1.Post(constants.AuthVerifyRoute, ratelimit.New("auth-verify", 10, time.Minute), controllers.HandleAuthVerify)
	v1.Post(constants.AuthLogoutRoute, middleware.RequireWallet, controllers.HandleAuthLogout)

	v1.Get(constants.MeRoute, controllers.HandleMe)

	v1.Post(constants.PaymentsRoute, middleware.RequireWallet, middleware.RequireFresh, ratelimit.New("payment-create", 5, time.Minute), controllers.HandlePaymentCreate)
	// The webhook authenticates with its body MAC, not a session, and sits
	// outside the browser-facing guards.
	v1.Post(constants.PaymentWebhookRoute, controllers.HandlePaymentWebhook)
	v1.Post(constants.PaymentVerifyRoute, ratelimit.New("payment-verify", 30, time.Minute), controllers.HandlePaymentVerify)

	v1.Get(constants.ArticleAccessRoute, controllers.HandleArticleAccess)
}
