package constants

// API route constants
const (
	APIBase = "/api"
	APIv1   = "/v1"

	AuthNonceRoute  = "/auth/nonce"
	AuthVerifyRoute = "/auth/verify"
	AuthLogoutRoute = "/auth/logout"
	MeRoute         = "/me"

	PaymentsRoute       = "/payments"
	PaymentWebhookRoute = "/payments/webhook"
	PaymentVerifyRoute  = "/payments/verify"

	ArticleAccessRoute = "/articles/:slug/access"

	// Absolute webhook path for gateway callback URL construction
	PaymentWebhookCallbackPath = "/api/v1/payments/webhook"
)
