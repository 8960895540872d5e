package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/yvza/sudo.party-sub000/app/controllers"
	"github.com/yvza/sudo.party-sub000/internal/pkg/audit"
	"github.com/yvza/sudo.party-sub000/internal/pkg/database"
	"github.com/yvza/sudo.party-sub000/internal/pkg/membership"
	"github.com/yvza/sudo.party-sub000/internal/pkg/middleware"
	"github.com/yvza/sudo.party-sub000/internal/pkg/payment"
	"github.com/yvza/sudo.party-sub000/internal/pkg/session"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	sessions := session.NewManagerFromEnv()
	resolver := membership.NewResolver(database.GetDB()).WithCache()
	recorder := audit.NewRecorder(database.GetDB())
	svc := payment.NewServiceFromDB(database.GetDB(), payment.NewClientFromEnv(), payment.ConfigFromEnv())

	// The wallet context middleware runs first on every request so each
	// handler sees the authoritative rank and epoch, not the cookie snapshot.
	app.Use(middleware.WalletContext(sessions, resolver, recorder))

	controllers.InitializeControllers(sessions, resolver, svc, recorder)

	setup(app, NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
