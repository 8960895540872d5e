package middleware

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/yvza/sudo.party-sub000/internal/pkg/audit"
	"github.com/yvza/sudo.party-sub000/internal/pkg/membership"
	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
	"github.com/yvza/sudo.party-sub000/internal/pkg/session"
	"github.com/yvza/sudo.party-sub000/internal/pkg/walletcontext"
)

// WalletContext resolves the session cookie into a per-request wallet context
// for every request. The cookie's membership snapshot is advisory only: the
// authoritative rank and epoch are re-read from the store here, so a rank
// change or revocation takes effect on the very next request.
func WalletContext(sessions *session.Manager, resolver *membership.Resolver, aud *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d := sessions.Load(c)
		if !d.LoggedIn {
			c.Locals(walletcontext.LocalsKey, walletcontext.WalletContext{})
			return c.Next()
		}

		now := time.Now()
		wallet, slug, rank, err := resolver.Snapshot(d.Address)
		if err != nil || wallet == nil {
			// A logged-in cookie for a wallet we cannot resolve is not a
			// session we can trust.
			log.Printf("session: cannot resolve wallet %s: %v", d.Address, err)
			sessions.Destroy(c)
			c.Locals(walletcontext.LocalsKey, walletcontext.WalletContext{})
			return c.Next()
		}

		if err := sessions.Validate(d, wallet.SessionEpoch, now); err != nil {
			if reason.IsCode(err, reason.SessionRevokedEpoch) {
				aud.Record(audit.KindSessionRevoked, d.Address, c.IP(),
					"stale epoch session destroyed", nil)
			}
			sessions.Destroy(c)
			c.Locals(walletcontext.LocalsKey, walletcontext.WalletContext{})
			return c.Next()
		}

		// Roll the idle window forward and persist the advisory snapshot;
		// the only session mutation a plain request is allowed to make.
		sessions.Touch(d, now)
		d.MembershipSlug = slug
		d.MembershipRank = rank
		if err := sessions.Save(c, d); err != nil {
			log.Printf("session: failed to refresh cookie: %v", err)
		}

		c.Locals(walletcontext.LocalsKey, walletcontext.WalletContext{
			WalletID:       wallet.ID,
			Address:        wallet.Address,
			LoggedIn:       true,
			MembershipSlug: slug,
			Rank:           rank,
			Epoch:          wallet.SessionEpoch,
			Fresh:          sessions.Fresh(d, now),
		})
		return c.Next()
	}
}
