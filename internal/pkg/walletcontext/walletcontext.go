package walletcontext

import "github.com/gofiber/fiber/v2"

// LocalsKey is where the request middleware stores the resolved context.
const LocalsKey = "WALLET_CONTEXT"

// WalletContext is the per-request view of the caller. Rank and slug are
// re-read from the membership resolver on every request, so they are
// authoritative here even though the cookie only carries a snapshot.
type WalletContext struct {
	WalletID       uint   `json:"wallet_id"`
	Address        string `json:"address"`
	LoggedIn       bool   `json:"logged_in"`
	MembershipSlug string `json:"membership_slug"`
	Rank           int    `json:"rank"`
	Epoch          uint64 `json:"epoch"`
	Fresh          bool   `json:"fresh"`
}

// Get retrieves the wallet context from the fiber context, defaulting to an
// anonymous context when none was set.
func Get(c *fiber.Ctx) WalletContext {
	if ctx := c.Locals(LocalsKey); ctx != nil {
		if wc, ok := ctx.(WalletContext); ok {
			return wc
		}
	}
	return WalletContext{}
}

// IsLoggedIn checks if the current caller holds a live session.
func IsLoggedIn(c *fiber.Ctx) bool {
	return Get(c).LoggedIn
}

// GetAddress returns the caller's wallet address, or "" when anonymous.
func GetAddress(c *fiber.Ctx) string {
	return Get(c).Address
}

// GetWalletID returns the caller's wallet row id, or 0 when anonymous.
func GetWalletID(c *fiber.Ctx) uint {
	return Get(c).WalletID
}
