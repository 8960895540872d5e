package payment

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Gateway response shapes are loosely typed on the wire, so verification
// results are modeled as a tagged union with an explicit unrecognized variant
// instead of guessing from ad hoc field presence.

type VerifyKind int

const (
	// VerifyConfirmation carries a well-formed charge confirmation.
	VerifyConfirmation VerifyKind = iota
	// VerifyRejected is the gateway explicitly refusing the token.
	VerifyRejected
	// VerifyUnrecognized is a response we could not classify (non-JSON,
	// unknown shape). Treated as "not yet completed", never as success.
	VerifyUnrecognized
)

// Confirmation is the verified-charge value object both settlement adapters
// converge on. Everything here was echoed by the gateway's verify API, never
// by the redirect URL or the webhook body.
type Confirmation struct {
	Token          string            `json:"token"`
	OrderID        string            `json:"order_id"`
	PaymentID      string            `json:"payment_id"`
	StatusCode     string            `json:"status_code"`
	StatusText     string            `json:"status_text"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	AdditionalData map[string]string `json:"additional_data"`
	Raw            json.RawMessage   `json:"-"`
}

// Approved reports whether the gateway considers the charge settled. Only an
// explicit paid/approved status counts; everything else is "not yet".
func (c *Confirmation) Approved() bool {
	switch strings.ToLower(strings.TrimSpace(c.StatusText)) {
	case "paid", "approved", "settled":
		return true
	}
	return c.StatusCode == "00"
}

// WalletAddress returns the wallet the gateway attached to the charge, used
// when a confirmation arrives without a matching outbox row.
func (c *Confirmation) WalletAddress() string {
	return strings.TrimSpace(c.AdditionalData["wallet"])
}

// ArticleSlug returns the purchased article, empty for donations.
func (c *Confirmation) ArticleSlug() string {
	return strings.TrimSpace(c.AdditionalData["article"])
}

// VerifyResult is the tagged union returned by the gateway verify call.
type VerifyResult struct {
	Kind         VerifyKind
	Confirmation *Confirmation
	ErrorCode    string
	ErrorMessage string
	Raw          []byte
}

// SettleOutcome is what a settlement attempt produced, shared by the webhook
// and poll transport adapters.
type SettleOutcome struct {
	// Code is "ok" on success, otherwise a reason code such as
	// payment_pending.
	Code string `json:"code"`
	// Kind is "article" or "donation" once the payment kind is known.
	Kind string `json:"kind,omitempty"`
	// Granted is true when this attempt applied a new grant (as opposed to
	// converging on one applied earlier).
	Granted bool `json:"granted"`
}

const (
	SettleKindArticle  = "article"
	SettleKindDonation = "donation"
	SettleCodeOK       = "ok"
)
