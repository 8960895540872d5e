package reason

import (
	"errors"
	"fmt"
)

// Stable machine-readable reason codes returned to clients and written to the
// audit trail. Codes are part of the API contract; renaming one is a breaking
// change.
const (
	AuthenticationRequired = "authentication_required"
	InvalidSignature       = "invalid_signature"
	NonceMismatch          = "nonce_mismatch"
	DomainMismatch         = "domain_mismatch"
	SessionExpiredIdle     = "session_expired_idle"
	SessionExpiredAbsolute = "session_expired_absolute"
	SessionRevokedEpoch    = "session_revoked_epoch"
	InsufficientMembership = "insufficient_membership"
	ValidationFailed       = "validation_failed"
	PriceMismatch          = "price_mismatch"
	TamperSuspected        = "tamper_suspected"
	GatewayUnreachable     = "gateway_unreachable"
	GatewayRejected        = "gateway_rejected"
	PaymentPending         = "payment_pending"
	WalletUnresolvable     = "wallet_unresolvable"
	TooManyRequests        = "too_many_requests"
	InternalError          = "internal_error"
)

// Error carries a reason code plus a message that is safe to show to a
// client. Internal causes stay wrapped and are only ever logged server-side.
type Error struct {
	Code    string
	Message string
	cause   error
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf extracts the reason code from err, or InternalError when err carries
// no code.
func CodeOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return InternalError
}

// IsCode reports whether err carries the given reason code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// SafeMessage returns the client-safe message for err; internal errors get a
// generic message so no internals leak.
func SafeMessage(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Message
	}
	return "something went wrong"
}
