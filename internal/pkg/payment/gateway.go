package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yvza/sudo.party-sub000/internal/pkg/constants"
	"github.com/yvza/sudo.party-sub000/internal/pkg/env"
	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
)

// Gateway is the external payment provider boundary. The HTTP client
// implements it in production; tests substitute a stub.
type Gateway interface {
	CreateCharge(ctx context.Context, in CreateChargeInput) (*Charge, error)
	VerifyCharge(ctx context.Context, token string) (*VerifyResult, error)
}

type CreateChargeInput struct {
	OrderID        string            `json:"order_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description"`
	AdditionalData map[string]string `json:"additional_data,omitempty"`
	ReturnURL      string            `json:"return_url"`
	CallbackURL    string            `json:"callback_url"`
}

// Charge is the gateway's answer to a create call: its token plus the page
// the buyer gets redirected to.
type Charge struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type Client struct {
	MerchantCode string
	APIKey       string
	BaseURL      string
	ReturnURL    string
	CallbackURL  string

	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	returnURL := strings.TrimSpace(env.GetEnv("GATEWAY_RETURN_URL", ""))
	if returnURL == "" && base != "" {
		returnURL = base + "/payment/result"
	}
	callbackURL := strings.TrimSpace(env.GetEnv("GATEWAY_CALLBACK_URL", ""))
	if callbackURL == "" && base != "" {
		callbackURL = base + constants.PaymentWebhookCallbackPath
	}

	return &Client{
		MerchantCode: strings.TrimSpace(env.GetEnv("GATEWAY_MERCHANT_CODE", "")),
		APIKey:       strings.TrimSpace(env.GetEnv("GATEWAY_API_KEY", "")),
		BaseURL:      strings.TrimRight(env.GetEnv("GATEWAY_BASE_URL", ""), "/"),
		ReturnURL:    returnURL,
		CallbackURL:  callbackURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateCharge opens an order with the gateway and returns its token plus the
// redirect target for the buyer.
func (c *Client) CreateCharge(ctx context.Context, in CreateChargeInput) (*Charge, error) {
	if c.MerchantCode == "" || c.APIKey == "" || c.BaseURL == "" {
		return nil, errors.New("GATEWAY_MERCHANT_CODE/GATEWAY_API_KEY/GATEWAY_BASE_URL are not configured")
	}

	in.ReturnURL = c.ReturnURL
	in.CallbackURL = c.CallbackURL
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("X-Merchant-Code", c.MerchantCode)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, reason.Wrap(reason.GatewayUnreachable, "payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, reason.Wrap(reason.GatewayUnreachable, "payment gateway unreachable", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, reason.Wrap(reason.GatewayRejected, "payment gateway rejected the order",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw, 256)))
	}

	var charge Charge
	if err := json.Unmarshal(raw, &charge); err != nil || charge.Token == "" || charge.RedirectURL == "" {
		return nil, reason.Wrap(reason.GatewayRejected, "payment gateway returned an unusable order",
			fmt.Errorf("unexpected create response: %s", truncate(raw, 256)))
	}
	return &charge, nil
}

// verifyEnvelope is the superset of fields the gateway's verify endpoint may
// return; classification into the tagged union happens after decoding.
type verifyEnvelope struct {
	Token          string            `json:"token"`
	OrderID        string            `json:"order_id"`
	PaymentID      string            `json:"payment_id"`
	StatusCode     string            `json:"status_code"`
	StatusText     string            `json:"status_text"`
	Amount         *decimal.Decimal  `json:"amount"`
	Currency       string            `json:"currency"`
	AdditionalData map[string]string `json:"additional_data"`
	Error          string            `json:"error"`
	ErrorMessage   string            `json:"error_message"`
}

// VerifyCharge asks the gateway for the authoritative state of a token. The
// token is the sole input; redirect query parameters are never trusted.
func (c *Client) VerifyCharge(ctx context.Context, token string) (*VerifyResult, error) {
	if c.APIKey == "" || c.BaseURL == "" {
		return nil, errors.New("GATEWAY_API_KEY/GATEWAY_BASE_URL are not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/charges/"+token, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("X-Merchant-Code", c.MerchantCode)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, reason.Wrap(reason.GatewayUnreachable, "payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, reason.Wrap(reason.GatewayUnreachable, "payment gateway unreachable", err)
	}

	return classifyVerifyResponse(raw), nil
}

func classifyVerifyResponse(raw []byte) *VerifyResult {
	var envelope verifyEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &VerifyResult{Kind: VerifyUnrecognized, Raw: raw}
	}

	if envelope.Error != "" {
		return &VerifyResult{
			Kind:         VerifyRejected,
			ErrorCode:    envelope.Error,
			ErrorMessage: envelope.ErrorMessage,
			Raw:          raw,
		}
	}
	if envelope.Token == "" || envelope.Amount == nil {
		return &VerifyResult{Kind: VerifyUnrecognized, Raw: raw}
	}

	return &VerifyResult{
		Kind: VerifyConfirmation,
		Confirmation: &Confirmation{
			Token:          envelope.Token,
			OrderID:        envelope.OrderID,
			PaymentID:      envelope.PaymentID,
			StatusCode:     envelope.StatusCode,
			StatusText:     envelope.StatusText,
			Amount:         *envelope.Amount,
			Currency:       envelope.Currency,
			AdditionalData: envelope.AdditionalData,
			Raw:            raw,
		},
		Raw: raw,
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
