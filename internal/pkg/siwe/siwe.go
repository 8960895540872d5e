// Package siwe verifies EIP-4361 style sign-in messages. The wallet address
// recovered from the secp256k1 signature is the sole identity primitive; key
// custody is the wallet's problem, not ours.
package siwe

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
)

// Message is the structured sign-in payload the client signed. The canonical
// text built by Prepare is what the wallet actually put under personal_sign.
type Message struct {
	Domain    string `json:"domain" validate:"required"`
	Address   string `json:"address" validate:"required"`
	Statement string `json:"statement"`
	URI       string `json:"uri"`
	Version   string `json:"version"`
	ChainID   int    `json:"chainId"`
	Nonce     string `json:"nonce" validate:"required"`
	IssuedAt  string `json:"issuedAt"`
}

// Prepare renders the message into the EIP-4361 canonical signing text.
func (m *Message) Prepare() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to sign in with your Ethereum account:\n%s\n", m.Domain, m.Address)
	if m.Statement != "" {
		fmt.Fprintf(&b, "\n%s\n", m.Statement)
	}
	fmt.Fprintf(&b, "\nURI: %s\nVersion: %s\nChain ID: %d\nNonce: %s\nIssued At: %s",
		m.URI, m.Version, m.ChainID, m.Nonce, m.IssuedAt)
	return b.String()
}

// Verify checks the message against the request's host and the server-issued
// nonce, then recovers the signer from the signature. On success it returns
// the lowercase signer address. Distinct reason codes come back for auditing;
// the transport layer collapses them all into one generic rejection.
func Verify(m *Message, signature, expectedDomain, expectedNonce string) (string, error) {
	if !strings.EqualFold(strings.TrimSpace(m.Domain), strings.TrimSpace(expectedDomain)) {
		return "", reason.New(reason.DomainMismatch, "invalid signature")
	}
	if expectedNonce == "" ||
		subtle.ConstantTimeCompare([]byte(m.Nonce), []byte(expectedNonce)) != 1 {
		return "", reason.New(reason.NonceMismatch, "invalid signature")
	}
	if !common.IsHexAddress(strings.TrimSpace(m.Address)) {
		return "", reason.New(reason.InvalidSignature, "invalid signature")
	}

	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil || len(sig) != crypto.SignatureLength {
		return "", reason.New(reason.InvalidSignature, "invalid signature")
	}
	// Wallets emit V as 27/28, go-ethereum expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(m.Prepare()))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", reason.New(reason.InvalidSignature, "invalid signature")
	}

	recovered := crypto.PubkeyToAddress(*pub)
	if !strings.EqualFold(recovered.Hex(), strings.TrimSpace(m.Address)) {
		return "", reason.New(reason.InvalidSignature, "invalid signature")
	}
	return strings.ToLower(recovered.Hex()), nil
}
