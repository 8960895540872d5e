package siwe

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
)

func signedMessage(t *testing.T, nonce string) (*Message, string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	m := &Message{
		Domain:    "sudo.party",
		Address:   addr.Hex(),
		Statement: "Sign in to sudo.party",
		URI:       "https://sudo.party",
		Version:   "1",
		ChainID:   1,
		Nonce:     nonce,
		IssuedAt:  "2026-01-02T15:04:05Z",
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(m.Prepare())), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	// Present the signature the way wallets do, with V = 27/28.
	sig[crypto.RecoveryIDOffset] += 27
	return m, hexutil.Encode(sig)
}

func TestVerifyRecoversSigner(t *testing.T) {
	m, sig := signedMessage(t, "nonce-1")

	got, err := Verify(m, sig, "sudo.party", "nonce-1")
	if err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
	if got != strings.ToLower(m.Address) {
		t.Fatalf("recovered %q, want lowercase of %q", got, m.Address)
	}
}

func TestVerifyDomainMismatch(t *testing.T) {
	m, sig := signedMessage(t, "nonce-1")

	_, err := Verify(m, sig, "evil.example", "nonce-1")
	if !reason.IsCode(err, reason.DomainMismatch) {
		t.Fatalf("expected domain mismatch, got %v", err)
	}
}

func TestVerifyNonceMismatch(t *testing.T) {
	m, sig := signedMessage(t, "nonce-1")

	_, err := Verify(m, sig, "sudo.party", "other-nonce")
	if !reason.IsCode(err, reason.NonceMismatch) {
		t.Fatalf("expected nonce mismatch, got %v", err)
	}
	_, err = Verify(m, sig, "sudo.party", "")
	if !reason.IsCode(err, reason.NonceMismatch) {
		t.Fatalf("expected nonce mismatch for absent nonce, got %v", err)
	}
}

func TestVerifyRejectsForeignAddress(t *testing.T) {
	m, sig := signedMessage(t, "nonce-1")
	m.Address = "0x000000000000000000000000000000000000dEaD"

	// Changing the claimed address also changes the signed text, so recovery
	// cannot land on the claimed address.
	_, err := Verify(m, sig, "sudo.party", "nonce-1")
	if !reason.IsCode(err, reason.InvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestVerifyRejectsGarbageSignature(t *testing.T) {
	m, _ := signedMessage(t, "nonce-1")

	for _, sig := range []string{"", "0xdeadbeef", "not-hex"} {
		if _, err := Verify(m, sig, "sudo.party", "nonce-1"); !reason.IsCode(err, reason.InvalidSignature) {
			t.Fatalf("signature %q: expected invalid signature, got %v", sig, err)
		}
	}
}
