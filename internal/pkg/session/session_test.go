package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
)

func testManager() *Manager {
	return NewManager(Config{
		CookieName:              "sdp_session",
		HashKey:                 []byte("0123456789abcdef0123456789abcdef"),
		BlockKey:                []byte("fedcba9876543210fedcba9876543210"),
		IdleTimeout:             time.Hour,
		IdleTimeoutRemember:     24 * time.Hour,
		AbsoluteTimeout:         24 * time.Hour,
		AbsoluteTimeoutRemember: 30 * 24 * time.Hour,
		FreshnessWindow:         15 * time.Minute,
		CookieMaxAge:            35 * 24 * time.Hour,
	})
}

func liveSession(now time.Time) *Data {
	return &Data{
		LoggedIn:     true,
		Address:      "0xabc0000000000000000000000000000000000001",
		WalletID:     1,
		CreatedAt:    now.Add(-time.Minute),
		LastActivity: now.Add(-time.Minute),
		LastSignedAt: now.Add(-time.Minute),
		Epoch:        3,
	}
}

func TestValidateStates(t *testing.T) {
	m := testManager()
	now := time.Now()

	tests := []struct {
		name     string
		mutate   func(*Data)
		epoch    uint64
		wantCode string
	}{
		{name: "live", mutate: func(*Data) {}, epoch: 3, wantCode: ""},
		{name: "anonymous", mutate: func(d *Data) { d.LoggedIn = false }, epoch: 3, wantCode: reason.AuthenticationRequired},
		{name: "idle expired", mutate: func(d *Data) { d.LastActivity = now.Add(-2 * time.Hour) }, epoch: 3, wantCode: reason.SessionExpiredIdle},
		{name: "absolute expired", mutate: func(d *Data) {
			d.CreatedAt = now.Add(-25 * time.Hour)
			d.LastActivity = now
		}, epoch: 3, wantCode: reason.SessionExpiredAbsolute},
		{name: "epoch revoked", mutate: func(*Data) {}, epoch: 4, wantCode: reason.SessionRevokedEpoch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := liveSession(now)
			tt.mutate(d)
			err := m.Validate(d, tt.epoch, now)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantCode, reason.CodeOf(err))
		})
	}
}

func TestValidateRememberExtendsTimeouts(t *testing.T) {
	m := testManager()
	now := time.Now()

	d := liveSession(now)
	d.LastActivity = now.Add(-5 * time.Hour)

	err := m.Validate(d, 3, now)
	assert.Equal(t, reason.SessionExpiredIdle, reason.CodeOf(err))

	d.Remember = true
	assert.NoError(t, m.Validate(d, 3, now))
}

func TestEpochBumpInvalidatesImmediately(t *testing.T) {
	m := testManager()
	now := time.Now()

	d := liveSession(now)
	require.NoError(t, m.Validate(d, d.Epoch, now))

	// A privilege change bumps the wallet epoch; the very next validation of
	// the same cookie must fail regardless of idle/absolute timers.
	err := m.Validate(d, d.Epoch+1, now)
	assert.Equal(t, reason.SessionRevokedEpoch, reason.CodeOf(err))
}

func TestFreshness(t *testing.T) {
	m := testManager()
	now := time.Now()

	d := liveSession(now)
	assert.True(t, m.Fresh(d, now))

	d.LastSignedAt = now.Add(-time.Hour)
	assert.False(t, m.Fresh(d, now), "stale signature must fail freshness even while the session is valid")
	require.NoError(t, m.Validate(d, 3, now))
}

func TestCookieRoundTrip(t *testing.T) {
	m := testManager()
	now := time.Now().Truncate(time.Second)

	d := liveSession(now)
	d.Nonce = "one-time"

	encoded, err := m.sc.Encode(m.cfg.CookieName, d)
	require.NoError(t, err)
	assert.NotContains(t, encoded, d.Address, "cookie must not leak the address in cleartext")

	var out Data
	require.NoError(t, m.sc.Decode(m.cfg.CookieName, encoded, &out))
	assert.Equal(t, d.Address, out.Address)
	assert.Equal(t, d.Epoch, out.Epoch)
	assert.Equal(t, d.Nonce, out.Nonce)
}

func TestTamperedCookieRejected(t *testing.T) {
	m := testManager()
	d := liveSession(time.Now())

	encoded, err := m.sc.Encode(m.cfg.CookieName, d)
	require.NoError(t, err)

	tampered := encoded[:len(encoded)-2] + "xx"
	var out Data
	assert.Error(t, m.sc.Decode(m.cfg.CookieName, tampered, &out))
}

func TestNewNonceIsUnique(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	b, err := NewNonce()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
}
