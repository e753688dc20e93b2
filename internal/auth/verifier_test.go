package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACRoundTrip(t *testing.T) {
	v, err := NewVerifier("hmac", "s3cret", "")
	require.NoError(t, err)
	tok, err := v.Sign(map[string]any{"sub": "ana", "role": "Dispatcher", "exp": time.Now().Add(time.Hour).Unix()})
	require.NoError(t, err)

	p, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{Subject: "ana", Role: RoleDispatcher}, p)
	assert.True(t, p.Can(RoleDispatcher))
	assert.False(t, Principal{Role: RoleViewer}.Can(RoleDispatcher))
	assert.True(t, Principal{Role: RoleAdmin}.Can(RoleDispatcher))
}

func TestHMACRejects(t *testing.T) {
	v, err := NewVerifier("hmac", "s3cret", "")
	require.NoError(t, err)
	other, _ := NewVerifier("hmac", "other", "")
	forged, _ := other.Sign(map[string]any{"role": "admin"})
	_, err = v.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, _ := v.Sign(map[string]any{"role": "admin", "exp": time.Now().Add(-time.Minute).Unix()})
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrExpired)

	noRole, _ := v.Sign(map[string]any{"sub": "x"})
	p, err := v.Verify(noRole)
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, p.Role)
}

func TestModes(t *testing.T) {
	off, err := NewVerifier("", "", "")
	require.NoError(t, err)
	assert.False(t, off.Enabled())
	p, _ := off.Verify("")
	assert.Equal(t, RoleAdmin, p.Role)

	dev, err := NewVerifier("dev", "", "")
	require.NoError(t, err)
	p, err = dev.Verify("Viewer")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, p.Role)

	_, err = NewVerifier("hmac", "", "")
	assert.Error(t, err)
	_, err = NewVerifier("jwks", "", "")
	assert.Error(t, err)
}
