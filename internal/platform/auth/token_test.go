package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer(testSigningKey, "organlink", time.Hour)

	tok, exp, err := iss.Issue("user-7", []string{RoleDonor})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.Subject)
	assert.Equal(t, []string{RoleDonor}, claims.Roles)
	assert.Equal(t, "organlink", claims.Issuer)
}

func TestIssuer_Expired(t *testing.T) {
	iss := NewIssuer(testSigningKey, "organlink", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _, err := iss.Issue("user-7", nil)
	require.NoError(t, err)

	_, err = NewIssuer(testSigningKey, "organlink", time.Minute).Parse(tok)
	assert.Error(t, err)
}

func TestIssuer_NoKey(t *testing.T) {
	_, _, err := NewIssuer(nil, "organlink", time.Hour).Issue("u", nil)
	assert.Error(t, err)
}
