package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pe "pinfeed.io/pinfeed/errors"
)

func TestToken_IssueAndVerify(t *testing.T) {
	svc := New("test-secret", time.Hour)
	signed, err := svc.Issue("user-123")
	require.Nil(t, err)
	require.NotEmpty(t, signed)

	uid, verr := svc.Verify(signed)
	require.Nil(t, verr)
	assert.Equal(t, "user-123", uid)
}

func TestToken_VerifyFailures(t *testing.T) {
	svc := New("test-secret", time.Hour)
	signed, err := svc.Issue("user-123")
	require.Nil(t, err)

	tcs := []struct {
		name  string
		token string
	}{
		{
			name:  "Garbage",
			token: "not.a.token",
		},
		{
			name: "WrongSecret",
			token: func() string {
				other := New("other-secret", time.Hour)
				s, err := other.Issue("user-123")
				require.Nil(t, err)
				return s
			}(),
		},
		{
			name: "Expired",
			token: func() string {
				expired := New("test-secret", -time.Minute)
				s, err := expired.Issue("user-123")
				require.Nil(t, err)
				return s
			}(),
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			_, verr := svc.Verify(c.token)
			require.NotNil(t, verr)
			assert.Equal(t, pe.ErrCodeUnauthorized, verr.Code)
		})
	}

	// the untampered token still verifies
	uid, verr := svc.Verify(signed)
	require.Nil(t, verr)
	assert.Equal(t, "user-123", uid)
}
