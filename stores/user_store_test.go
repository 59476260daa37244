package stores

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pe "pinfeed.io/pinfeed/errors"
)

func TestMemoryUserStoreRegister(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	u, err := s.Register(ctx, "alice", "Alice@Example.com ", "hunter2hunter2")
	require.Nil(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice", u.Username)
	// emails normalize to trimmed lowercase
	assert.Equal(t, "alice@example.com", u.Email)

	// same email in any casing is taken
	_, err = s.Register(ctx, "alice2", "ALICE@example.com", "hunter2hunter2")
	require.NotNil(t, err)
	assert.Equal(t, pe.ErrCodeExisted, err.Code)
}

func TestMemoryUserStoreAuthenticate(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()
	_, err := s.Register(ctx, "bob", "bob@example.com", "hunter2hunter2")
	require.Nil(t, err)

	tcs := []struct {
		name     string
		email    string
		password string
		wantErr  bool
	}{
		{"happy path", "bob@example.com", "hunter2hunter2", false},
		{"case-folded email", "BOB@example.com", "hunter2hunter2", false},
		{"wrong password", "bob@example.com", "not-the-password", true},
		{"unknown email", "nobody@example.com", "hunter2hunter2", true},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			u, aerr := s.Authenticate(ctx, tc.email, tc.password)
			if tc.wantErr {
				require.NotNil(t, aerr)
				// unknown email and bad password are indistinguishable
				assert.Equal(t, pe.ErrCodeUnauthorized, aerr.Code)
				assert.Equal(t, "invalid credentials", aerr.Error())
				return
			}
			require.Nil(t, aerr)
			assert.Equal(t, "bob", u.Username)
		})
	}
}

func TestMemoryUserStoreGetByID(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()
	u, err := s.Register(ctx, "carol", "carol@example.com", "hunter2hunter2")
	require.Nil(t, err)

	got, gerr := s.GetByID(ctx, u.ID)
	require.Nil(t, gerr)
	assert.Equal(t, "carol", got.Username)

	_, gerr = s.GetByID(ctx, "no-such-id")
	require.NotNil(t, gerr)
	assert.Equal(t, pe.ErrCodeNotFound, gerr.Code)
}
