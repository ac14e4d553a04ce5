package service

import (
	"context"
	"testing"
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T, admins ...string) (*userService, *testClock) {
	t.Helper()
	clock := &testClock{t: t0}
	svc := NewUserService(memory.New(), testLogger(), UserServiceConfig{
		SessionDuration: time.Hour,
		AdminEmails:     admins,
	}).(*userService)
	svc.now = clock.Now
	return svc, clock
}

func TestUserService_Register(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, domain.RegisterParams{
		Email:    "  Asha@Example.org ",
		Password: "long enough",
		Name:     "Asha",
	})
	require.NoError(t, err)

	assert.Equal(t, "asha@example.org", u.Email)
	assert.Equal(t, domain.RoleUnset, u.Role)
	assert.Equal(t, domain.PlanVolunteerFree, u.Plan)
	assert.Empty(t, u.PasswordHash)

	_, err = svc.Register(ctx, domain.RegisterParams{Email: "asha@example.org", Password: "another one", Name: "Asha"})
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
}

func TestUserService_Register_Validation(t *testing.T) {
	svc, _ := newUserService(t)

	tests := []struct {
		name   string
		params domain.RegisterParams
	}{
		{"bad email", domain.RegisterParams{Email: "nope", Password: "long enough", Name: "A"}},
		{"short password", domain.RegisterParams{Email: "a@example.org", Password: "short", Name: "A"}},
		{"missing name", domain.RegisterParams{Email: "a@example.org", Password: "long enough", Name: " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.params)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}
}

func TestUserService_Register_AdminEmail(t *testing.T) {
	svc, _ := newUserService(t, "Root@Example.org")

	u, err := svc.Register(context.Background(), domain.RegisterParams{
		Email: "root@example.org", Password: "long enough", Name: "Root",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
}

func TestUserService_LoginSessionLifecycle(t *testing.T) {
	svc, clock := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, domain.RegisterParams{Email: "a@example.org", Password: "long enough", Name: "A"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "a@example.org", "wrong password")
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
	_, err = svc.Login(ctx, "nobody@example.org", "long enough")
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))

	res, err := svc.Login(ctx, "A@example.org", "long enough")
	require.NoError(t, err)
	assert.Len(t, res.Token, SessionTokenBytes*2)
	assert.Equal(t, t0.Add(time.Hour), res.ExpiresAt)

	u, err := svc.GetBySessionToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, u.ID)
	assert.Empty(t, u.PasswordHash)

	clock.Advance(2 * time.Hour)
	_, err = svc.GetBySessionToken(ctx, res.Token)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err), "expired session")
}

func TestUserService_Logout(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, domain.RegisterParams{Email: "a@example.org", Password: "long enough", Name: "A"})
	require.NoError(t, err)
	res, err := svc.Login(ctx, "a@example.org", "long enough")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.Token))
	_, err = svc.GetBySessionToken(ctx, res.Token)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))

	assert.NoError(t, svc.Logout(ctx, res.Token), "logout is idempotent")
	assert.NoError(t, svc.Logout(ctx, "garbage"))
}

func TestUserService_GetBySessionToken_Malformed(t *testing.T) {
	svc, _ := newUserService(t)

	_, err := svc.GetBySessionToken(context.Background(), "abc")
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
}
