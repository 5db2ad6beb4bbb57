package service

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	authdomain "github.com/smallbiznis/moviestore/internal/auth/domain"
	"github.com/smallbiznis/moviestore/internal/auth/password"
	"github.com/smallbiznis/moviestore/internal/auth/repository"
	"github.com/smallbiznis/moviestore/internal/auth/token"
	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
	"gorm.io/gorm"
)

type fixture struct {
	svc   authdomain.Service
	db    *gorm.DB
	clock *clock.FakeClock
}

func newTestService(t *testing.T) fixture {
	t.Helper()

	conn := testutil.NewDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:     conn,
		Log:    testutil.NewLogger(t),
		GenID:  testutil.NewNode(t),
		Repo:   repository.Provide(),
		Tokens: token.NewIssuer([]byte("test-secret"), time.Hour, clk),
		Clock:  clk,
	})
	return fixture{svc: svc, db: conn, clock: clk}
}

func register(t *testing.T, f fixture, username string) *authdomain.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), authdomain.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct-password",
	})
	require.NoError(t, err)
	return user
}

func TestRegisterCreatesCustomer(t *testing.T) {
	f := newTestService(t)

	user, err := f.svc.Register(context.Background(), authdomain.RegisterRequest{
		Username: "alice",
		Email:    "  Alice@Example.com ",
		Password: "correct-password",
	})
	require.NoError(t, err)

	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, authdomain.RoleCustomer, user.Role)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "correct-password", user.PasswordHash)
}

func TestRegisterValidation(t *testing.T) {
	f := newTestService(t)
	register(t, f, "alice")

	cases := []struct {
		name string
		req  authdomain.RegisterRequest
		want error
	}{
		{"short username", authdomain.RegisterRequest{Username: "al", Email: "al@example.com", Password: "correct-password"}, authdomain.ErrInvalidUsername},
		{"bad email", authdomain.RegisterRequest{Username: "carol", Email: "not-an-email", Password: "correct-password"}, authdomain.ErrInvalidEmail},
		{"weak password", authdomain.RegisterRequest{Username: "carol", Email: "carol@example.com", Password: "short"}, authdomain.ErrWeakPassword},
		{"duplicate username", authdomain.RegisterRequest{Username: "alice", Email: "other@example.com", Password: "correct-password"}, authdomain.ErrUserExists},
		{"duplicate email", authdomain.RegisterRequest{Username: "alice2", Email: "alice@example.com", Password: "correct-password"}, authdomain.ErrUserExists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newTestService(t)
	register(t, f, "alice")

	_, err := f.svc.Login(context.Background(), authdomain.LoginRequest{
		Login:    "alice",
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), authdomain.LoginRequest{
		Login:    "nobody",
		Password: "correct-password",
	})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)
}

func TestLoginByEmailAndAuthenticate(t *testing.T) {
	f := newTestService(t)
	user := register(t, f, "alice")

	result, err := f.svc.Login(context.Background(), authdomain.LoginRequest{
		Login:    "alice@example.com",
		Password: "correct-password",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, f.clock.Now().Add(time.Hour), result.ExpiresAt)

	principal, err := f.svc.Authenticate(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.UserID)
	assert.Equal(t, "alice", principal.Username)
	assert.Equal(t, authdomain.RoleCustomer, principal.Role)
}

func TestAuthenticateReadsRoleFromStore(t *testing.T) {
	f := newTestService(t)
	user := register(t, f, "alice")

	result, err := f.svc.Login(context.Background(), authdomain.LoginRequest{Login: "alice", Password: "correct-password"})
	require.NoError(t, err)

	require.NoError(t, f.db.Exec(`UPDATE users SET role = ? WHERE id = ?`, "admin", user.ID).Error)

	principal, err := f.svc.Authenticate(context.Background(), result.Token)
	require.NoError(t, err)
	assert.True(t, principal.IsPrivileged())
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	f := newTestService(t)
	user := register(t, f, "alice")

	_, err := f.svc.Authenticate(context.Background(), "garbage")
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)

	result, err := f.svc.Login(context.Background(), authdomain.LoginRequest{Login: "alice", Password: "correct-password"})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.Authenticate(context.Background(), result.Token)
	assert.ErrorIs(t, err, authdomain.ErrTokenExpired)

	f.clock.Advance(-2 * time.Hour)
	require.NoError(t, f.db.Exec(`UPDATE users SET is_active = ? WHERE id = ?`, false, user.ID).Error)
	_, err = f.svc.Authenticate(context.Background(), result.Token)
	assert.ErrorIs(t, err, authdomain.ErrUserInactive)
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	f := newTestService(t)
	user := register(t, f, "alice")

	var stored string
	require.NoError(t, f.db.Raw(`SELECT password_hash FROM users WHERE id = ?`, user.ID).Scan(&stored).Error)
	weak := strings.Replace(stored, "t=1,", "t=2,", 1)
	weak = weak[:strings.LastIndex(weak, "$")+1] + recomputeKey(t, stored, "correct-password", 2)
	require.NoError(t, f.db.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, weak, user.ID).Error)
	require.True(t, password.NeedsRehash(weak))

	_, err := f.svc.Login(context.Background(), authdomain.LoginRequest{Login: "alice", Password: "correct-password"})
	require.NoError(t, err)

	require.NoError(t, f.db.Raw(`SELECT password_hash FROM users WHERE id = ?`, user.ID).Scan(&stored).Error)
	assert.False(t, password.NeedsRehash(stored))
	assert.True(t, password.Verify("correct-password", stored))
}

// recomputeKey derives the key for the salt in encoded with a different time cost.
func recomputeKey(t *testing.T, encoded, plain string, timeCost uint32) string {
	t.Helper()
	parts := strings.Split(encoded, "$")
	require.Len(t, parts, 6)
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	require.NoError(t, err)
	return base64.RawStdEncoding.EncodeToString(argon2.IDKey([]byte(plain), salt, timeCost, 64*1024, 4, 32))
}

func TestLoginInactiveUser(t *testing.T) {
	f := newTestService(t)
	user := register(t, f, "alice")
	require.NoError(t, f.db.Exec(`UPDATE users SET is_active = ? WHERE id = ?`, false, user.ID).Error)

	_, err := f.svc.Login(context.Background(), authdomain.LoginRequest{Login: "alice", Password: "correct-password"})
	assert.ErrorIs(t, err, authdomain.ErrUserInactive)
}

func TestGetUserNotFound(t *testing.T) {
	f := newTestService(t)

	_, err := f.svc.GetUser(context.Background(), 42)
	assert.ErrorIs(t, err, authdomain.ErrUserNotFound)
}
