package token

import (
	"testing"
	"time"

	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	issuer := NewIssuer([]byte("test-secret"), time.Hour, clk)

	raw, expiresAt, err := issuer.Issue("42", "alice", "alice@example.com", "customer")
	require.NoError(t, err)
	require.Equal(t, clk.Now().Add(time.Hour), expiresAt)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "42", claims.Subject)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "customer", claims.Role)
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	issuer := NewIssuer([]byte("test-secret"), time.Hour, clk)

	raw, _, err := issuer.Issue("42", "alice", "alice@example.com", "customer")
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	_, err = issuer.Parse(raw)
	require.ErrorIs(t, err, ErrExpired)

	other := NewIssuer([]byte("other-secret"), time.Hour, clk)
	foreign, _, err := other.Issue("42", "alice", "alice@example.com", "admin")
	require.NoError(t, err)
	_, err = issuer.Parse(foreign)
	require.ErrorIs(t, err, ErrInvalid)
}
