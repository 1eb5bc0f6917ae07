package auth

import (
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/stretchr/testify/require"
)

func TestRoomTokenRoundTrip(t *testing.T) {
    tok, err := IssueRoomToken("secret", 10, 42, time.Minute)
    require.NoError(t, err)
    require.NotEmpty(t, tok.Token)

    claims, err := NewVerifier("secret").Verify(tok.Token)
    require.NoError(t, err)
    require.Equal(t, uint64(10), claims.UserID)
    require.Equal(t, uint64(42), claims.Room)
    require.Equal(t, Namespace, claims.Namespace)
    require.WithinDuration(t, tok.Exp, claims.ExpiresAt, time.Second)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
    tok, err := IssueRoomToken("secret", 10, 42, time.Minute)
    require.NoError(t, err)

    _, err = NewVerifier("another").Verify(tok.Token)
    require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
    tok, err := IssueRoomToken("secret", 10, 42, -time.Minute)
    require.NoError(t, err)

    _, err = NewVerifier("secret").Verify(tok.Token)
    require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
    for _, raw := range []string{"", "garbage", "a.b.c"} {
        _, err := NewVerifier("secret").Verify(raw)
        require.ErrorIs(t, err, ErrInvalidToken)
    }
}

// Tokens minted for other subsystems share the signing key but carry a
// different namespace; they must never open a seating room.
func TestVerifyRejectsForeignNamespace(t *testing.T) {
    claims := jwt.MapClaims{
        "sub":  uint64(10),
        "ns":   "billing",
        "room": uint64(42),
        "exp":  time.Now().Add(time.Minute).Unix(),
    }
    raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
    require.NoError(t, err)

    _, err = NewVerifier("secret").Verify(raw)
    require.ErrorIs(t, err, ErrInvalidToken)
}

// A validly-signed token without an exp claim would never expire; it is
// refused outright.
func TestVerifyRejectsMissingExpiry(t *testing.T) {
    claims := jwt.MapClaims{
        "sub":  uint64(10),
        "ns":   Namespace,
        "room": uint64(42),
    }
    raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
    require.NoError(t, err)

    _, err = NewVerifier("secret").Verify(raw)
    require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMissingSubjectOrRoom(t *testing.T) {
    cases := []jwt.MapClaims{
        {"ns": Namespace, "room": uint64(42), "exp": time.Now().Add(time.Minute).Unix()},
        {"ns": Namespace, "sub": uint64(10), "exp": time.Now().Add(time.Minute).Unix()},
        {"ns": Namespace, "sub": uint64(0), "room": uint64(42), "exp": time.Now().Add(time.Minute).Unix()},
    }
    for _, mc := range cases {
        raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString([]byte("secret"))
        require.NoError(t, err)
        _, err = NewVerifier("secret").Verify(raw)
        require.ErrorIs(t, err, ErrInvalidToken)
    }
}
