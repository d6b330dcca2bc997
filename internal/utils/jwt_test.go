package utils

import (
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestNewStaffTokenClaims(t *testing.T) {
    tok, err := NewStaffToken("secret", "alex", 30)
    require.NoError(t, err)
    require.NotEmpty(t, tok.Token)

    parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (any, error) {
        return []byte("secret"), nil
    })
    require.NoError(t, err)
    require.True(t, parsed.Valid)

    claims := parsed.Claims.(jwt.MapClaims)
    assert.Equal(t, "alex", claims["sub"])
    assert.Equal(t, "staff", claims["role"])

    // Exp mirrors the TTL.
    assert.WithinDuration(t, time.Now().UTC().Add(30*time.Minute), tok.Exp, 5*time.Second)
}

func TestMasterKeyRoundTrip(t *testing.T) {
    hash, err := HashMasterKey("open-sesame", 4)
    require.NoError(t, err)

    assert.True(t, VerifyMasterKey(hash, "open-sesame"))
    assert.False(t, VerifyMasterKey(hash, "wrong"))
    assert.False(t, VerifyMasterKey("not-a-hash", "open-sesame"))
}
