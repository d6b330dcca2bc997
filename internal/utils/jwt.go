package utils // package utils provides helper functions for staff token creation

import (
    "time" // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// StaffToken represents a signed JWT for a staff operator along with its
// expiry.  The Token field contains the JWT string.  Exp stores the
// expiration timestamp as a time.Time.  Staff tokens are short-lived and
// encoded in the Authorization header when calling master endpoints.
type StaffToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// NewStaffToken builds and signs an HS256 JWT for a staff operator.  It
// takes the signing secret, an operator label, and a TTL in minutes.  The
// JWT includes standard claims: subject (sub), role, expiration (exp) and
// issued at (iat).  The role is always "staff"; the master endpoints
// accept nothing else.
func NewStaffToken(secret, operator string, ttlMin int) (StaffToken, error) {
    exp := time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":  operator,
        "role": "staff",
        "exp":  exp.Unix(),
        "iat":  time.Now().UTC().Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return StaffToken{}, err
    }
    return StaffToken{Token: signed, Exp: exp}, nil
}
