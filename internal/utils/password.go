package utils

import "golang.org/x/crypto/bcrypt"

// HashMasterKey returns the bcrypt hash of a staff master key using the
// given cost.  Deployments run this once to produce STAFF_KEY_HASH.
func HashMasterKey(plain string, cost int) (string, error) {
    b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
    if err != nil {
        return "", err
    }
    return string(b), nil
}

// VerifyMasterKey safely compares the stored bcrypt hash and a presented
// master key.
func VerifyMasterKey(hash, plain string) bool {
    return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
