package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordCost is the bcrypt work factor for account passwords.
var PasswordCost = bcrypt.DefaultCost

// HashPassword hashes a plain password using bcrypt. Passwords longer than
// MaxPasswordBytes fail with bcrypt.ErrPasswordTooLong.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	return string(bytes), err
}

// CheckPassword reports whether plain matches hashed. A malformed hash never
// matches.
func CheckPassword(plain, hashed string) bool {
	if len(plain) > MaxPasswordBytes || hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
