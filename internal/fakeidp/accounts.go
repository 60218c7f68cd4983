package fakeidp

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const refreshTokenLength = 32

type account struct {
	sub          string
	passwordHash string
	confirmed    bool
}

func newAccount(sub, password string, confirmed bool) (account, error) {
	// tests create many accounts, the minimum cost keeps them fast
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return account{}, err
	}
	return account{sub: sub, passwordHash: string(hash), confirmed: confirmed}, nil
}

func (a account) checkPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)) == nil
}

// validatePasswordStrength applies the issuer's sign-up policy: at least 8
// characters with upper and lower case letters and a number.
func validatePasswordStrength(password string) error {
	if len(password) < 8 {
		return errors.New("Password should be at least 8 characters")
	}
	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}
	if !hasUpper || !hasLower || !hasNumber {
		return errors.New("Password should contain upper and lower case letters and a number")
	}
	return nil
}

func newRefreshToken() (string, error) {
	b := make([]byte, refreshTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
