package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher turns a plaintext password into a storable hash.
type PasswordHasher func(password string) (string, error)

// HashPassword hashes plaintext password using bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	return NewPasswordHasher(bcrypt.DefaultCost)(password)
}

// NewPasswordHasher returns a bcrypt hasher with the given cost.
func NewPasswordHasher(cost int) PasswordHasher {
	return func(password string) (string, error) {
		if len(password) == 0 {
			return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			if errors.Is(err, bcrypt.ErrPasswordTooLong) {
				return "", fmt.Errorf("%w: password is too long", ErrInvalidInput)
			}
			return "", err
		}
		return string(hash), nil
	}
}

// VerifyPassword compares plaintext password with stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
