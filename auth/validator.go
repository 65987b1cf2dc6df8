package auth

import (
	"fmt"
	"support-chat/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateClaims rejects tokens without a user id or with an unknown role.
func ValidateClaims(claims CustomClaims) error {
	if err := validate.Struct(claims); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	return nil
}
