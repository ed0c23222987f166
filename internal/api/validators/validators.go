// Package validators wraps go-playground/validator with the tags request
// bodies use.
package validators

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	clientPrefixRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,}$`)

	once sync.Once
	v    *validator.Validate
)

// New returns the shared validator instance.
func New() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("client_prefix", func(fl validator.FieldLevel) bool {
			return clientPrefixRe.MatchString(fl.Field().String())
		})
	})
	return v
}
