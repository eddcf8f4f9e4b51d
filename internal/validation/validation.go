// Package validation registers the custom validation tags shared by the
// configuration loader and the HTTP request binding.
package validation

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tag names registered by Register.
const (
	TagEnvironment = "environment"
	TagCEP         = "cep"
)

// Deployment environment names.
const (
	EnvLocal = "LOCAL"
	EnvQA    = "QA"
	EnvHML   = "HML"
	EnvPRD   = "PRD"
)

// cepPattern matches a Brazilian postal code: 8 digits with an optional
// hyphen after the fifth.
var cepPattern = regexp.MustCompile(`^\d{5}-?\d{3}$`)

var upper = cases.Upper(language.Und)

// NormalizeEnvironment upper-cases and trims an environment name. An empty
// name resolves to LOCAL.
func NormalizeEnvironment(env string) string {
	env = strings.TrimSpace(env)
	if env == "" {
		return EnvLocal
	}
	return upper.String(env)
}

// IsKnownEnvironment reports whether env names one of the supported
// deployment environments.
func IsKnownEnvironment(env string) bool {
	switch NormalizeEnvironment(env) {
	case EnvLocal, EnvQA, EnvHML, EnvPRD:
		return true
	default:
		return false
	}
}

// IsValidCEP reports whether value is a well-formed postal code.
func IsValidCEP(value string) bool {
	return cepPattern.MatchString(value)
}

// New returns a validator with the custom tags registered.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := Register(v); err != nil {
		// Registration only fails on empty tag names.
		panic(err)
	}
	return v
}

// Register adds the custom tags to an existing validator, such as the one
// used by gin's binding engine.
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation(TagEnvironment, func(fl validator.FieldLevel) bool {
		return IsKnownEnvironment(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation(TagCEP, func(fl validator.FieldLevel) bool {
		return IsValidCEP(fl.Field().String())
	})
}
