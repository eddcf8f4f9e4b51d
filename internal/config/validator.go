package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vyrodovalexey/integrationgw/internal/validation"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks struct tags and cross-field rules of cfg.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if err := validation.New().Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Path:    fe.Namespace(),
				Message: describe(fe),
			})
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.OTLPEndpoint == "" && !cfg.IsLocal() {
		errs = append(errs, ValidationError{
			Path:    "Config.Tracing.OTLPEndpoint",
			Message: "required when tracing is enabled outside LOCAL",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case validation.TagEnvironment:
		return "must be one of LOCAL, QA, HML, PRD"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}
