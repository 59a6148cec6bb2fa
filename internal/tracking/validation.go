package tracking

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError is a client error: the payload is rejected and nothing is stored.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err (or anything it wraps) is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

const errMissingIdentity = "Missing visitorId or sessionId"

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON field names so messages match what the client sent
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validatePayload runs struct tags and converts the first failure into a ValidationError.
func validatePayload(payload any) error {
	err := getValidator().Struct(payload)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return newValidationError("Invalid request")
	}

	fe := fieldErrs[0]
	switch fe.Field() {
	case "visitorId", "sessionId":
		return newValidationError(errMissingIdentity)
	}

	switch fe.Tag() {
	case "required":
		return newValidationError("%s is required", fe.Field())
	case "oneof":
		return newValidationError("Invalid %s", fe.Field())
	default:
		return newValidationError("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
