// Package validation checks request payloads and user input with
// go-playground/validator, reporting failures keyed by JSON field name.
package validation

import (
	"errors"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Errors maps a field name to what is wrong with it
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + " " + e[f]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		switch f.Kind() {
		case reflect.Float32, reflect.Float64:
			return !math.IsNaN(f.Float()) && !math.IsInf(f.Float(), 0)
		}
		return true
	})

	return v
}

// Struct validates s against its `validate` tags
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(Errors, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "finite":
		return "must be a finite number"
	default:
		return "is invalid"
	}
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	if err := validate.Var(strings.TrimSpace(email), "required,email"); err != nil {
		return Errors{"email": "must be a valid email address"}
	}
	return nil
}

// ValidatePassword checks if a password meets requirements
func ValidatePassword(password string) error {
	if password == "" {
		return Errors{"password": "is required"}
	}
	if len(password) < 8 {
		return Errors{"password": "must be at least 8 characters"}
	}
	return nil
}

// ValidateWatchedSeconds rejects negative and non-finite playback positions
func ValidateWatchedSeconds(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return Errors{"watched_seconds": "must be a finite number"}
	}
	if seconds < 0 {
		return Errors{"watched_seconds": "must be at least 0"}
	}
	return nil
}
