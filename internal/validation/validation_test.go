package validation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"valid email", "test@example.com", false},
		{"valid email with subdomain", "user@mail.example.com", false},
		{"valid email with plus", "user+tag@example.com", false},
		{"surrounding whitespace", "  test@example.com ", false},
		{"missing @", "testexample.com", true},
		{"missing domain", "test@", true},
		{"missing local part", "@example.com", true},
		{"empty string", "", true},
		{"spaces in email", "test @example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.Error(t, ValidatePassword(""))
	assert.Error(t, ValidatePassword("short"))
	assert.NoError(t, ValidatePassword("long enough"))
}

func TestValidateWatchedSeconds(t *testing.T) {
	assert.NoError(t, ValidateWatchedSeconds(0))
	assert.NoError(t, ValidateWatchedSeconds(125.5))
	assert.Error(t, ValidateWatchedSeconds(-1))
	assert.Error(t, ValidateWatchedSeconds(math.NaN()))
	assert.Error(t, ValidateWatchedSeconds(math.Inf(1)))
}

type checkoutPayload struct {
	CourseID int64    `json:"course_id" validate:"required,gt=0"`
	Email    string   `json:"email" validate:"omitempty,email"`
	Tier     string   `json:"tier" validate:"omitempty,oneof=standard premium"`
	Seconds  *float64 `json:"watched_seconds" validate:"required,gte=0,finite"`
}

func TestStruct(t *testing.T) {
	ok := 10.0
	assert.NoError(t, Struct(checkoutPayload{CourseID: 1, Tier: "premium", Seconds: &ok}))

	neg := -3.0
	err := Struct(checkoutPayload{Email: "nope", Tier: "gold", Seconds: &neg})

	var verrs Errors
	if assert.True(t, errors.As(err, &verrs)) {
		assert.Equal(t, "is required", verrs["course_id"])
		assert.Equal(t, "must be a valid email address", verrs["email"])
		assert.Equal(t, "must be one of: standard premium", verrs["tier"])
		assert.Equal(t, "must be at least 0", verrs["watched_seconds"])
	}

	err = Struct(checkoutPayload{CourseID: 1})
	if assert.True(t, errors.As(err, &verrs)) {
		assert.Equal(t, "is required", verrs["watched_seconds"])
	}
}

func TestErrorsMessageIsSorted(t *testing.T) {
	err := Errors{"tier": "is invalid", "email": "is required"}
	assert.Equal(t, "validation failed: email is required; tier is invalid", err.Error())
}
