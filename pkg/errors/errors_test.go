package errors

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeValidation, "test message: %s", "value")

	if err.Code != ErrCodeValidation {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeValidation)
	}

	if err.Message != "test message: value" {
		t.Errorf("Message = %v, want %v", err.Message, "test message: value")
	}

	expected := "VALIDATION_ERROR: test message: value"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrCodeResourceFetch, cause, "failed to fetch %s", "s3://bucket/key")

	if err.Code != ErrCodeResourceFetch {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeResourceFetch)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	unwrapped := errors.Unwrap(err)
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestWrapPreservesLayering(t *testing.T) {
	// A href strategy failure should still report as HYDRATION_ERROR at the
	// outer layer even though its cause is a RESOURCE_FETCH_ERROR.
	inner := New(ErrCodeResourceFetch, "fetch s3://bucket/key: timed out")
	outer := Wrap(ErrCodeHydration, inner, "href resolution failed")

	if GetCode(outer) != ErrCodeHydration {
		t.Errorf("GetCode(outer) = %v, want %v", GetCode(outer), ErrCodeHydration)
	}
	if GetCode(errors.Unwrap(outer)) != ErrCodeResourceFetch {
		t.Errorf("GetCode(inner) = %v, want %v", GetCode(errors.Unwrap(outer)), ErrCodeResourceFetch)
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeValidation, "test"),
			code:     ErrCodeValidation,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeValidation, "test"),
			code:     ErrCodeTimeout,
			expected: false,
		},
		{
			name:     "wrapped error",
			err:      Wrap(ErrCodeTaskFailure, New(ErrCodeInvoker, "inner"), "outer"),
			code:     ErrCodeTaskFailure,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeValidation,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeValidation,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeTimeout, "test"),
			expected: ErrCodeTimeout,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			expected: "",
		},
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeValidation, "requestId cannot be empty"),
			expected: "requestId cannot be empty",
		},
		{
			name:     "plain error",
			err:      errors.New("plain error"),
			expected: "plain error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestErrorCodesAreUnique(t *testing.T) {
	codes := []Code{
		ErrCodeValidation,
		ErrCodeHydration,
		ErrCodeResourceFetch,
		ErrCodeTimeout,
		ErrCodeTaskFailure,
		ErrCodeInvoker,
		ErrCodeInternal,
	}

	seen := make(map[Code]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %s", code)
		}
		seen[code] = true
	}
}
