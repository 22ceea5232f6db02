package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("creates error with all defaults", func(t *testing.T) {
		err := NewError(ErrCodeInvalidConfig, "configuration is invalid")
		if err == nil {
			t.Fatal("NewError returned nil")
		}
		if err.Code != ErrCodeInvalidConfig {
			t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConfig)
		}
		if err.Message != "configuration is invalid" {
			t.Errorf("Message = %q, want %q", err.Message, "configuration is invalid")
		}
		if err.Category != CategoryConfiguration {
			t.Errorf("Category = %v, want %v", err.Category, CategoryConfiguration)
		}
		if err.Details == nil {
			t.Error("Details map is nil")
		}
		if err.Context == nil {
			t.Error("Context map is nil")
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("sets correct retryable defaults", func(t *testing.T) {
		if !NewError(ErrCodeFetchTimeout, "fetch timed out").Retryable {
			t.Error("FetchTimeout should be retryable by default")
		}
		if NewError(ErrCodeFetchFailed, "fetch failed").Retryable {
			t.Error("FetchFailed should not be retryable by default")
		}
	})
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     ErrorCode
		expected ErrorCategory
	}{
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeConfigLoad, CategoryConfiguration},
		{ErrCodeConfigValidation, CategoryConfiguration},
		{ErrCodeInvalidKey, CategoryAdmission},
		{ErrCodeStrategyExists, CategoryAdmission},
		{ErrCodeFetchFailed, CategoryFetch},
		{ErrCodeFetchTimeout, CategoryFetch},
		{ErrCodeBackendDown, CategoryFetch},
		{ErrCodeAlreadyStarted, CategoryState},
		{ErrCodeRetryExhausted, CategoryOperation},
		{ErrCodeInternalError, CategoryInternal},
		{ErrorCode("SOMETHING_ELSE"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if result := GetCategory(tt.code); result != tt.expected {
				t.Errorf("GetCategory(%v) = %v, want %v", tt.code, result, tt.expected)
			}
		})
	}
}

func TestCacheError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *CacheError
		want string
	}{
		{
			name: "with component and operation",
			err: &CacheError{
				Code:      ErrCodeFetchFailed,
				Component: "cache.prefetch",
				Operation: "fetch",
				Message:   "upstream refused",
			},
			want: "[cache.prefetch:fetch] FETCH_FAILED: upstream refused",
		},
		{
			name: "with component only",
			err: &CacheError{
				Code:      ErrCodeInvalidConfig,
				Component: "config",
				Message:   "invalid value",
			},
			want: "[config] INVALID_CONFIG: invalid value",
		},
		{
			name: "minimal error",
			err: &CacheError{
				Code:    ErrCodeInternalError,
				Message: "something went wrong",
			},
			want: "INTERNAL_ERROR: something went wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.err.Error(); result != tt.want {
				t.Errorf("Error() = %q, want %q", result, tt.want)
			}
		})
	}
}

func TestCacheError_UnwrapAndIs(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying cause")
	err := Wrap(ErrCodeFetchFailed, "wrapper", cause)

	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !errors.Is(err, NewError(ErrCodeFetchFailed, "other")) {
		t.Error("errors with same code should match with Is()")
	}
	if errors.Is(err, NewError(ErrCodeInvalidKey, "other")) {
		t.Error("errors with different codes should not match with Is()")
	}
}

func TestIsRetryableAndHasCode(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("outer: %w", NewError(ErrCodeFetchTimeout, "slow upstream"))
	if !IsRetryable(wrapped) {
		t.Error("wrapped FetchTimeout should be retryable")
	}
	if !HasCode(wrapped, ErrCodeFetchTimeout) {
		t.Error("HasCode should see through wrapping")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are never retryable")
	}
	if IsRetryable(NewError(ErrCodeFetchTimeout, "x").WithRetryable(false)) {
		t.Error("explicit WithRetryable(false) should win")
	}
}

func TestCacheError_String(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeFetchTimeout, "operation took too long").
		WithComponent("cache.prefetch").
		WithOperation("fetch").
		WithDetail("key", "search:procedures").
		WithCause(errors.New("deadline exceeded"))

	result := err.String()
	for _, part := range []string{
		"Code=FETCH_TIMEOUT",
		"Category=fetch",
		`Message="operation took too long"`,
		"Component=cache.prefetch",
		"Operation=fetch",
		"Retryable=true",
		"Details=",
		"Cause=",
	} {
		if !strings.Contains(result, part) {
			t.Errorf("String() missing expected part: %q\nGot: %s", part, result)
		}
	}
}
