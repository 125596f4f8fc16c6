package errors

import (
	"encoding/json"
	"errors"
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
		retryableErr := NewError(ErrCodeConnectionTimeout, "connection timed out")
		if !retryableErr.Retryable {
			t.Error("ConnectionTimeout should be retryable by default")
		}

		nonRetryableErr := NewError(ErrCodeInvalidConfig, "config invalid")
		if nonRetryableErr.Retryable {
			t.Error("InvalidConfig should not be retryable by default")
		}
	})

	t.Run("sets correct HTTP status defaults", func(t *testing.T) {
		tests := []struct {
			code       ErrorCode
			wantStatus int
		}{
			{ErrCodeInvalidConfig, 400},
			{ErrCodeUnauthorized, 401},
			{ErrCodeForbidden, 403},
			{ErrCodeNotFound, 404},
			{ErrCodeLeaseConflict, 409},
			{ErrCodeRateLimited, 429},
			{ErrCodeInternalError, 500},
			{ErrCodeOperationTimeout, 504},
		}

		for _, tt := range tests {
			err := NewError(tt.code, "test")
			if err.HTTPStatus != tt.wantStatus {
				t.Errorf("%v: HTTPStatus = %d, want %d", tt.code, err.HTTPStatus, tt.wantStatus)
			}
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
		{ErrCodeConfigValidation, CategoryConfiguration},
		{ErrCodeConnectionFailed, CategoryConnection},
		{ErrCodeNetworkError, CategoryConnection},
		{ErrCodeNotFound, CategoryAPI},
		{ErrCodeLeaseConflict, CategoryAPI},
		{ErrCodeRateLimited, CategoryAPI},
		{ErrCodeMountFailed, CategoryFilesystem},
		{ErrCodePermissionDenied, CategoryFilesystem},
		{ErrCodeResourceExhausted, CategoryResource},
		{ErrCodeCacheFull, CategoryResource},
		{ErrCodeAlreadyStarted, CategoryState},
		{ErrCodeCrashLoop, CategoryState},
		{ErrCodeOperationTimeout, CategoryOperation},
		{ErrCodeInternalError, CategoryInternal},
		{ErrCodePanicRecovered, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			result := GetCategory(tt.code)
			if result != tt.expected {
				t.Errorf("GetCategory(%v) = %v, want %v", tt.code, result, tt.expected)
			}
		})
	}
}

func TestIsRetryableByDefault(t *testing.T) {
	t.Parallel()

	retryableCodes := []ErrorCode{
		ErrCodeConnectionTimeout,
		ErrCodeConnectionFailed,
		ErrCodeNetworkError,
		ErrCodeOperationTimeout,
		ErrCodeRateLimited,
		ErrCodeServerError,
		ErrCodeResourceExhausted,
		ErrCodeInternalError,
	}

	nonRetryableCodes := []ErrorCode{
		ErrCodeInvalidConfig,
		ErrCodeNotFound,
		ErrCodePermissionDenied,
		ErrCodeUnauthorized,
		ErrCodeForbidden,
		ErrCodeLeaseConflict,
	}

	for _, code := range retryableCodes {
		t.Run(string(code)+" should be retryable", func(t *testing.T) {
			if !IsRetryableByDefault(code) {
				t.Errorf("%v should be retryable by default", code)
			}
		})
	}

	for _, code := range nonRetryableCodes {
		t.Run(string(code)+" should not be retryable", func(t *testing.T) {
			if IsRetryableByDefault(code) {
				t.Errorf("%v should not be retryable by default", code)
			}
		})
	}
}

func TestGetDefaultHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{ErrCodeInvalidConfig, 400},
		{ErrCodeInvalidArgument, 400},
		{ErrCodeUnauthorized, 401},
		{ErrCodePermissionDenied, 403},
		{ErrCodeForbidden, 403},
		{ErrCodeNotFound, 404},
		{ErrCodeLeaseConflict, 409},
		{ErrCodeAlreadyStarted, 409},
		{ErrCodeRateLimited, 429},
		{ErrCodeResourceExhausted, 429},
		{ErrCodeInternalError, 500},
		{ErrCodeOperationTimeout, 504},
		{ErrCodeConnectionTimeout, 504},
		// Unmapped code should default to 500
		{ErrorCode("UNKNOWN_CODE"), 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			result := GetDefaultHTTPStatus(tt.code)
			if result != tt.wantStatus {
				t.Errorf("GetDefaultHTTPStatus(%v) = %d, want %d", tt.code, result, tt.wantStatus)
			}
		})
	}
}

func TestRosetError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *RosetError
		want string
	}{
		{
			name: "with component and operation",
			err: &RosetError{
				Code:      ErrCodeNotFound,
				Component: "translator",
				Operation: "lookup",
				Message:   "node does not exist",
			},
			want: "[translator:lookup] NOT_FOUND: node does not exist",
		},
		{
			name: "with component only",
			err: &RosetError{
				Code:      ErrCodeInvalidConfig,
				Component: "config",
				Message:   "invalid value",
			},
			want: "[config] INVALID_CONFIG: invalid value",
		},
		{
			name: "minimal error",
			err: &RosetError{
				Code:    ErrCodeInternalError,
				Message: "something went wrong",
			},
			want: "INTERNAL_ERROR: something went wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.err.Error()
			if result != tt.want {
				t.Errorf("Error() = %q, want %q", result, tt.want)
			}
		})
	}
}

func TestRosetError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying cause")
	err := &RosetError{
		Code:    ErrCodeInternalError,
		Message: "wrapper",
		Cause:   cause,
	}

	unwrapped := err.Unwrap()
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestRosetError_Is(t *testing.T) {
	t.Parallel()

	err1 := &RosetError{Code: ErrCodeNotFound, Message: "not found"}
	err2 := &RosetError{Code: ErrCodeNotFound, Message: "different message"}
	err3 := &RosetError{Code: ErrCodeInvalidConfig, Message: "invalid"}
	stdErr := errors.New("standard error")

	if !err1.Is(err2) {
		t.Error("errors with same code should match with Is()")
	}

	if err1.Is(err3) {
		t.Error("errors with different codes should not match with Is()")
	}

	if err1.Is(stdErr) {
		t.Error("RosetError should not match standard error with Is()")
	}
}

func TestRosetError_String(t *testing.T) {
	t.Parallel()

	err := &RosetError{
		Code:      ErrCodeOperationTimeout,
		Category:  CategoryOperation,
		Message:   "operation took too long",
		Component: "apiclient",
		Operation: "resolve",
		Retryable: true,
		Details:   map[string]interface{}{"duration": 30},
		Cause:     errors.New("network timeout"),
	}

	result := err.String()

	expectedParts := []string{
		"Code=OPERATION_TIMEOUT",
		"Category=operation",
		`Message="operation took too long"`,
		"Component=apiclient",
		"Operation=resolve",
		"Retryable=true",
		"Details=",
		"Cause=",
	}

	for _, part := range expectedParts {
		if !strings.Contains(result, part) {
			t.Errorf("String() missing expected part: %q\nGot: %s", part, result)
		}
	}
}

func TestRosetError_JSON(t *testing.T) {
	t.Parallel()

	err := &RosetError{
		Code:       ErrCodeInvalidConfig,
		Category:   CategoryConfiguration,
		Message:    "invalid setting",
		Component:  "config",
		HTTPStatus: 400,
		Retryable:  false,
	}

	jsonStr := err.JSON()

	var parsed map[string]interface{}
	if parseErr := json.Unmarshal([]byte(jsonStr), &parsed); parseErr != nil {
		t.Fatalf("JSON() returned invalid JSON: %v\nJSON: %s", parseErr, jsonStr)
	}

	if parsed["code"] != "INVALID_CONFIG" {
		t.Errorf("JSON code = %v, want INVALID_CONFIG", parsed["code"])
	}
	if parsed["message"] != "invalid setting" {
		t.Errorf("JSON message = %v, want 'invalid setting'", parsed["message"])
	}
	if parsed["retryable"] != false {
		t.Errorf("JSON retryable = %v, want false", parsed["retryable"])
	}
}

func TestCaptureStack(t *testing.T) {
	t.Parallel()

	stack := CaptureStack(0)

	if stack == "" {
		t.Error("CaptureStack() returned empty string")
	}

	if !strings.Contains(stack, ":") {
		t.Error("Stack trace should contain file:line format")
	}

	if strings.Contains(stack, "errors.go") {
		t.Error("Stack trace should not include errors.go frames")
	}
}

func TestFromHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   int
		wantCode ErrorCode
	}{
		{401, ErrCodeUnauthorized},
		{403, ErrCodeForbidden},
		{404, ErrCodeNotFound},
		{409, ErrCodeLeaseConflict},
		{429, ErrCodeRateLimited},
		{500, ErrCodeServerError},
		{503, ErrCodeServerError},
		{418, ErrCodeServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.wantCode), func(t *testing.T) {
			err := FromHTTPStatus(tt.status, "boom")
			if err.Code != tt.wantCode {
				t.Errorf("FromHTTPStatus(%d).Code = %v, want %v", tt.status, err.Code, tt.wantCode)
			}
		})
	}
}

func TestErrorCodeCategories(t *testing.T) {
	t.Parallel()

	allCodes := []ErrorCode{
		ErrCodeInvalidConfig, ErrCodeMissingConfig, ErrCodeConfigValidation,
		ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeNetworkError,
		ErrCodeUnauthorized, ErrCodeForbidden, ErrCodeNotFound, ErrCodeLeaseConflict, ErrCodeRateLimited, ErrCodeServerError,
		ErrCodeMountFailed, ErrCodePermissionDenied,
		ErrCodeResourceExhausted, ErrCodeCacheFull,
		ErrCodeAlreadyStarted, ErrCodeNotInitialized, ErrCodeInvalidState, ErrCodeCrashLoop,
		ErrCodeOperationTimeout, ErrCodeRetryExhausted,
		ErrCodeInternalError, ErrCodePanicRecovered,
	}

	for _, code := range allCodes {
		category := GetCategory(code)
		if category == "" {
			t.Errorf("GetCategory(%v) returned empty category", code)
		}
	}
}
