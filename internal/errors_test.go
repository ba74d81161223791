package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNormalizeError_ServerMessage(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{"message_field", 400, `{"message":"Invalid file type"}`, "Invalid file type"},
		{"error_field", 422, `{"error":"Unsupported language"}`, "Unsupported language"},
		{"message_wins", 400, `{"message":"first","error":"second"}`, "first"},
		{"empty_body", 500, ``, "Server error"},
		{"not_json", 502, `<html>Bad Gateway</html>`, "Server error"},
		{"non_string_error", 500, `{"error":{"code":1}}`, "Server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NormalizeError(&ResponseError{StatusCode: tt.status, Body: []byte(tt.body)})
			if err.Message != tt.expected {
				t.Errorf("Message = %q, want %q", err.Message, tt.expected)
			}
			if err.Type != ErrServer {
				t.Errorf("Type = %v, want ServerError", err.Type)
			}
			if err.Code != tt.status {
				t.Errorf("Code = %d, want %d", err.Code, tt.status)
			}
		})
	}
}

func TestNormalizeError_NoResponse(t *testing.T) {
	cause := &TransportError{Method: "POST", URL: "http://localhost:1/api/translator/upload", Err: context.DeadlineExceeded}

	err := NormalizeError(fmt.Errorf("upload: %w", cause))

	if err.Message != "No response from server. Please check your connection." {
		t.Errorf("unexpected message: %q", err.Message)
	}
	if err.Type != ErrNetwork {
		t.Errorf("Type = %v, want NetworkError", err.Type)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("cause chain should reach context.DeadlineExceeded")
	}
}

func TestNormalizeError_Unknown(t *testing.T) {
	err := NormalizeError(errors.New("file handle closed"))
	if err.Message != "file handle closed" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Type != ErrUnknown {
		t.Errorf("Type = %v, want UnknownError", err.Type)
	}

	empty := NormalizeError(errors.New(""))
	if empty.Message != "An unexpected error occurred" {
		t.Errorf("empty message should fall back, got %q", empty.Message)
	}
}

func TestNormalizeError_PassThrough(t *testing.T) {
	original := NewEmptyDownloadError("/tmp/x")
	if got := NormalizeError(fmt.Errorf("wrapped: %w", original)); got != original {
		t.Error("already normalized errors should pass through")
	}
	if NormalizeError(nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestAPIError_Is(t *testing.T) {
	err := fmt.Errorf("fetch: %w", NewEmptyDownloadError("/tmp/report.pdf"))

	if !errors.Is(err, ErrEmptyDownloadKind) {
		t.Error("errors.Is should match on type")
	}
	if errors.Is(err, ErrNetworkKind) {
		t.Error("errors.Is should not match a different type")
	}
}

func TestAPIError_DetailedError(t *testing.T) {
	err := NewAPIError(ErrServer, 503, "Service unavailable").
		WithContext("endpoint", "/translator/upload").
		WithCause(errors.New("boom"))

	result := err.DetailedError()
	for _, want := range []string{"[ERROR] ServerError", "Code: 503", "Service unavailable", "endpoint=/translator/upload", "Cause: boom", "Suggestion:"} {
		if !strings.Contains(result, want) {
			t.Errorf("detailed error missing %q:\n%s", want, result)
		}
	}

	if err.Error() != "Service unavailable" {
		t.Errorf("Error() should be the user message, got %q", err.Error())
	}
}

func TestChannelUnavailableError(t *testing.T) {
	err := NewChannelUnavailableError("dial tcp: refused")
	if err.Severity != SeverityWarning {
		t.Errorf("channel errors are warnings, got %v", err.Severity)
	}
	if err.Context["reason"] != "dial tcp: refused" {
		t.Errorf("reason not recorded: %v", err.Context)
	}
}

func TestTransportError_RedactsQuery(t *testing.T) {
	err := &TransportError{Method: "GET", URL: "http://host/api?token=secret", Err: errors.New("refused")}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("query should be redacted: %s", err.Error())
	}
}

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  string
	}{
		{ErrNetwork, "NetworkError"},
		{ErrServer, "ServerError"},
		{ErrChannelUnavailable, "ChannelUnavailable"},
		{ErrEmptyDownload, "EmptyDownloadError"},
		{ErrUnknown, "UnknownError"},
		{ErrorType(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.errorType.String(); got != tt.expected {
				t.Errorf("ErrorType.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := NewValidationError("file.uri", "is required").
		WithSuggestion("Pick a file first")

	result := err.Error()
	if !strings.Contains(result, "validation error for file.uri") {
		t.Error("Error should contain field name")
	}
	if !strings.Contains(result, "Suggestion:") {
		t.Error("Error should contain suggestion")
	}

	normalized := NormalizeError(err)
	if normalized.Type != ErrUnknown || normalized.Message != result {
		t.Errorf("validation errors normalize to UnknownError with their message, got %v %q", normalized.Type, normalized.Message)
	}
}
