package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different types of errors
type ErrorType int

const (
	ErrNetwork ErrorType = iota
	ErrServer
	ErrChannelUnavailable
	ErrEmptyDownload
	ErrUnknown
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// Messages shown to the end user when nothing better is known
const (
	MsgServerError  = "Server error"
	MsgNoResponse   = "No response from server. Please check your connection."
	MsgUnexpected   = "An unexpected error occurred"
	MsgEmptyFile    = "Downloaded file is empty or missing"
	MsgChannelDown  = "Live notifications are unavailable"
	MsgNoData       = "No response data received"
	maxContextItems = 16
)

// APIError is the single normalized error shape surfaced to callers.
// Error() returns Message so it can be shown to the user as is.
type APIError struct {
	Type       ErrorType      `json:"type"`
	Code       int            `json:"code,omitempty"`
	Message    string         `json:"message"`
	Severity   ErrorSeverity  `json:"severity"`
	Suggestion string         `json:"suggestion,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Cause      error          `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match on the error type alone
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Type == e.Type
}

// DetailedError returns a detailed error message with all available information
func (e *APIError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s", e.Severity.String(), e.Type.String()))

	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("Code: %d", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrNetwork:
		return "NetworkError"
	case ErrServer:
		return "ServerError"
	case ErrChannelUnavailable:
		return "ChannelUnavailable"
	case ErrEmptyDownload:
		return "EmptyDownloadError"
	case ErrUnknown:
		return "UnknownError"
	default:
		return "Unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (es ErrorSeverity) String() string {
	switch es {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// NewAPIError creates a new APIError with default severity and suggestion
func NewAPIError(errorType ErrorType, code int, message string) *APIError {
	return &APIError{
		Type:       errorType,
		Code:       code,
		Message:    message,
		Severity:   getDefaultSeverity(errorType),
		Suggestion: getDefaultSuggestion(errorType, code),
		Context:    make(map[string]any),
	}
}

// WithSuggestion adds a custom suggestion to the error
func (e *APIError) WithSuggestion(suggestion string) *APIError {
	e.Suggestion = suggestion
	return e
}

// WithCause records the underlying error
func (e *APIError) WithCause(err error) *APIError {
	e.Cause = err
	return e
}

// WithContext adds context information to the error
func (e *APIError) WithContext(key string, value any) *APIError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	if len(e.Context) < maxContextItems {
		e.Context[key] = value
	}
	return e
}

// Sentinels for errors.Is checks
var (
	ErrNetworkKind            = &APIError{Type: ErrNetwork}
	ErrServerKind             = &APIError{Type: ErrServer}
	ErrChannelUnavailableKind = &APIError{Type: ErrChannelUnavailable}
	ErrEmptyDownloadKind      = &APIError{Type: ErrEmptyDownload}
	ErrUnknownKind            = &APIError{Type: ErrUnknown}
)

// ResponseError means the server answered with a non-2xx status
type ResponseError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: %d", e.StatusCode)
}

// TransportError means the request was sent but no response came back
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, redactSensitiveURL(e.URL), e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NormalizeError maps any error onto the APIError taxonomy. Errors that
// are already normalized pass through untouched.
func NormalizeError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return NewAPIError(ErrServer, respErr.StatusCode, serverMessage(respErr.Body)).
			WithCause(err)
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return NewAPIError(ErrNetwork, 0, MsgNoResponse).
			WithCause(err).
			WithContext("url", redactSensitiveURL(transportErr.URL))
	}

	message := err.Error()
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		message = validationErr.Error()
	}
	if message == "" {
		message = MsgUnexpected
	}
	return NewAPIError(ErrUnknown, 0, message).WithCause(err)
}

// serverMessage extracts the message or error field of a JSON body
func serverMessage(body []byte) string {
	var payload struct {
		Message any `json:"message"`
		Error   any `json:"error"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return MsgServerError
	}
	if s, ok := payload.Message.(string); ok && s != "" {
		return s
	}
	if s, ok := payload.Error.(string); ok && s != "" {
		return s
	}
	return MsgServerError
}

// NewEmptyDownloadError creates an error for zero-length or missing artifacts
func NewEmptyDownloadError(path string) *APIError {
	return NewAPIError(ErrEmptyDownload, 0, MsgEmptyFile).
		WithContext("path", path)
}

// NewChannelUnavailableError creates an error for a missing event channel
func NewChannelUnavailableError(reason string) *APIError {
	err := NewAPIError(ErrChannelUnavailable, 0, MsgChannelDown)
	if reason != "" {
		err.WithContext("reason", reason)
	}
	return err
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field      string         `json:"field"`
	Message    string         `json:"message"`
	Value      any            `json:"value,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := []string{fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// DetailedError returns a detailed validation error message
func (e *ValidationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Validation Error for field '%s'", e.Field))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("Provided value: %v", e.Value))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Context: make(map[string]any),
	}
}

// NewValidationErrorWithValue creates a ValidationError with the invalid value
func NewValidationErrorWithValue(field, message string, value any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Context: make(map[string]any),
	}
}

// WithSuggestion adds a suggestion to the validation error
func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context to the validation error
func (e *ValidationError) WithContext(key string, value any) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func getDefaultSuggestion(errorType ErrorType, code int) string {
	switch errorType {
	case ErrNetwork:
		return "Check your internet connection and that the translation server is running"
	case ErrServer:
		if code >= 500 {
			return "Server error occurred. Please try again later"
		}
		return "The server rejected the request. Check the file type and target language"
	case ErrChannelUnavailable:
		return "Uploads still work; completion notifications will not arrive until the channel is back"
	case ErrEmptyDownload:
		return "Try downloading the file again"
	default:
		return "Please check the error details and try again"
	}
}

func getDefaultSeverity(errorType ErrorType) ErrorSeverity {
	switch errorType {
	case ErrChannelUnavailable:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// redactSensitiveURL redacts sensitive information from URLs
func redactSensitiveURL(url string) string {
	if strings.Contains(url, "?") {
		parts := strings.Split(url, "?")
		return parts[0] + "?[REDACTED]"
	}
	return url
}
