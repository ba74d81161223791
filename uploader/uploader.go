// Package uploader submits documents for asynchronous translation.
package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"translink/internal"
	"translink/utils"
)

const (
	// DefaultTargetLanguage is used when the caller passes none
	DefaultTargetLanguage = "English"
	// DefaultTimeout bounds the whole upload exchange
	DefaultTimeout = 30 * time.Second
)

// Coordinator sends files to the upload endpoint tagged with the session id
// the completion event will be delivered to.
type Coordinator struct {
	client  *utils.HTTPClient
	session internal.SessionSource
	timeout time.Duration
	fileOps *utils.FileOperations
	now     func() time.Time
}

// Option customizes a Coordinator
type Option func(*Coordinator)

// WithTimeout overrides the upload timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock overrides the submission timestamp source
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates an upload coordinator
func NewCoordinator(client *utils.HTTPClient, session internal.SessionSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:  client,
		session: session,
		timeout: DefaultTimeout,
		fileOps: utils.NewFileOperations(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit uploads file for translation into targetLanguage. The returned
// error is always an *internal.APIError.
func (c *Coordinator) Submit(ctx context.Context, file internal.FileDescriptor, targetLanguage string, premium bool) (*internal.JobHandle, error) {
	file, err := c.prepare(file)
	if err != nil {
		return nil, c.fail(err)
	}

	targetLanguage = strings.TrimSpace(targetLanguage)
	if targetLanguage == "" {
		targetLanguage = DefaultTargetLanguage
	}

	sessionID := c.session.ID()
	if sessionID == "" {
		internal.LogInfo("No session id available, initializing event channel")
		sessionID = c.session.Initialize(ctx)
	}

	form := &utils.MultipartForm{
		File: utils.FormFile{Field: "file", Name: file.Name, MIMEType: file.MIMEType, Path: file.LocalPath()},
		Fields: []utils.FormField{
			{Name: "targetLanguage", Value: targetLanguage},
			{Name: "isUserPremium", Value: strconv.FormatBool(premium)},
			{Name: "socketId", Value: sessionID},
		},
	}

	internal.LogInfo("Uploading %s (%s, %s) for %s with session %s",
		file.Name, file.MIMEType, utils.FormatBytes(file.Size), targetLanguage, sessionID)

	// Stamped before sending: the completion event may arrive before the
	// upload response does.
	submittedAt := c.now()
	var body map[string]any
	if err := c.client.PostMultipart(ctx, utils.UploadPath, form, &body, c.timeout); err != nil {
		return nil, c.fail(err)
	}
	internal.LogDebug("Upload response: %v", body)

	handle := &internal.JobHandle{
		JobID:          stringField(body, "jobId"),
		Fields:         body,
		FileName:       file.Name,
		TargetLanguage: targetLanguage,
		Premium:        premium,
		SessionID:      sessionID,
		SubmittedAt:    submittedAt,
	}
	if handle.JobID == "" {
		internal.LogWarn("Upload of %s acknowledged without a jobId", file.Name)
	}
	return handle, nil
}

// prepare validates the descriptor and fills in the name, MIME type and
// size when the caller left them out.
func (c *Coordinator) prepare(file internal.FileDescriptor) (internal.FileDescriptor, error) {
	path := file.LocalPath()
	if strings.TrimSpace(path) == "" {
		return file, internal.NewValidationError("file.uri", "is required").
			WithSuggestion("Select a file before uploading")
	}
	if err := c.fileOps.IsReadable(path); err != nil {
		return file, internal.NewValidationErrorWithValue("file.uri", fmt.Sprintf("is not readable: %v", err), file.URI)
	}

	if file.Name == "" {
		file.Name = filepath.Base(path)
	}
	if file.MIMEType == "" {
		file.MIMEType = utils.DetectMIMEType(file.Name, "")
	}
	if size, err := c.fileOps.GetFileSize(path); err == nil {
		if file.Size > 0 && file.Size != size {
			internal.LogDebug("Descriptor size %d differs from %d on disk for %s", file.Size, size, file.Name)
		}
		file.Size = size
	}
	return file, nil
}

func (c *Coordinator) fail(err error) *internal.APIError {
	apiErr := c.client.HandleError(err).WithContext("endpoint", utils.UploadPath)
	internal.LogAPIError(apiErr)
	return apiErr
}

// stringField reads a string or numeric field from a decoded JSON object
func stringField(body map[string]any, key string) string {
	switch v := body[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}
