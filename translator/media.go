package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"translink/internal"
	"translink/language"
	"translink/utils"
)

// Defaults applied when the caller leaves a field empty
const (
	DefaultTextTarget  = "English"
	DefaultMediaTarget = "Vietnamese"
	DefaultImageName   = "photo.jpg"
	DefaultImageType   = "image/jpeg"
	DefaultAudioName   = "recording.mp3"
	DefaultAudioType   = "audio/mpeg"
)

// TranslateText translates a snippet synchronously
func (c *Client) TranslateText(ctx context.Context, text, targetLanguage string) (*internal.TextResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, c.fail(internal.NewValidationError("text", "is required"), utils.TextPath)
	}
	targetLanguage = resolveTarget(targetLanguage, DefaultTextTarget)

	internal.LogDebug("Translating %d characters into %s", len(text), targetLanguage)

	request := map[string]string{"text": text, "targetLanguage": targetLanguage}
	var raw json.RawMessage
	if err := c.http.PostJSON(ctx, utils.TextPath, request, &raw, c.cfg.DefaultTimeout); err != nil {
		return nil, c.fail(err, utils.TextPath)
	}

	var result internal.TextResult
	if err := unwrapData(raw, &result); err != nil {
		return nil, c.fail(err, utils.TextPath)
	}
	return &result, nil
}

// TranslateImage runs OCR and translation on a photo
func (c *Client) TranslateImage(ctx context.Context, image internal.FileDescriptor, targetLanguage string) (*internal.ImageResult, error) {
	image, err := c.prepareMedia(image, DefaultImageName, DefaultImageType)
	if err != nil {
		return nil, c.fail(err, utils.ImagePath)
	}
	targetLanguage = resolveTarget(targetLanguage, DefaultMediaTarget)

	form := &utils.MultipartForm{
		File:   utils.FormFile{Field: "file", Name: image.Name, MIMEType: image.MIMEType, Path: image.LocalPath()},
		Fields: []utils.FormField{{Name: "targetLanguage", Value: targetLanguage}},
	}
	internal.LogInfo("Translating image %s into %s", image.Name, targetLanguage)

	var raw json.RawMessage
	if err := c.http.PostMultipart(ctx, utils.ImagePath, form, &raw, c.cfg.ImageTimeout); err != nil {
		return nil, c.fail(err, utils.ImagePath)
	}

	var result internal.ImageResult
	if err := unwrapData(raw, &result); err != nil {
		return nil, c.fail(err, utils.ImagePath)
	}
	if result.Segments == nil {
		result.Segments = []internal.Segment{}
	}
	return &result, nil
}

// TranslateAudio transcribes a recording and translates the transcript.
// The result always carries the requested target language.
func (c *Client) TranslateAudio(ctx context.Context, audio internal.FileDescriptor, sourceLanguage, targetLanguage string) (*internal.AudioResult, error) {
	audio, err := c.prepareMedia(audio, DefaultAudioName, DefaultAudioType)
	if err != nil {
		return nil, c.fail(err, utils.AudioPath)
	}
	sourceLanguage = strings.TrimSpace(sourceLanguage)
	if sourceLanguage == "" {
		sourceLanguage = language.AutoDetect
	} else {
		sourceLanguage = language.Resolve(sourceLanguage)
	}
	targetLanguage = resolveTarget(targetLanguage, DefaultMediaTarget)

	form := &utils.MultipartForm{
		File: utils.FormFile{Field: "file", Name: audio.Name, MIMEType: audio.MIMEType, Path: audio.LocalPath()},
		Fields: []utils.FormField{
			{Name: "sourceLanguage", Value: sourceLanguage},
			{Name: "targetLanguage", Value: targetLanguage},
		},
	}
	internal.LogInfo("Translating audio %s from %s into %s", audio.Name, sourceLanguage, targetLanguage)

	var raw json.RawMessage
	if err := c.http.PostMultipart(ctx, utils.AudioPath, form, &raw, c.cfg.AudioTimeout); err != nil {
		return nil, c.fail(err, utils.AudioPath)
	}

	var result internal.AudioResult
	if err := unwrapData(raw, &result); err != nil {
		return nil, c.fail(err, utils.AudioPath)
	}
	result.TargetLanguage = targetLanguage
	if result.AudioDetails.Extra == nil {
		result.AudioDetails.Extra = map[string]any{}
	}
	return &result, nil
}

// prepareMedia checks the file is readable and fills in the name and type
// a camera or recorder capture would have had.
func (c *Client) prepareMedia(file internal.FileDescriptor, defaultName, defaultType string) (internal.FileDescriptor, error) {
	path := file.LocalPath()
	if strings.TrimSpace(path) == "" {
		return file, internal.NewValidationError("file.uri", "is required")
	}
	if err := utils.NewFileOperations().IsReadable(path); err != nil {
		return file, internal.NewValidationErrorWithValue("file.uri", fmt.Sprintf("is not readable: %v", err), file.URI)
	}
	if file.Name == "" {
		file.Name = defaultName
		if base := filepath.Base(path); filepath.Ext(base) != "" {
			file.Name = base
		}
	}
	if file.MIMEType == "" {
		file.MIMEType = utils.MIMETypeFor(file.Name)
	}
	if file.MIMEType == "" {
		file.MIMEType = defaultType
	}
	return file, nil
}

func (c *Client) fail(err error, endpoint string) *internal.APIError {
	apiErr := c.http.HandleError(err).WithContext("endpoint", endpoint)
	internal.LogAPIError(apiErr)
	return apiErr
}

func resolveTarget(target, fallback string) string {
	if strings.TrimSpace(target) == "" {
		return fallback
	}
	return language.Resolve(target)
}

// unwrapData decodes a body that may or may not be wrapped as {"data": ...}
func unwrapData(raw json.RawMessage, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return errors.New(internal.MsgNoData)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if raw[0] == '{' && json.Unmarshal(raw, &envelope) == nil && isObject(envelope.Data) {
		raw = envelope.Data
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
