package internal

import (
	"encoding/json"
	"strings"
	"time"
)

// FileDescriptor describes a local file handed to the backend
type FileDescriptor struct {
	Name     string `json:"name"`
	MIMEType string `json:"type"`
	Size     int64  `json:"size"`
	URI      string `json:"uri"`
}

// LocalPath returns the filesystem path behind the descriptor URI
func (f *FileDescriptor) LocalPath() string {
	return strings.TrimPrefix(f.URI, "file://")
}

// JobHandle is what the backend acknowledges an upload with
type JobHandle struct {
	JobID          string         `json:"jobId"`
	Fields         map[string]any `json:"-"`
	FileName       string         `json:"fileName"`
	TargetLanguage string         `json:"targetLanguage"`
	Premium        bool           `json:"isUserPremium"`
	SessionID      string         `json:"socketId"`
	SubmittedAt    time.Time      `json:"submittedAt"`
}

// Event is a server-pushed job notification. The set is closed:
// JobCompleted and JobFailed are the only implementations.
type Event interface {
	EventJobID() string
	isEvent()
}

// JobCompleted is decoded from translationComplete
type JobCompleted struct {
	JobID    string `json:"jobId,omitempty"`
	FileName string `json:"fileName"`
}

// JobFailed is decoded from translationFailed
type JobFailed struct {
	JobID  string `json:"jobId,omitempty"`
	Reason string `json:"reason"`
}

func (e JobCompleted) EventJobID() string { return e.JobID }
func (e JobFailed) EventJobID() string    { return e.JobID }

func (JobCompleted) isEvent() {}
func (JobFailed) isEvent()    {}

// DownloadResult points at a translated artifact on local storage
type DownloadResult struct {
	Path      string `json:"path"`
	CachePath string `json:"cache_path"`
	MIMEType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	Relocated bool   `json:"relocated"`
}

// TextResult is the outcome of a text translation
type TextResult struct {
	TranslatedText string `json:"translatedText"`
	TargetLanguage string `json:"targetLanguage"`
	Success        bool   `json:"success"`
}

// BoundingBox is expressed in percentages of the image dimensions
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Segment is one OCR-detected text region
type Segment struct {
	Original   string      `json:"original"`
	Translated string      `json:"translated"`
	Position   BoundingBox `json:"position"`
}

// ImageResult is the outcome of an image translation
type ImageResult struct {
	TranslatedText string    `json:"translatedText"`
	TargetLanguage string    `json:"targetLanguage"`
	Success        bool      `json:"success"`
	Segments       []Segment `json:"segments"`
}

// AudioDetails carries speech recognition metadata
type AudioDetails struct {
	DetectedLanguage string         `json:"detectedLanguage"`
	Extra            map[string]any `json:"-"`
}

// UnmarshalJSON keeps fields other than detectedLanguage in Extra
func (d *AudioDetails) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.DetectedLanguage = ""
	d.Extra = make(map[string]any, len(raw))
	for key, value := range raw {
		if key == "detectedLanguage" {
			d.DetectedLanguage, _ = value.(string)
			continue
		}
		d.Extra[key] = value
	}
	return nil
}

// MarshalJSON flattens Extra back next to detectedLanguage
func (d AudioDetails) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+1)
	for key, value := range d.Extra {
		out[key] = value
	}
	if d.DetectedLanguage != "" {
		out["detectedLanguage"] = d.DetectedLanguage
	}
	return json.Marshal(out)
}

// AudioResult is the outcome of a voice translation
type AudioResult struct {
	Success        bool         `json:"success"`
	OriginalText   string       `json:"originalText"`
	TranslatedText string       `json:"translatedText"`
	TargetLanguage string       `json:"targetLanguage"`
	AudioDetails   AudioDetails `json:"audioDetails"`
}

// SessionStatus reports the health of the event channel
type SessionStatus int

const (
	StatusDisconnected SessionStatus = iota
	StatusLive
	StatusDegradedFallback
)

func (s SessionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusLive:
		return "Live"
	case StatusDegradedFallback:
		return "Degraded-Fallback"
	default:
		return "Unknown"
	}
}

// DownloadSidecar is persisted next to a .part file to allow resuming
type DownloadSidecar struct {
	FileName     string    `json:"file_name"`
	URL          string    `json:"url"`
	ExpectedSize int64     `json:"expected_size"`
	ETag         string    `json:"etag,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdate   time.Time `json:"last_update"`
}
