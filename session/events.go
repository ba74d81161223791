package session

import (
	"bytes"
	"encoding/json"
	"strings"

	"translink/internal"
	"translink/socketio"
)

const (
	// EventTranslationComplete is emitted once a document is translated
	EventTranslationComplete = "translationComplete"
	// EventTranslationFailed is emitted when the backend gives up on a job
	EventTranslationFailed = "translationFailed"

	defaultFailureReason = "Translation failed"
)

type completePayload struct {
	FileName string          `json:"fileName"`
	JobID    json.RawMessage `json:"jobId"`
}

type failedPayload struct {
	Reason  string          `json:"reason"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	JobID   json.RawMessage `json:"jobId"`
}

// decodeEvent maps a raw channel event to a typed job event. Unknown event
// names and malformed payloads report false.
func decodeEvent(msg socketio.EventMessage) (internal.Event, bool) {
	var arg json.RawMessage
	if len(msg.Args) > 0 {
		arg = msg.Args[0]
	}

	switch msg.Name {
	case EventTranslationComplete:
		var p completePayload
		if err := json.Unmarshal(arg, &p); err != nil || p.FileName == "" {
			internal.LogWarn("Ignoring %s event without a file name: %s", msg.Name, truncate(arg))
			return nil, false
		}
		return internal.JobCompleted{JobID: jobID(p.JobID), FileName: p.FileName}, true

	case EventTranslationFailed:
		// Some backends send the reason as a bare string
		var reason string
		if err := json.Unmarshal(arg, &reason); err == nil {
			return internal.JobFailed{Reason: nonEmpty(reason)}, true
		}
		var p failedPayload
		if err := json.Unmarshal(arg, &p); err != nil {
			return internal.JobFailed{Reason: defaultFailureReason}, true
		}
		return internal.JobFailed{JobID: jobID(p.JobID), Reason: nonEmpty(p.Reason, p.Error, p.Message)}, true
	}

	internal.LogDebug("Received channel event %s %s", msg.Name, truncate(arg))
	return nil, false
}

// jobID accepts both string and numeric ids
func jobID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func nonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return defaultFailureReason
}

func truncate(raw json.RawMessage) string {
	const limit = 200
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
