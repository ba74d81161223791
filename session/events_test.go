package session

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"translink/internal"
	"translink/socketio"
)

func event(name string, args ...string) socketio.EventMessage {
	msg := socketio.EventMessage{Name: name}
	for _, a := range args {
		msg.Args = append(msg.Args, json.RawMessage(a))
	}
	return msg
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name string
		msg  socketio.EventMessage
		want internal.Event
		ok   bool
	}{
		{"complete", event(EventTranslationComplete, `{"fileName":"a_vi.pdf"}`), internal.JobCompleted{FileName: "a_vi.pdf"}, true},
		{"complete_with_job", event(EventTranslationComplete, `{"fileName":"a_vi.pdf","jobId":"j1"}`), internal.JobCompleted{JobID: "j1", FileName: "a_vi.pdf"}, true},
		{"complete_numeric_job", event(EventTranslationComplete, `{"fileName":"a_vi.pdf","jobId":42}`), internal.JobCompleted{JobID: "42", FileName: "a_vi.pdf"}, true},
		{"complete_without_name", event(EventTranslationComplete, `{"jobId":"j1"}`), nil, false},
		{"complete_no_args", event(EventTranslationComplete), nil, false},
		{"failed_reason", event(EventTranslationFailed, `{"reason":"Unsupported","jobId":"j2"}`), internal.JobFailed{JobID: "j2", Reason: "Unsupported"}, true},
		{"failed_error", event(EventTranslationFailed, `{"error":"Quota exceeded"}`), internal.JobFailed{Reason: "Quota exceeded"}, true},
		{"failed_message", event(EventTranslationFailed, `{"message":"Timeout"}`), internal.JobFailed{Reason: "Timeout"}, true},
		{"failed_string", event(EventTranslationFailed, `"OCR failed"`), internal.JobFailed{Reason: "OCR failed"}, true},
		{"failed_empty", event(EventTranslationFailed, `{}`), internal.JobFailed{Reason: defaultFailureReason}, true},
		{"failed_garbage", event(EventTranslationFailed, `[1,2]`), internal.JobFailed{Reason: defaultFailureReason}, true},
		{"unknown", event("progress", `{"percent":40}`), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeEvent(tt.msg)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("decodeEvent = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestTCPProbe(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := listener.Addr().String()

	if !(TCPProbe{Address: addr, Timeout: time.Second}).Reachable(context.Background()) {
		t.Error("listening address should be reachable")
	}

	listener.Close()
	if (TCPProbe{Address: addr, Timeout: time.Second}).Reachable(context.Background()) {
		t.Error("closed address should be unreachable")
	}
}
