package socketio

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		typ       PacketType
		msgType   MessageType
		namespace string
		ackID     int64
		hasAck    bool
		payload   string
	}{
		{"open", `0{"sid":"x"}`, Open, 0, "", 0, false, `{"sid":"x"}`},
		{"ping", "2", Ping, 0, "", 0, false, ""},
		{"ping_probe", "2probe", Ping, 0, "", 0, false, "probe"},
		{"connect", "40", Message, Connect, "/", 0, false, ""},
		{"connect_ack", `40{"sid":"abc123"}`, Message, Connect, "/", 0, false, `{"sid":"abc123"}`},
		{"event", `42["translationComplete",{"fileName":"a.pdf"}]`, Message, Event, "/", 0, false, `["translationComplete",{"fileName":"a.pdf"}]`},
		{"event_with_ack", `4213["x"]`, Message, Event, "/", 13, true, `["x"]`},
		{"namespaced", `42/admin,["x"]`, Message, Event, "/admin", 0, false, `["x"]`},
		{"namespaced_connect", `40/admin`, Message, Connect, "/admin", 0, false, ""},
		{"disconnect", "41", Message, Disconnect, "/", 0, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decode(tt.frame)
			if err != nil {
				t.Fatalf("Decode(%q) failed: %v", tt.frame, err)
			}
			if p.Type != tt.typ || p.MessageType != tt.msgType {
				t.Errorf("types = %q/%q, want %q/%q", p.Type, p.MessageType, tt.typ, tt.msgType)
			}
			if p.Namespace != tt.namespace {
				t.Errorf("Namespace = %q, want %q", p.Namespace, tt.namespace)
			}
			if p.HasAck != tt.hasAck || p.AckID != tt.ackID {
				t.Errorf("ack = %v/%d, want %v/%d", p.HasAck, p.AckID, tt.hasAck, tt.ackID)
			}
			if string(p.Payload) != tt.payload {
				t.Errorf("Payload = %q, want %q", p.Payload, tt.payload)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode(""); !errors.Is(err, ErrEmptyPacket) {
		t.Errorf("empty frame should be ErrEmptyPacket, got %v", err)
	}
	for _, frame := range []string{"9", "4", "49", "x"} {
		if _, err := Decode(frame); err == nil {
			t.Errorf("Decode(%q) should fail", frame)
		}
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		packet   Packet
		expected string
	}{
		{"pong", Packet{Type: Pong}, "3"},
		{"pong_probe", Packet{Type: Pong, Payload: []byte("probe")}, "3probe"},
		{"connect", Packet{Type: Message, MessageType: Connect}, "40"},
		{"default_namespace_omitted", Packet{Type: Message, MessageType: Disconnect, Namespace: "/"}, "41"},
		{"namespace", Packet{Type: Message, MessageType: Event, Namespace: "/admin", Payload: []byte(`["x"]`)}, `42/admin,["x"]`},
		{"ack_id", Packet{Type: Message, MessageType: Event, AckID: 7, HasAck: true, Payload: []byte(`["x"]`)}, `427["x"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.packet); got != tt.expected {
				t.Errorf("Encode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestEventRoundTrip(t *testing.T) {
	frame, err := EncodeEvent("translationFailed", map[string]string{"jobId": "j1", "reason": "timeout"})
	if err != nil {
		t.Fatal(err)
	}
	if frame != `42["translationFailed",{"jobId":"j1","reason":"timeout"}]` {
		t.Errorf("frame = %s", frame)
	}

	p, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := DecodeEvent(p.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Name != "translationFailed" || len(msg.Args) != 1 {
		t.Fatalf("unexpected event %+v", msg)
	}

	var body map[string]string
	if err := json.Unmarshal(msg.Args[0], &body); err != nil || body["reason"] != "timeout" {
		t.Errorf("args not preserved: %s", msg.Args[0])
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	for _, payload := range []string{``, `{}`, `[]`, `[1,2]`, `[""]`} {
		if _, err := DecodeEvent([]byte(payload)); !errors.Is(err, ErrMalformedEvent) {
			t.Errorf("DecodeEvent(%q) = %v, want ErrMalformedEvent", payload, err)
		}
	}
}
