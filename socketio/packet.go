// Package socketio is a small Socket.IO v5 client speaking Engine.IO v4
// over a plain websocket transport. It supports the default namespace,
// connection handshake, heartbeats and server-to-client events, which is
// all a job-notification channel needs.
package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PacketType is the Engine.IO packet type
type PacketType byte

const (
	Open    PacketType = '0'
	Close   PacketType = '1'
	Ping    PacketType = '2'
	Pong    PacketType = '3'
	Message PacketType = '4'
	Upgrade PacketType = '5'
	Noop    PacketType = '6'
)

// MessageType is the Socket.IO packet type carried inside an Engine.IO message
type MessageType byte

const (
	Connect      MessageType = '0'
	Disconnect   MessageType = '1'
	Event        MessageType = '2'
	Ack          MessageType = '3'
	ConnectError MessageType = '4'
	BinaryEvent  MessageType = '5'
	BinaryAck    MessageType = '6'
)

const defaultNamespace = "/"

var (
	// ErrEmptyPacket is returned when decoding an empty frame
	ErrEmptyPacket = errors.New("socketio: empty packet")
	// ErrMalformedEvent is returned for event payloads that are not ["name", ...]
	ErrMalformedEvent = errors.New("socketio: malformed event payload")
)

// Packet is one decoded websocket frame
type Packet struct {
	Type PacketType
	// The fields below are only set for Message packets
	MessageType MessageType
	Namespace   string
	AckID       int64
	HasAck      bool
	// Payload is the raw remainder of the frame, usually JSON
	Payload []byte
}

// Decode parses a text frame
func Decode(frame string) (Packet, error) {
	if frame == "" {
		return Packet{}, ErrEmptyPacket
	}

	p := Packet{Type: PacketType(frame[0])}
	if p.Type < Open || p.Type > Noop {
		return Packet{}, fmt.Errorf("socketio: unknown packet type %q", frame[0])
	}
	if p.Type != Message {
		p.Payload = []byte(frame[1:])
		return p, nil
	}

	if len(frame) < 2 {
		return Packet{}, fmt.Errorf("socketio: message packet without a type")
	}
	p.MessageType = MessageType(frame[1])
	if p.MessageType < Connect || p.MessageType > BinaryAck {
		return Packet{}, fmt.Errorf("socketio: unknown message type %q", frame[1])
	}

	rest := frame[2:]
	p.Namespace = defaultNamespace
	if strings.HasPrefix(rest, "/") {
		if idx := strings.IndexByte(rest, ','); idx >= 0 {
			p.Namespace, rest = rest[:idx], rest[idx+1:]
		} else {
			p.Namespace, rest = rest, ""
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.ParseInt(rest[:digits], 10, 64)
		if err != nil {
			return Packet{}, fmt.Errorf("socketio: invalid ack id: %w", err)
		}
		p.AckID, p.HasAck = id, true
		rest = rest[digits:]
	}

	p.Payload = []byte(rest)
	return p, nil
}

// Encode renders a packet as a text frame
func Encode(p Packet) string {
	var b strings.Builder
	b.WriteByte(byte(p.Type))
	if p.Type == Message {
		b.WriteByte(byte(p.MessageType))
		if p.Namespace != "" && p.Namespace != defaultNamespace {
			b.WriteString(p.Namespace)
			b.WriteByte(',')
		}
		if p.HasAck {
			b.WriteString(strconv.FormatInt(p.AckID, 10))
		}
	}
	b.Write(p.Payload)
	return b.String()
}

// EventMessage is a named server event with its JSON arguments
type EventMessage struct {
	Name string
	Args []json.RawMessage
}

// EncodeEvent builds a default-namespace event frame
func EncodeEvent(name string, args ...any) (string, error) {
	items := make([]any, 0, len(args)+1)
	items = append(items, name)
	items = append(items, args...)
	payload, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("socketio: encode event %s: %w", name, err)
	}
	return Encode(Packet{Type: Message, MessageType: Event, Payload: payload}), nil
}

// DecodeEvent parses the payload of an Event packet
func DecodeEvent(payload []byte) (EventMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil || len(items) == 0 {
		return EventMessage{}, ErrMalformedEvent
	}
	var name string
	if err := json.Unmarshal(items[0], &name); err != nil || name == "" {
		return EventMessage{}, ErrMalformedEvent
	}
	return EventMessage{Name: name, Args: items[1:]}, nil
}

// handshake is the Engine.IO open payload
type handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}

// connectPayload is the Socket.IO CONNECT acknowledgement
type connectPayload struct {
	SID string `json:"sid"`
}

// connectErrorPayload is sent by the server when it refuses the namespace
type connectErrorPayload struct {
	Message string `json:"message"`
}
