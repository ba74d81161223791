package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"translink/internal"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultPingInterval   = 25 * time.Second
	defaultPingTimeout    = 20 * time.Second
	eventBuffer           = 16
)

var (
	// ErrClosed is reported after Close
	ErrClosed = errors.New("socketio: connection closed")
	// ErrServerDisconnect is reported when the server ends the session
	ErrServerDisconnect = errors.New("socketio: server disconnected")
)

// Options configures Dial
type Options struct {
	// URL is the websocket URL including the EIO query
	URL    string
	Origin string
	Header http.Header
	// ConnectTimeout bounds the websocket dial plus the Socket.IO handshake
	// when ctx carries no earlier deadline.
	ConnectTimeout time.Duration
}

// Conn is an established Socket.IO session on the default namespace
type Conn struct {
	ws           *websocket.Conn
	id           string
	pingInterval time.Duration
	pingTimeout  time.Duration

	events chan EventMessage
	quit   chan struct{}
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	mu        sync.Mutex
	closing   bool
	err       error
}

// Dial opens the websocket and completes the Engine.IO and Socket.IO
// handshakes. The returned Conn is Live: ID() is the server-assigned id.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	origin := opts.Origin
	if origin == "" {
		origin = "http://localhost/"
	}
	config, err := websocket.NewConfig(opts.URL, origin)
	if err != nil {
		return nil, fmt.Errorf("socketio: invalid config: %w", err)
	}
	if opts.Header != nil {
		config.Header = opts.Header.Clone()
	}

	ws, err := config.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("socketio: dial %s: %w", redactURL(opts.URL), err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		ws.SetDeadline(deadline)
	}

	// Unblock the handshake reads if ctx is cancelled early
	stop := context.AfterFunc(ctx, func() { ws.SetDeadline(time.Now()) })
	defer stop()

	c := &Conn{
		ws:     ws,
		events: make(chan EventMessage, eventBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if err := c.handshake(); err != nil {
		ws.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("socketio: handshake: %w", ctxErr)
		}
		return nil, err
	}
	if !stop() {
		ws.Close()
		return nil, fmt.Errorf("socketio: handshake: %w", ctx.Err())
	}
	ws.SetDeadline(time.Time{})

	internal.LogDebug("socket.io connected with id %s (ping %v/%v)", c.id, c.pingInterval, c.pingTimeout)
	go c.readLoop()
	return c, nil
}

func (c *Conn) handshake() error {
	open, err := c.receive()
	if err != nil {
		return fmt.Errorf("socketio: read open packet: %w", err)
	}
	if open.Type != Open {
		return fmt.Errorf("socketio: expected open packet, got %q", byte(open.Type))
	}

	var hs handshake
	if err := json.Unmarshal(open.Payload, &hs); err != nil {
		return fmt.Errorf("socketio: invalid open payload: %w", err)
	}
	c.pingInterval = millis(hs.PingInterval, defaultPingInterval)
	c.pingTimeout = millis(hs.PingTimeout, defaultPingTimeout)

	if err := c.send(Packet{Type: Message, MessageType: Connect}); err != nil {
		return fmt.Errorf("socketio: send connect: %w", err)
	}

	for {
		p, err := c.receive()
		if err != nil {
			return fmt.Errorf("socketio: read connect ack: %w", err)
		}
		switch {
		case p.Type == Ping:
			if err := c.send(Packet{Type: Pong, Payload: p.Payload}); err != nil {
				return err
			}
		case p.Type == Message && p.MessageType == Connect:
			var ack connectPayload
			if err := json.Unmarshal(p.Payload, &ack); err != nil || ack.SID == "" {
				return fmt.Errorf("socketio: connect ack without sid")
			}
			c.id = ack.SID
			return nil
		case p.Type == Message && p.MessageType == ConnectError:
			var refused connectErrorPayload
			json.Unmarshal(p.Payload, &refused)
			if refused.Message == "" {
				refused.Message = string(p.Payload)
			}
			return fmt.Errorf("socketio: connection refused: %s", refused.Message)
		case p.Type == Close:
			return ErrServerDisconnect
		}
	}
}

func millis(v int64, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Millisecond
}

// ID returns the server-assigned Socket.IO id
func (c *Conn) ID() string {
	return c.id
}

// Events delivers server events in arrival order. The channel is closed
// once the connection ends.
func (c *Conn) Events() <-chan EventMessage {
	return c.events
}

// Done is closed once the connection has ended
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended. It is nil while the connection is open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close leaves the namespace and closes the websocket. It is safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()
		close(c.quit)

		select {
		case <-c.done:
			return
		default:
		}
		c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		c.send(Packet{Type: Message, MessageType: Disconnect})
		err = c.ws.Close()
	})
	<-c.done
	return err
}

func (c *Conn) readLoop() {
	reason := c.loop()

	c.mu.Lock()
	if c.closing {
		reason = ErrClosed
	}
	c.err = reason
	c.mu.Unlock()

	c.ws.Close()
	close(c.events)
	close(c.done)
}

func (c *Conn) loop() error {
	for {
		// The server pings every interval; missing one means the link is dead
		c.ws.SetReadDeadline(time.Now().Add(c.pingInterval + c.pingTimeout))

		p, err := c.receive()
		if err != nil {
			if errors.Is(err, ErrEmptyPacket) {
				continue
			}
			return err
		}

		switch p.Type {
		case Ping:
			if err := c.send(Packet{Type: Pong, Payload: p.Payload}); err != nil {
				return err
			}
		case Close:
			return ErrServerDisconnect
		case Message:
			if p.Namespace != defaultNamespace {
				continue
			}
			switch p.MessageType {
			case Disconnect:
				return ErrServerDisconnect
			case Event:
				msg, err := DecodeEvent(p.Payload)
				if err != nil {
					internal.LogWarn("Dropping malformed socket.io event: %v", err)
					continue
				}
				select {
				case c.events <- msg:
				case <-c.quit:
					return ErrClosed
				}
			}
		}
	}
}

func (c *Conn) receive() (Packet, error) {
	var frame string
	if err := websocket.Message.Receive(c.ws, &frame); err != nil {
		return Packet{}, err
	}
	p, err := Decode(frame)
	if err != nil && !errors.Is(err, ErrEmptyPacket) {
		internal.LogDebug("Ignoring undecodable frame: %v", err)
		return Packet{Type: Noop}, nil
	}
	return p, err
}

func (c *Conn) send(p Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return websocket.Message.Send(c.ws, Encode(p))
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[invalid url]"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
