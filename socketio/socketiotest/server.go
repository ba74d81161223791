// Package socketiotest provides an in-process Socket.IO server for tests.
package socketiotest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/net/websocket"

	"translink/socketio"
)

// Server speaks just enough Engine.IO v4 to accept clients, push events and
// answer heartbeats.
type Server struct {
	*httptest.Server

	// RejectConnect makes the server refuse the namespace with CONNECT_ERROR
	RejectConnect atomic.Bool

	pingInterval int
	pingTimeout  int

	mu        sync.Mutex
	clients   map[*client]struct{}
	next      int
	handshake int
	pongs     int
	joined    chan string
}

type client struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *client) send(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.Message.Send(c.ws, frame)
}

// NewServer starts a server on a loopback port. Heartbeat values are in
// milliseconds and are only announced, the server pings on demand.
func NewServer() *Server {
	return NewServerWithHeartbeat(25000, 20000)
}

// NewServerWithHeartbeat starts a server announcing the given heartbeat
func NewServerWithHeartbeat(pingInterval, pingTimeout int) *Server {
	s := &Server{
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
		clients:      make(map[*client]struct{}),
		joined:       make(chan string, 16),
	}
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", websocket.Handler(s.serve))
	s.Server = httptest.NewServer(mux)
	return s
}

// Joined receives the id of every client that completed the handshake
func (s *Server) Joined() <-chan string {
	return s.joined
}

func (s *Server) serve(ws *websocket.Conn) {
	defer ws.Close()

	if ws.Request().URL.Query().Get("EIO") != "4" {
		return
	}

	s.mu.Lock()
	s.next++
	sid := fmt.Sprintf("sid-%d", s.next)
	s.mu.Unlock()

	c := &client{ws: ws}
	open := fmt.Sprintf(`0{"sid":"eio-%s","upgrades":[],"pingInterval":%d,"pingTimeout":%d,"maxPayload":1000000}`,
		sid, s.pingInterval, s.pingTimeout)
	if err := c.send(open); err != nil {
		return
	}

	var frame string
	if err := websocket.Message.Receive(ws, &frame); err != nil || frame != "40" {
		return
	}
	if s.RejectConnect.Load() {
		c.send(`44{"message":"not authorized"}`)
		return
	}
	if err := c.send(fmt.Sprintf(`40{"sid":"%s"}`, sid)); err != nil {
		return
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.handshake++
	s.mu.Unlock()
	select {
	case s.joined <- sid:
	default:
	}

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	for {
		if err := websocket.Message.Receive(ws, &frame); err != nil {
			return
		}
		p, err := socketio.Decode(frame)
		if err != nil {
			continue
		}
		switch {
		case p.Type == socketio.Pong:
			s.mu.Lock()
			s.pongs++
			s.mu.Unlock()
		case p.Type == socketio.Close:
			return
		case p.Type == socketio.Message && p.MessageType == socketio.Disconnect:
			return
		}
	}
}

func (s *Server) broadcast(frame string) int {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	sent := 0
	for _, c := range clients {
		if c.send(frame) == nil {
			sent++
		}
	}
	return sent
}

// Emit sends an event to every connected client and returns how many got it
func (s *Server) Emit(name string, args ...any) int {
	frame, err := socketio.EncodeEvent(name, args...)
	if err != nil {
		panic(err)
	}
	return s.broadcast(frame)
}

// SendRaw writes a raw frame to every connected client
func (s *Server) SendRaw(frame string) int {
	return s.broadcast(frame)
}

// Ping sends an Engine.IO ping to every client
func (s *Server) Ping() int {
	return s.broadcast("2")
}

// DisconnectAll ends every client session from the server side
func (s *Server) DisconnectAll() int {
	return s.broadcast("41")
}

// Handshakes returns how many clients completed the handshake so far
func (s *Server) Handshakes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshake
}

// Clients returns the number of currently connected clients
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Pongs returns how many pong packets have been received
func (s *Server) Pongs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pongs
}

// Close drops every client and shuts the server down
func (s *Server) Close() {
	s.mu.Lock()
	for c := range s.clients {
		c.ws.Close()
	}
	s.mu.Unlock()
	s.Server.Close()
}

// WebsocketURL is the socket.io endpoint of the server
func (s *Server) WebsocketURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
}
