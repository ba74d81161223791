package socketio_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"translink/socketio"
	"translink/socketio/socketiotest"
)

func dial(t *testing.T, server *socketiotest.Server) *socketio.Conn {
	t.Helper()
	conn, err := socketio.Dial(context.Background(), socketio.Options{
		URL:            server.WebsocketURL(),
		Origin:         server.URL,
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDial_AdoptsServerID(t *testing.T) {
	server := socketiotest.NewServer()
	defer server.Close()

	conn := dial(t, server)
	if conn.ID() != "sid-1" {
		t.Errorf("ID() = %q, want sid-1", conn.ID())
	}
	if conn.Err() != nil {
		t.Errorf("open connection should have no error, got %v", conn.Err())
	}
}

func TestConn_ReceivesEvents(t *testing.T) {
	server := socketiotest.NewServer()
	defer server.Close()

	conn := dial(t, server)
	waitFor(t, func() bool { return server.Clients() == 1 })

	server.Emit("translationComplete", map[string]string{"fileName": "report_vi.pdf"})

	select {
	case msg := <-conn.Events():
		if msg.Name != "translationComplete" {
			t.Errorf("event name = %q", msg.Name)
		}
		var body struct {
			FileName string `json:"fileName"`
		}
		if err := json.Unmarshal(msg.Args[0], &body); err != nil || body.FileName != "report_vi.pdf" {
			t.Errorf("unexpected args %s", msg.Args[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestConn_AnswersPing(t *testing.T) {
	server := socketiotest.NewServer()
	defer server.Close()

	dial(t, server)
	waitFor(t, func() bool { return server.Clients() == 1 })

	server.Ping()
	waitFor(t, func() bool { return server.Pongs() == 1 })
}

func TestConn_ServerDisconnect(t *testing.T) {
	server := socketiotest.NewServer()
	defer server.Close()

	conn := dial(t, server)
	waitFor(t, func() bool { return server.Clients() == 1 })

	server.DisconnectAll()

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection should end on server disconnect")
	}
	if !errors.Is(conn.Err(), socketio.ErrServerDisconnect) {
		t.Errorf("Err() = %v, want ErrServerDisconnect", conn.Err())
	}
	if _, ok := <-conn.Events(); ok {
		t.Error("events channel should be closed")
	}
}

func TestConn_Close(t *testing.T) {
	server := socketiotest.NewServer()
	defer server.Close()

	conn := dial(t, server)
	waitFor(t, func() bool { return server.Clients() == 1 })

	if err := conn.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if !errors.Is(conn.Err(), socketio.ErrClosed) {
		t.Errorf("Err() = %v, want ErrClosed", conn.Err())
	}
	waitFor(t, func() bool { return server.Clients() == 0 })
}

func TestConn_CloseWithUnreadEvents(t *testing.T) {
	server := socketiotest.NewServer()
	defer server.Close()

	conn := dial(t, server)
	waitFor(t, func() bool { return server.Clients() == 1 })

	for i := 0; i < 40; i++ {
		server.Emit("translationComplete", map[string]int{"n": i})
	}

	done := make(chan struct{})
	go func() {
		conn.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on undelivered events")
	}
}

func TestDial_ConnectRefused(t *testing.T) {
	server := socketiotest.NewServer()
	defer server.Close()
	server.RejectConnect.Store(true)

	_, err := socketio.Dial(context.Background(), socketio.Options{URL: server.WebsocketURL(), Origin: server.URL})
	if err == nil || !strings.Contains(err.Error(), "not authorized") {
		t.Errorf("expected refusal, got %v", err)
	}
}

func TestDial_Unreachable(t *testing.T) {
	server := socketiotest.NewServer()
	url := server.WebsocketURL()
	server.Close()

	if _, err := socketio.Dial(context.Background(), socketio.Options{URL: url, ConnectTimeout: time.Second}); err == nil {
		t.Error("dialing a closed server should fail")
	}
}

func TestDial_HandshakeTimeout(t *testing.T) {
	// Accepts the TCP connection but never upgrades
	release := make(chan struct{})
	silent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer silent.Close()
	defer close(release)

	url := "ws" + strings.TrimPrefix(silent.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
	start := time.Now()
	_, err := socketio.Dial(context.Background(), socketio.Options{URL: url, ConnectTimeout: 100 * time.Millisecond})
	if err == nil {
		t.Fatal("expected timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Dial should honour the connect timeout, took %v", elapsed)
	}
}
