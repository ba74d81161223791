// Package session owns the realtime event channel used to learn when
// backend jobs finish. It never fails: when the channel cannot be opened a
// locally generated fallback id is handed out instead.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"translink/internal"
	"translink/socketio"
	"translink/utils"
)

const (
	// FallbackPrefix marks session ids that were not issued by the server
	FallbackPrefix = "fallback-"

	defaultConnectTimeout = 5 * time.Second
	defaultParkLimit      = 64
)

// Channel is an open realtime connection. *socketio.Conn implements it.
type Channel interface {
	ID() string
	Events() <-chan socketio.EventMessage
	Done() <-chan struct{}
	Err() error
	Close() error
}

// DialFunc opens a Channel
type DialFunc func(ctx context.Context, opts socketio.Options) (Channel, error)

// DialSocketIO is the default DialFunc
func DialSocketIO(ctx context.Context, opts socketio.Options) (Channel, error) {
	conn, err := socketio.Dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config wires the manager's collaborators. Zero values pick defaults.
type Config struct {
	ChannelURL     string
	ConnectTimeout time.Duration
	Header         http.Header
	Dial           DialFunc
	Probe          internal.Reachability
	Now            func() time.Time
	// ParkLimit bounds events held for jobs nobody awaits yet
	ParkLimit int
}

// CompleteHandler receives every translationComplete event
type CompleteHandler func(internal.JobCompleted)

// FailedHandler receives every translationFailed event
type FailedHandler func(internal.JobFailed)

type waiter struct {
	jobID string
	ch    chan internal.Event
}

// parkedEvent is an event nobody was waiting for when it arrived
type parkedEvent struct {
	ev internal.Event
	at time.Time
}

// claims reports whether a waiter for jobID, submitted at since, owns p.
// Labelled events match their job id. Unlabelled events, and any event
// when the job id is unknown, only match if they arrived after the job
// was submitted.
func (p parkedEvent) claims(jobID string, since time.Time) bool {
	id := p.ev.EventJobID()
	if id != "" && id == jobID {
		return true
	}
	if id != "" && jobID != "" {
		return false
	}
	return !p.at.Before(since)
}

// stale reports whether p can no longer belong to a job submitted at since
func (p parkedEvent) stale(since time.Time) bool {
	return p.ev.EventJobID() == "" && p.at.Before(since)
}

// Manager tracks one session id and the channel behind it
type Manager struct {
	endpoint       *utils.ChannelEndpoint
	connectTimeout time.Duration
	header         http.Header
	dial           DialFunc
	probe          internal.Reachability
	now            func() time.Time
	parkLimit      int

	// initMu serializes Initialize and Teardown
	initMu sync.Mutex

	mu         sync.Mutex
	status     internal.SessionStatus
	id         string
	channel    Channel
	onComplete CompleteHandler
	onFailed   FailedHandler
	waiters    []*waiter
	parked     []parkedEvent
}

// NewManager validates the channel URL and returns a Disconnected manager
func NewManager(cfg Config) (*Manager, error) {
	endpoint, err := utils.ParseChannelURL(cfg.ChannelURL)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		endpoint:       endpoint,
		connectTimeout: cfg.ConnectTimeout,
		header:         cfg.Header,
		dial:           cfg.Dial,
		probe:          cfg.Probe,
		now:            cfg.Now,
		parkLimit:      cfg.ParkLimit,
		status:         internal.StatusDisconnected,
	}
	if m.connectTimeout <= 0 {
		m.connectTimeout = defaultConnectTimeout
	}
	if m.dial == nil {
		m.dial = DialSocketIO
	}
	if m.probe == nil {
		m.probe = TCPProbe{Address: endpoint.HostPort, Timeout: m.connectTimeout}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.parkLimit <= 0 {
		m.parkLimit = defaultParkLimit
	}
	return m, nil
}

// Initialize returns the current session id, opening the channel first when
// none is live. It always returns an id: a fallback id is generated when the
// host is unreachable or the channel cannot be opened.
func (m *Manager) Initialize(ctx context.Context) string {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	if m.status == internal.StatusLive && m.id != "" {
		id := m.id
		m.mu.Unlock()
		internal.LogDebug("Event channel already connected with id %s", id)
		return id
	}
	m.mu.Unlock()

	if !m.probe.Reachable(ctx) {
		internal.LogInfo("Channel host %s unreachable, using a fallback session id", m.endpoint.HostPort)
		return m.fallback()
	}

	internal.LogInfo("Connecting event channel to %s", m.endpoint.Origin)
	channel, err := m.dial(ctx, socketio.Options{
		URL:            m.endpoint.SocketURL,
		Origin:         m.endpoint.Origin,
		Header:         m.header,
		ConnectTimeout: m.connectTimeout,
	})
	if err != nil {
		internal.LogAPIError(internal.NewChannelUnavailableError(err.Error()).WithCause(err))
		return m.fallback()
	}

	m.mu.Lock()
	m.channel = channel
	m.id = channel.ID()
	m.status = internal.StatusLive
	m.mu.Unlock()

	internal.LogSessionStatus(internal.StatusLive, channel.ID())
	go m.dispatch(channel)
	return channel.ID()
}

func (m *Manager) fallback() string {
	id := fmt.Sprintf("%s%d", FallbackPrefix, m.now().UnixMilli())

	m.mu.Lock()
	m.id = id
	m.status = internal.StatusDegradedFallback
	m.mu.Unlock()

	internal.LogSessionStatus(internal.StatusDegradedFallback, id)
	return id
}

// ID returns the current session id, or "" before Initialize
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Status reports the channel state
func (m *Manager) Status() internal.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe registers the single completion/failure handler pair, replacing
// any previous pair. It does nothing when no channel is open.
func (m *Manager) Subscribe(onComplete CompleteHandler, onFailed FailedHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.channel == nil {
		internal.LogInfo("Event channel not open, listeners not registered")
		return
	}
	m.onComplete = onComplete
	m.onFailed = onFailed
	internal.LogDebug("Registered listeners for %s and %s", EventTranslationComplete, EventTranslationFailed)
}

// Unsubscribe removes the handler pair. Safe to call without a channel.
func (m *Manager) Unsubscribe() {
	m.mu.Lock()
	m.onComplete = nil
	m.onFailed = nil
	m.mu.Unlock()
}

// Await returns a channel that receives the terminal event for jobID and is
// then closed. It is also closed without a value when the channel goes away.
// submittedAt is when the job's upload started; unlabelled events that
// arrived before it belong to an earlier job and are dropped. A zero
// submittedAt means now. Events that name no job go to the oldest waiter,
// and a waiter with no job id also takes events for jobs nobody awaits.
func (m *Manager) Await(jobID string, submittedAt time.Time) (<-chan internal.Event, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.channel == nil {
		return nil, nil, internal.NewChannelUnavailableError(fmt.Sprintf("session is %s", m.status))
	}
	if submittedAt.IsZero() {
		submittedAt = m.now()
	}

	w := &waiter{jobID: jobID, ch: make(chan internal.Event, 1)}

	kept := m.parked[:0]
	var claimed *parkedEvent
	for _, p := range m.parked {
		switch {
		case claimed == nil && p.claims(jobID, submittedAt):
			p := p
			claimed = &p
		case p.stale(submittedAt):
			internal.LogDebug("Dropping unlabelled event that predates job %q", jobID)
		default:
			kept = append(kept, p)
		}
	}
	m.parked = kept

	if claimed != nil {
		w.ch <- claimed.ev
		close(w.ch)
		return w.ch, func() {}, nil
	}

	m.waiters = append(m.waiters, w)
	return w.ch, func() { m.cancelWaiter(w) }, nil
}

func (m *Manager) cancelWaiter(w *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, candidate := range m.waiters {
		if candidate == w {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			close(w.ch)
			return
		}
	}
}

// takeWaiter removes and returns the waiter an event belongs to. A
// labelled event goes to its job's waiter, or failing that to the oldest
// waiter that does not know its job id.
func (m *Manager) takeWaiter(ev internal.Event) *waiter {
	idx := -1
	if id := ev.EventJobID(); id != "" {
		for i, w := range m.waiters {
			if w.jobID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			for i, w := range m.waiters {
				if w.jobID == "" {
					idx = i
					break
				}
			}
		}
	} else if len(m.waiters) > 0 {
		idx = 0
	}
	if idx < 0 {
		return nil
	}
	w := m.waiters[idx]
	m.waiters = append(m.waiters[:idx], m.waiters[idx+1:]...)
	return w
}

func (m *Manager) deliver(channel Channel, ev internal.Event) {
	m.mu.Lock()
	if m.channel != channel {
		m.mu.Unlock()
		return
	}
	onComplete, onFailed := m.onComplete, m.onFailed
	w := m.takeWaiter(ev)
	if w == nil {
		if len(m.parked) >= m.parkLimit {
			internal.LogWarn("Dropping unclaimed event for job %q", m.parked[0].ev.EventJobID())
			m.parked = m.parked[1:]
		}
		m.parked = append(m.parked, parkedEvent{ev: ev, at: m.now()})
	}
	m.mu.Unlock()

	if w != nil {
		w.ch <- ev
		close(w.ch)
	}

	switch e := ev.(type) {
	case internal.JobCompleted:
		internal.LogInfo("Translation complete: %s", e.FileName)
		if onComplete != nil {
			onComplete(e)
		}
	case internal.JobFailed:
		internal.LogWarn("Translation failed: %s", e.Reason)
		if onFailed != nil {
			onFailed(e)
		}
	}
}

func (m *Manager) dispatch(channel Channel) {
	for msg := range channel.Events() {
		if ev, ok := decodeEvent(msg); ok {
			m.deliver(channel, ev)
		}
	}
	<-channel.Done()

	m.mu.Lock()
	if m.channel != channel {
		m.mu.Unlock()
		return
	}
	m.resetLocked()
	m.mu.Unlock()

	reason := channel.Err()
	if errors.Is(reason, socketio.ErrServerDisconnect) {
		internal.LogInfo("Event channel disconnected by server")
	} else {
		internal.LogWarn("Event channel lost: %v", reason)
	}
}

// resetLocked drops the channel and everything tied to it
func (m *Manager) resetLocked() {
	m.channel = nil
	m.id = ""
	m.status = internal.StatusDisconnected
	m.onComplete = nil
	m.onFailed = nil
	for _, w := range m.waiters {
		close(w.ch)
	}
	m.waiters = nil
	m.parked = nil
}

// Teardown closes the channel and clears the session id. It is idempotent
// and leaves the manager ready for another Initialize.
func (m *Manager) Teardown() {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	channel := m.channel
	m.resetLocked()
	m.mu.Unlock()

	if channel != nil {
		internal.LogInfo("Closing event channel %s", channel.ID())
		if err := channel.Close(); err != nil {
			internal.LogDebug("Closing event channel: %v", err)
		}
	}
}
