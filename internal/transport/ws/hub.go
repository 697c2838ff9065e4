package ws

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"selfie-capture-kiosk/internal/events"
	"selfie-capture-kiosk/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ============================================================
// CONSTANTS
// ============================================================

const (
	WriteTimeout   = 10 * time.Second
	PongTimeout    = 60 * time.Second
	PingInterval   = 30 * time.Second
	MaxMessageSize = 1 << 20
	SendBuffer     = 64
)

// ============================================================
// COLLABORATORS
// ============================================================

// StateSource supplies the current UI snapshot for new clients.
type StateSource interface {
	State() models.UIState
}

// LogSource supplies the full log panel for new clients.
type LogSource interface {
	Entries() []models.LogEntry
}

// SignalHandler receives WebRTC signalling from browsers.
type SignalHandler interface {
	HandleSignal(clientID string, msg models.InboundMessage) error
	PendingRequest() (models.CameraRequest, bool)
	ClientGone(clientID string)
}

// CommandFunc runs on the client's read goroutine. Anything long-running
// must be started asynchronously so signalling from the same client keeps
// flowing.
type CommandFunc func(clientID string) error

// ============================================================
// HUB
// ============================================================

// Hub fans bus events out to websocket clients and routes their commands
// and signalling. It satisfies webrtc.Signaler.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	commands map[string]CommandFunc
	signals  SignalHandler

	state    StateSource
	entries  LogSource
	upgrader websocket.Upgrader

	unsubs    []func()
	closed    bool
	closeOnce sync.Once
}

func NewHub(state StateSource, entries LogSource, allowOrigins []string) *Hub {
	h := &Hub{
		clients:  make(map[string]*client),
		commands: make(map[string]CommandFunc),
		state:    state,
		entries:  entries,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// SetSignalHandler wires the WebRTC side. It is set after construction
// because the manager needs the hub as its signaler.
func (h *Hub) SetSignalHandler(s SignalHandler) {
	h.mu.Lock()
	h.signals = s
	h.mu.Unlock()
}

// On registers the handler for a client command.
func (h *Hub) On(msgType string, fn CommandFunc) {
	h.mu.Lock()
	h.commands[msgType] = fn
	h.mu.Unlock()
}

// Attach pushes every bus event to connected clients.
func (h *Hub) Attach(bus *events.Bus) error {
	subs := []func() (func(), error){
		func() (func(), error) {
			return bus.OnUIState(func(s models.UIState) { h.Broadcast(models.MsgUIState, s) })
		},
		func() (func(), error) {
			return bus.OnLogAppend(func(e models.LogEntry) { h.Broadcast(models.MsgLogAppend, e) })
		},
		func() (func(), error) {
			return bus.OnLogClear(func() { h.Broadcast(models.MsgLogClear, nil) })
		},
		func() (func(), error) {
			return bus.OnCapture(func(r *models.CaptureRecord) { h.Broadcast(models.MsgCaptured, NewCaptureEvent(r)) })
		},
	}

	for _, sub := range subs {
		unsub, err := sub()
		if err != nil {
			h.detach()
			return fmt.Errorf("subscribe: %w", err)
		}
		h.mu.Lock()
		h.unsubs = append(h.unsubs, unsub)
		h.mu.Unlock()
	}
	return nil
}

func (h *Hub) detach() {
	h.mu.Lock()
	unsubs := h.unsubs
	h.unsubs = nil
	h.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// ============================================================
// SIGNALER
// ============================================================

// Send queues a message for one client.
func (h *Hub) Send(clientID, msgType string, data interface{}) error {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("client %s not connected", clientID)
	}
	return c.enqueue(newOutbound(msgType, data))
}

// Broadcast queues a message for every client and returns how many
// accepted it.
func (h *Hub) Broadcast(msgType string, data interface{}) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	msg := newOutbound(msgType, data)
	n := 0
	for _, c := range targets {
		if err := c.enqueue(msg); err != nil {
			log.Printf("⚠️  Broadcast %s to %s: %v", msgType, c.id, err)
			continue
		}
		n++
	}
	return n
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ============================================================
// CONNECTIONS
// ============================================================

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade: %v", err)
		return
	}

	c := newClient(uuid.NewString(), conn, formatFromQuery(r.URL.Query().Get("format")))
	h.register(c)

	go c.writePump()
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	signals := h.signals
	h.mu.Unlock()

	log.Printf("🔌 Client %s connected (%s)", c.id, c.format)

	if h.state != nil {
		_ = c.enqueue(newOutbound(models.MsgUIState, h.state.State()))
	}
	if h.entries != nil {
		_ = c.enqueue(newOutbound(models.MsgLogSnapshot, h.entries.Entries()))
	}
	if signals != nil {
		if req, ok := signals.PendingRequest(); ok {
			_ = c.enqueue(newOutbound(models.MsgCameraRequest, req))
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	signals := h.signals
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	if signals != nil {
		signals.ClientGone(c.id)
	}
	log.Printf("🔌 Client %s disconnected", c.id)
}

func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
	})

	for {
		frameType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("❌ WebSocket read error: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(PongTimeout))

		msg, err := decode(frameType, payload)
		if err != nil {
			log.Printf("⚠️  %s: %v", c.id, err)
			_ = c.enqueue(newOutbound(models.MsgError, err.Error()))
			continue
		}
		h.dispatch(c, msg)
	}
}

// dispatch handles one message; a client's messages are handled in order.
func (h *Hub) dispatch(c *client, msg models.InboundMessage) {
	h.mu.RLock()
	cmd, isCommand := h.commands[msg.Type]
	signals := h.signals
	h.mu.RUnlock()

	var err error
	switch {
	case isSignal(msg.Type):
		if signals == nil {
			err = fmt.Errorf("signalling not available")
			break
		}
		err = signals.HandleSignal(c.id, msg)
	case isCommand:
		err = cmd(c.id)
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}

	if err != nil {
		log.Printf("⚠️  %s %s: %v", c.id, msg.Type, err)
		_ = c.enqueue(newOutbound(models.MsgError, models.UserMessage(err)))
	}
}

func isSignal(msgType string) bool {
	switch msgType {
	case models.MsgOffer, models.MsgCandidate, models.MsgCameraError, models.MsgQuit:
		return true
	}
	return false
}

// ============================================================
// SHUTDOWN
// ============================================================

// Close detaches from the bus and drops every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.detach()

		h.mu.Lock()
		h.closed = true
		clients := make([]*client, 0, len(h.clients))
		for _, c := range h.clients {
			clients = append(clients, c)
		}
		h.mu.Unlock()

		for _, c := range clients {
			c.shutdown()
		}
		log.Printf("🛑 WebSocket hub closed (%d clients)", len(clients))
	})
}

// ============================================================
// EVENT PAYLOADS
// ============================================================

// CaptureEvent is the pushed form of a capture: the record plus its image
// as a data URL.
type CaptureEvent struct {
	*models.CaptureRecord
	DataURL string `json:"dataUrl"`
}

func NewCaptureEvent(r *models.CaptureRecord) CaptureEvent {
	return CaptureEvent{CaptureRecord: r, DataURL: r.DataURL()}
}
