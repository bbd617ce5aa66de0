// Package stream broadcasts animation frames to renderers over WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/metrics"
)

const (
	// WriteWait is the timeout for writing to a WebSocket.
	WriteWait = 10 * time.Second

	// PongWait is the timeout for pong responses.
	PongWait = 60 * time.Second

	// PingPeriod is how often to send ping frames.
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize bounds client messages; clients only send control frames.
	MaxMessageSize = 512

	sendBuffer = 64
)

// Message types on the wire.
const (
	TypeHello  = "hello"
	TypeFrame  = "frame"
	TypeViseme = "viseme"
	TypeLog    = "log"
	TypeError  = "error"

	// Client to server.
	TypeBlink      = "blink"
	TypeWink       = "wink"
	TypeExpression = "expression"
)

// Hello is the first message a client receives.
type Hello struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
	FPS      int    `json:"fps"`
}

// FrameMessage carries one animation frame.
type FrameMessage struct {
	Type     string               `json:"type"`
	Tick     uint64               `json:"tick"`
	Time     float64              `json:"time"` // milliseconds since start
	Viseme   string               `json:"viseme"`
	VisemeID int                  `json:"viseme_id"`
	Class    string               `json:"class"`
	Volume   float64              `json:"volume"`
	Speaking bool                 `json:"speaking"`
	Weights  map[string]float32   `json:"weights"`
	Morphs   map[string][]float32 `json:"morphs,omitempty"` // per-mesh vectors when a model is bound
}

// VisemeMessage announces a viseme change.
type VisemeMessage struct {
	Type     string  `json:"type"`
	Viseme   string  `json:"viseme"`
	VisemeID int     `json:"viseme_id"`
	Time     float64 `json:"time"`
}

// LogMessage forwards one log entry to clients.
type LogMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Data      string `json:"data,omitempty"`
}

// ErrorMessage reports a rejected client request.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Control is a request sent by a client, e.g. {"type":"wink","side":"left"}
// or {"type":"expression","name":"smile"}.
type Control struct {
	Type string `json:"type"`
	Side string `json:"side,omitempty"`
	Name string `json:"name,omitempty"`
}

// ControlHandler acts on a client request. A returned error is sent back to
// that client.
type ControlHandler func(clientID string, c Control) error

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans frames out to every connected client. Slow clients lose frames
// rather than stalling the animation loop.
type Hub struct {
	logger   zerolog.Logger
	events   *bus.EventBus
	upgrader websocket.Upgrader
	fps      int

	mu      sync.RWMutex
	clients map[string]*client
	onCtl   ControlHandler
	wg      sync.WaitGroup
}

// NewHub creates a hub. events may be nil.
func NewHub(fps int, events *bus.EventBus, logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "stream").Logger(),
		events: events,
		fps:    fps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Renderers are local pages and tools on other origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	hello, _ := json.Marshal(Hello{Type: TypeHello, ClientID: c.id, FPS: h.fps})
	c.send <- hello

	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	metrics.StreamClients.Inc()
	h.logger.Info().Str("client", c.id).Int("clients", n).Msg("Client connected")
	h.publish(bus.EventTypeClientConnected, c.id)

	h.wg.Add(2)
	go h.writePump(c)
	go h.readPump(c)
}

// SetControlHandler installs the handler for client requests. Without one,
// client messages are ignored.
func (h *Hub) SetControlHandler(fn ControlHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCtl = fn
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast marshals v once and queues it for every client.
func (h *Hub) Broadcast(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			metrics.DroppedFrames.Inc()
		}
	}
	return nil
}

// Close disconnects every client and waits for their pumps to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
		metrics.StreamClients.Dec()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		c.close()
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.StreamClients.Dec()
		h.logger.Info().Str("client", c.id).Int("clients", n).Msg("Client disconnected")
		h.publish(bus.EventTypeClientDisconnected, c.id)
	}
}

func (h *Hub) publish(t bus.EventType, id string) {
	if h.events != nil {
		h.events.Publish(bus.NewEvent(t, map[string]any{"client_id": id}))
	}
}

func (h *Hub) writePump(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.unregister(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer h.wg.Done()
	defer h.unregister(c)

	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("client", c.id).Msg("WebSocket read error")
			}
			return
		}
		if msgType == websocket.TextMessage {
			h.handleControl(c, data)
		}
	}
}

func (h *Hub) handleControl(c *client, data []byte) {
	h.mu.RLock()
	fn := h.onCtl
	h.mu.RUnlock()
	if fn == nil {
		return
	}

	var ctl Control
	if err := json.Unmarshal(data, &ctl); err != nil {
		h.reply(c, ErrorMessage{Type: TypeError, Message: "malformed message: " + err.Error()})
		return
	}
	if err := fn(c.id, ctl); err != nil {
		h.logger.Debug().Err(err).Str("client", c.id).Str("type", ctl.Type).Msg("Control rejected")
		h.reply(c, ErrorMessage{Type: TypeError, Message: err.Error()})
	}
}

// reply queues v for one client if it is still registered.
func (h *Hub) reply(c *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		metrics.DroppedFrames.Inc()
	}
}

// Server hosts the hub next to auxiliary HTTP handlers.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer builds a server on addr serving routes.
func NewServer(addr string, routes map[string]http.Handler, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	for path, handler := range routes {
		mux.Handle(path, handler)
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})
	return &Server{
		srv:    &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
