package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	MsgWelcome = "WELCOME"
	MsgOverlay = "OVERLAY"
	MsgPing    = "PING"
	MsgPong    = "PONG"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	sendBuffer = 16
)

type WebSocketMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type viewer struct {
	conn *websocket.Conn
	id   string
	send chan WebSocketMessage
}

// OverlayHub fans overlays out to websocket viewers. Show never blocks:
// a viewer whose buffer is full misses that overlay.
type OverlayHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	viewers map[string]*viewer
	latest  *models.Overlay

	shown   atomic.Int64
	dropped atomic.Int64
}

func NewOverlayHub(logger *slog.Logger) *OverlayHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverlayHub{
		logger: logger.With("component", "overlay_hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		viewers: make(map[string]*viewer),
	}
}

// Show publishes one overlay to every connected viewer.
func (h *OverlayHub) Show(overlay models.Overlay) {
	payload, err := json.Marshal(overlay)
	if err != nil {
		h.logger.Error("encode overlay", "error", err)
		return
	}
	msg := WebSocketMessage{Type: MsgOverlay, Payload: payload, Timestamp: time.Now().Unix()}

	h.mu.Lock()
	h.latest = &overlay
	h.mu.Unlock()
	h.shown.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, v := range h.viewers {
		select {
		case v.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// Latest returns the last overlay shown, if any.
func (h *OverlayHub) Latest() (models.Overlay, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return models.Overlay{}, false
	}
	return *h.latest, true
}

func (h *OverlayHub) ActiveViewers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *OverlayHub) Shown() int64 { return h.shown.Load() }

func (h *OverlayHub) Dropped() int64 { return h.dropped.Load() }

// ServeHTTP upgrades the request and serves the viewer until it leaves.
func (h *OverlayHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	id := r.URL.Query().Get("clientId")
	if id == "" {
		id = "viewer-" + uuid.NewString()[:8]
	}
	v := &viewer{conn: conn, id: id, send: make(chan WebSocketMessage, sendBuffer)}

	// queued before registering so Show cannot fill the buffer first
	welcome, _ := json.Marshal(map[string]string{
		"message": "Connected to drowsiness overlay stream",
	})
	v.send <- WebSocketMessage{Type: MsgWelcome, ClientID: id, Payload: welcome, Timestamp: time.Now().Unix()}
	if latest, ok := h.Latest(); ok {
		payload, _ := json.Marshal(latest)
		v.send <- WebSocketMessage{Type: MsgOverlay, Payload: payload, Timestamp: time.Now().Unix()}
	}

	if !h.register(v) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "duplicate client id"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.logger.Info("viewer connected", "client_id", id)

	go h.writePump(v)
	h.readPump(v)

	h.unregister(v)
	h.logger.Info("viewer disconnected", "client_id", id)
}

func (h *OverlayHub) register(v *viewer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, taken := h.viewers[v.id]; taken {
		return false
	}
	h.viewers[v.id] = v
	return true
}

func (h *OverlayHub) unregister(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.viewers[v.id]; ok && cur == v {
		delete(h.viewers, v.id)
		close(v.send)
	}
}

func (h *OverlayHub) readPump(v *viewer) {
	defer v.conn.Close()

	v.conn.SetReadLimit(4096)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		v.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg WebSocketMessage
		if err := v.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "client_id", v.id, "error", err)
			}
			return
		}

		switch msg.Type {
		case MsgPing:
			h.reply(v, WebSocketMessage{Type: MsgPong, ClientID: v.id, Timestamp: time.Now().Unix()})
		default:
			h.logger.Debug("ignoring viewer message", "client_id", v.id, "type", msg.Type)
		}
	}
}

// reply queues msg for v unless v has already been dropped from the hub.
func (h *OverlayHub) reply(v *viewer, msg WebSocketMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.viewers[v.id] != v {
		return
	}
	select {
	case v.send <- msg:
	default:
		h.dropped.Add(1)
	}
}

func (h *OverlayHub) writePump(v *viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every viewer.
func (h *OverlayHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, v := range h.viewers {
		close(v.send)
		v.conn.Close()
		h.logger.Info("closed viewer connection", "client_id", id)
	}
	h.viewers = make(map[string]*viewer)
}
