package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/highstakes/highstakes/server/internal/leaderboard"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

// originChecker returns the upgrader's Origin policy. With no origins only
// same-host browser requests pass; "*" admits every origin. Requests without
// an Origin header come from non-browser clients and always pass.
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil // gorilla's same-origin check
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[strings.ToLower(origin)]
	}
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event       string                 `json:"event"` // "leaderboard"
	OfferID     int                    `json:"offer_id"`
	Standings   []leaderboard.Standing `json:"standings"`
	GeneratedAt string                 `json:"generated_at"` // RFC3339
}

// Hub manages WebSocket clients, each subscribed to one offer, and pushes that
// offer's leaderboard to them on every tick and on every Notify.
type Hub struct {
	boards   *leaderboard.Store
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	offerID int
}

// New creates a Hub that reads from boards and broadcasts every interval.
// origins lists the browser origins allowed to connect; see originChecker.
func New(boards *leaderboard.Store, interval time.Duration, origins ...string) *Hub {
	return &Hub{
		boards:   boards,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(origins),
		},
		clients: make(map[*client]struct{}),
	}
}

// Run starts the broadcast ticker loop. Run blocks until ctx is cancelled,
// then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the connection and subscribes it to the offer named by
// the {offerID} route parameter. The current leaderboard is sent right away.
// Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	offerID, err := strconv.Atoi(chi.URLParam(r, "offerID"))
	if err != nil {
		http.Error(w, "offer id must be an integer", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBufSize),
		offerID: offerID,
	}
	h.register(c)
	defer h.unregister(c)

	if data, err := h.buildMessage(offerID); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Notify pushes the offer's current leaderboard to its subscribers. It never
// blocks on slow clients.
func (h *Hub) Notify(offerID int) {
	h.mu.RLock()
	subscribed := false
	for c := range h.clients {
		if c.offerID == offerID {
			subscribed = true
			break
		}
	}
	h.mu.RUnlock()
	if !subscribed {
		return
	}

	data, err := h.buildMessage(offerID)
	if err != nil {
		slog.Error("ws: build message", "offer_id", offerID, "err", err)
		return
	}
	h.sendTo(map[int][]byte{offerID: data})
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Debug("ws: client subscribed", "offer_id", c.offerID)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast() {
	h.mu.RLock()
	offers := make(map[int]struct{})
	for c := range h.clients {
		offers[c.offerID] = struct{}{}
	}
	h.mu.RUnlock()

	msgs := make(map[int][]byte, len(offers))
	for id := range offers {
		data, err := h.buildMessage(id)
		if err != nil {
			continue
		}
		msgs[id] = data
	}
	h.sendTo(msgs)
}

// sendTo delivers msgs[offerID] to every client subscribed to offerID.
// Sends happen under the read lock so unregister cannot close a channel
// mid-send; clients whose buffer is full are disconnected afterwards.
func (h *Hub) sendTo(msgs map[int][]byte) {
	var slow []*client

	h.mu.RLock()
	for c := range h.clients {
		data, ok := msgs[c.offerID]
		if !ok {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Debug("ws: dropping slow client", "offer_id", c.offerID)
		h.unregister(c)
	}
}

func (h *Hub) buildMessage(offerID int) ([]byte, error) {
	msg := Message{
		Event:       "leaderboard",
		OfferID:     offerID,
		Standings:   leaderboard.Standings(h.boards.Snapshot(offerID)),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	return json.Marshal(msg)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages (pong,
// close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
