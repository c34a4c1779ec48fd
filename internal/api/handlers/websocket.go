package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/onnwee/reddit-fleet/internal/apierr"
	"github.com/onnwee/reddit-fleet/internal/logger"
	"github.com/onnwee/reddit-fleet/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS middleware is the authority on allowed origins.
		return true
	},
}

// LogLine is one line tailed from a scraper's subprocess output (§4.H).
type LogLine struct {
	ScraperID string    `json:"scraper_id"`
	Time      time.Time `json:"time"`
	Text      string    `json:"text"`
}

// Client is a single WebSocket subscriber to one scraper's log tail.
type Client struct {
	hub  *LogHub
	conn *websocket.Conn
	send chan []byte
}

// LogHub fans out log lines for one scraper to any number of connected
// operators. One hub exists per scraper; the Supervisor feeds lines into it
// as the child process writes them.
type LogHub struct {
	scraperID  string
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	mu         sync.RWMutex
}

// NewLogHub creates a hub for a single scraper's log stream.
func NewLogHub(scraperID string) *LogHub {
	return &LogHub{
		scraperID:  scraperID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

// Run drives the hub's register/unregister/broadcast loop; it takes no
// context and never returns.
func (h *LogHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.WebSocketConnections.Inc()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.WebSocketConnections.Dec()
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
					metrics.WebSocketConnections.Dec()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish enqueues a log line for broadcast to all connected clients.
func (h *LogHub) Publish(line []byte) {
	select {
	case h.broadcast <- line:
		metrics.WebSocketMessagesSent.Inc()
	default:
		logger.Warn("log hub broadcast buffer full, dropping line", "scraper_id", h.scraperID)
	}
}

// LogHubRegistry looks up (creating on demand) the per-scraper log hub.
// The Supervisor publishes to hubs from this registry as it reads child
// stdout/stderr; handlers subscribe clients to them.
type LogHubRegistry struct {
	mu   sync.Mutex
	hubs map[string]*LogHub
}

func NewLogHubRegistry() *LogHubRegistry {
	return &LogHubRegistry{hubs: make(map[string]*LogHub)}
}

func (r *LogHubRegistry) Get(scraperID string) *LogHub {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hubs[scraperID]; ok {
		return h
	}
	h := NewLogHub(scraperID)
	r.hubs[scraperID] = h
	go h.Run()
	return h
}

// Publish encodes a log line and fans it out to scraperID's hub, creating
// the hub on demand. Satisfies internal/supervisor.LogPublisher, letting
// the Supervisor tail each worker child's stdout/stderr straight into the
// websocket log stream without either package importing the other.
func (r *LogHubRegistry) Publish(scraperID string, line []byte) {
	encoded, err := json.Marshal(LogLine{ScraperID: scraperID, Time: time.Now(), Text: string(line)})
	if err != nil {
		logger.Error("failed to encode log line", "scraper_id", scraperID, "error", err)
		return
	}
	r.Get(scraperID).Publish(encoded)
}

// WebSocketHandler upgrades GET /scrapers/{id}/logs connections and attaches
// them to the scraper's log hub.
type WebSocketHandler struct {
	registry *LogHubRegistry
}

func NewWebSocketHandler(registry *LogHubRegistry) *WebSocketHandler {
	return &WebSocketHandler{registry: registry}
}

// HandleWebSocket handles GET /scrapers/{id}/logs.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	scraperID := mux.Vars(r)["id"]
	if scraperID == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("id"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade to WebSocket", "error", err)
		return
	}

	hub := h.registry.Get(scraperID)
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256)}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket unexpected close", "error", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
