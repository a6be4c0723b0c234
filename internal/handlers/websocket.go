package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// TipAlert is the payload of a "tip" message.
type TipAlert struct {
	TxID        string      `json:"txid"`
	StreamID    string      `json:"stream_id"`
	SenderName  string      `json:"sender_name"`
	AvatarURL   string      `json:"sender_avatar_url,omitempty"`
	Message     string      `json:"message"`
	AmountSompi uint64      `json:"amount_sompi"`
	AmountKAS   json.Number `json:"amount_kas"`
}

func newTipAlert(t models.Tip) TipAlert {
	return TipAlert{
		TxID:        t.TxID,
		StreamID:    t.StreamID,
		SenderName:  t.SenderDisplayName,
		AvatarURL:   t.SenderAvatarURL,
		Message:     t.DecodedMessage,
		AmountSompi: t.AmountSompi,
		AmountKAS:   models.KASNumber(t.AmountSompi),
	}
}

// Client is one viewer watching a stream.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	streamID string
}

type streamMessage struct {
	streamID string
	data     []byte
}

// Hub fans verified tips out to the viewers of each stream.
type Hub struct {
	// Clients by the stream they watch
	streams map[string]map[*Client]bool

	broadcast  chan streamMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub creates a hub accepting upgrades from allowedOrigins ("*" allows all).
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		streams:    make(map[string]map[*Client]bool),
		broadcast:  make(chan streamMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no origin
		return origin == "" || set[origin]
	}
}

// Run serves the hub until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.streams {
				for client := range clients {
					close(client.send)
				}
			}
			h.streams = map[string]map[*Client]bool{}
			return

		case client := <-h.register:
			if _, ok := h.streams[client.streamID]; !ok {
				h.streams[client.streamID] = make(map[*Client]bool)
			}
			h.streams[client.streamID][client] = true

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			for client := range h.streams[msg.streamID] {
				select {
				case client.send <- msg.data:
				default:
					// slow viewer
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.streams[client.streamID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.streams, client.streamID)
	}
}

// BroadcastTip pushes a tip alert to the viewers of its stream.
func (h *Hub) BroadcastTip(tip models.Tip) {
	data, err := json.Marshal(WebSocketMessage{Type: "tip", Payload: newTipAlert(tip)})
	if err != nil {
		h.log.Error("marshal tip alert", zap.String("txid", tip.TxID), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- streamMessage{streamID: tip.StreamID, data: data}:
	case <-h.done:
	}
}

// readPump only services control frames; viewers never send data.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read", zap.String("stream_id", c.streamID), zap.Error(err))
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
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
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// ServeStreamWs subscribes the connection to the tips of {streamId}.
func ServeStreamWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		streamID := chi.URLParam(r, "streamId")
		if streamID == "" {
			writeError(w, http.StatusBadRequest, "streamId is required")
			return
		}

		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Debug("websocket upgrade", zap.Error(err))
			return
		}

		client := &Client{
			hub:      hub,
			conn:     conn,
			send:     make(chan []byte, 256),
			streamID: streamID,
		}
		// queued before registering: once the hub owns the client it may close send
		welcome, _ := json.Marshal(WebSocketMessage{
			Type:    "subscribed",
			Payload: map[string]string{"stream_id": streamID},
		})
		client.send <- welcome

		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
