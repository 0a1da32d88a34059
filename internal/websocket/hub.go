package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fancify-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenParser resolves a session token to its session id.
type TokenParser interface {
	ParseSessionToken(token string) (uuid.UUID, error)
}

// SessionLookup returns the current snapshot of a live session.
type SessionLookup interface {
	Snapshot(id uuid.UUID) (models.Snapshot, error)
}

type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub pushes session snapshots to connected browsers. With a Redis client
// every snapshot goes through pub/sub so that any instance holding the
// browser connection renders it; without one it is written directly.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*client
	redisClient *redis.Client
	tokens      TokenParser
	sessions    SessionLookup
	log         *zap.Logger
	cancelFuncs map[uuid.UUID]context.CancelFunc
}

func NewHub(redisClient *redis.Client, tokens TokenParser, sessions SessionLookup, log *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*client),
		redisClient: redisClient,
		tokens:      tokens,
		sessions:    sessions,
		log:         log,
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
	}
}

func channelFor(sessionID uuid.UUID) string {
	return "session_updates:" + sessionID.String()
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID, err := h.tokens.ParseSessionToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if _, err := h.sessions.Snapshot(sessionID); err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	h.registerConnection(r.Context(), sessionID, c)

	// Read after registering so no render between the two is missed.
	snap, err := h.sessions.Snapshot(sessionID)
	if err != nil {
		h.unregisterConnection(sessionID, c)
		return
	}
	if data, err := encodeSnapshot(snap); err == nil {
		c.write(data)
	}

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(sessionID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// Render implements session.Renderer.
func (h *Hub) Render(ctx context.Context, snap models.Snapshot) {
	data, err := encodeSnapshot(snap)
	if err != nil {
		h.log.Error("encode snapshot", zap.Error(err))
		return
	}

	if h.redisClient != nil {
		if err := h.redisClient.Publish(ctx, channelFor(snap.SessionID), string(data)).Err(); err != nil {
			h.log.Warn("publish snapshot", zap.String("session_id", snap.SessionID.String()), zap.Error(err))
		}
		return
	}

	h.broadcast(snap.SessionID, data)
}

// ConnectionCount reports the open connections of a session.
func (h *Hub) ConnectionCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID])
}

// Close drops every connection and pub/sub subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conns := range h.connections {
		for _, c := range conns {
			c.conn.Close()
		}
		delete(h.connections, id)
	}
	for id, cancel := range h.cancelFuncs {
		cancel()
		delete(h.cancelFuncs, id)
	}
}

func (h *Hub) registerConnection(ctx context.Context, sessionID uuid.UUID, c *client) {
	h.mu.Lock()
	h.connections[sessionID] = append(h.connections[sessionID], c)
	total := len(h.connections[sessionID])

	// Start pub/sub subscription if this is the first connection for this session
	var subCtx context.Context
	if h.redisClient != nil && total == 1 {
		var cancel context.CancelFunc
		subCtx, cancel = context.WithCancel(context.Background())
		h.cancelFuncs[sessionID] = cancel
	}
	h.mu.Unlock()

	if subCtx != nil {
		pubsub := h.redisClient.Subscribe(subCtx, channelFor(sessionID))
		// Wait for the subscription to be confirmed before the caller reads
		// the initial snapshot.
		if _, err := pubsub.Receive(ctx); err != nil {
			h.log.Warn("subscribe snapshots", zap.String("session_id", sessionID.String()), zap.Error(err))
		}
		go h.forward(subCtx, sessionID, pubsub)
	}

	h.log.Debug("websocket connected",
		zap.String("session_id", sessionID.String()),
		zap.Int("total", total),
	)
}

func (h *Hub) unregisterConnection(sessionID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[sessionID]
	for i, existing := range conns {
		if existing == c {
			h.connections[sessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[sessionID]) == 0 {
		delete(h.connections, sessionID)
		if cancel, ok := h.cancelFuncs[sessionID]; ok {
			cancel()
			delete(h.cancelFuncs, sessionID)
		}
	}

	h.log.Debug("websocket disconnected", zap.String("session_id", sessionID.String()))
}

func (h *Hub) forward(ctx context.Context, sessionID uuid.UUID, pubsub *redis.PubSub) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(sessionID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(sessionID uuid.UUID, data []byte) {
	h.mu.RLock()
	conns := append([]*client(nil), h.connections[sessionID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			h.log.Debug("websocket write failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		}
	}
}

func encodeSnapshot(snap models.Snapshot) ([]byte, error) {
	return json.Marshal(models.WSMessage{Type: models.WSTypeSnapshot, Payload: snap})
}
