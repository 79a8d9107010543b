package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/Ivantech123/neontrill/internal/auth"
	"github.com/Ivantech123/neontrill/internal/game"
	"github.com/Ivantech123/neontrill/internal/metrics"
	"github.com/Ivantech123/neontrill/internal/model"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent; pings go out at
	// pingPeriod so a healthy client always answers in time.
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// sendBuffer is the per-connection outbound queue. A client that falls
	// this far behind is dropped rather than stalling the fan-out.
	sendBuffer = 64

	// resultLookback is how far back settled games are re-announced on the
	// periodic broadcast, for briefly-disconnected clients.
	resultLookback = 5 * time.Second
)

// connState is the broadcaster-owned connection lifecycle.
type connState int

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateClosed
)

// wsEnvelope is the transport-agnostic message shape: {type, data}.
type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func envelope(msgType string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	out, _ := json.Marshal(wsEnvelope{Type: msgType, Data: raw})
	return out
}

// Client is one WebSocket connection. Identity and state are owned by the
// hub, not the socket; all writes go through the send queue.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	state    connState
	identity string
}

func (c *Client) setAuthenticated(identity string) {
	c.mu.Lock()
	c.state = stateAuthenticated
	c.identity = identity
	c.mu.Unlock()
}

func (c *Client) authedIdentity() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.state == stateAuthenticated
}

// enqueue queues a message, dropping the client if its buffer is full.
// The send runs under the client mutex so it can never race the channel
// close in drop.
func (c *Client) enqueue(msg []byte) {
	if msg == nil {
		return
	}
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- msg:
		c.mu.Unlock()
	default:
		// Buffer full: schedule the drop without ever blocking the
		// caller, which may be the hub loop itself.
		c.mu.Unlock()
		select {
		case c.hub.unregister <- c:
		default:
		}
	}
}

func (c *Client) sendError(message string) {
	c.enqueue(envelope("error", map[string]string{"message": message}))
}

// Hub manages live connections: it authenticates them, relays their
// commands into the game registry, and fans registry state out to every
// authenticated client. At most one live connection per identity.
type Hub struct {
	registry *game.Registry
	tokens   *auth.TokenManager

	mu         sync.RWMutex
	clients    map[*Client]struct{}
	byIdentity map[string]*Client

	register   chan *Client
	unregister chan *Client
}

// NewHub creates a hub over the registry. Run must be started for the hub
// to process connections and registry events.
func NewHub(registry *game.Registry, tokens *auth.TokenManager) *Hub {
	return &Hub{
		registry:   registry,
		tokens:     tokens,
		clients:    make(map[*Client]struct{}),
		byIdentity: make(map[string]*Client),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
	}
}

// Run is the hub's main event loop: connection lifecycle plus the registry
// event stream. Must be called in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	events := h.registry.Events()
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			slog.Info("ws client connected", "total", total)

		case c := <-h.unregister:
			h.drop(c)

		case ev := <-events:
			h.broadcastEvent(ev)

		case <-ctx.Done():
			return
		}
	}
}

// drop closes a client and removes it from the maps. Idempotent.
func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	if c.identity != "" && h.byIdentity[c.identity] == c {
		delete(h.byIdentity, c.identity)
	}
	total := len(h.clients)
	h.mu.Unlock()

	c.mu.Lock()
	c.state = stateClosed
	close(c.send)
	c.mu.Unlock()

	c.conn.Close()
	metrics.WebSocketClients.Set(float64(total))
}

// bindIdentity makes c the single live connection for identity, replacing
// any prior one.
func (h *Hub) bindIdentity(c *Client, identity string) {
	h.mu.Lock()
	prev := h.byIdentity[identity]
	h.byIdentity[identity] = c
	h.mu.Unlock()

	if prev != nil && prev != c {
		h.unregister <- prev
	}
	c.setAuthenticated(identity)
}

// broadcastAuthed fans a message out to every authenticated client.
func (h *Hub) broadcastAuthed(msg []byte) {
	if msg == nil {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byIdentity))
	for _, c := range h.byIdentity {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

// broadcastEvent translates a registry event into its wire message. Every
// state change is published to all clients; the lobby is a shared view.
func (h *Hub) broadcastEvent(ev game.Event) {
	switch ev.Type {
	case game.EventGameCreated:
		h.broadcastAuthed(envelope("game:created", ev.Game))
	case game.EventPlayerJoined:
		h.broadcastAuthed(envelope("game:playerJoined", map[string]any{
			"gameId": ev.Game.ID,
			"player": map[string]any{
				"address":   ev.Player.Identity,
				"betAmount": ev.Player.BetAmount,
			},
			"game": ev.Game,
		}))
	case game.EventGameStarting:
		h.broadcastAuthed(envelope("game:starting", map[string]string{"gameId": ev.Game.ID}))
	case game.EventGameResult:
		metrics.GamesSettled.Inc()
		h.broadcastAuthed(resultMessage(*ev.Result))
	}
}

func resultMessage(res model.GameResult) []byte {
	return envelope("game:result", map[string]any{
		"gameId":   res.GameID,
		"winner":   map[string]string{"address": res.Winner},
		"winnings": res.Winnings,
	})
}

// TickBroadcast pushes the authoritative per-second view: an update for
// every active game plus results settled within the lookback window. Wired
// to run right after the scheduler's registry tick.
func (h *Hub) TickBroadcast() {
	for _, summary := range h.registry.ActiveGames() {
		h.broadcastAuthed(envelope("game:updated", summary))
	}
	for _, res := range h.registry.RecentResults(resultLookback) {
		h.broadcastAuthed(resultMessage(res))
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // origin policy is enforced upstream
	},
}

// HandleWS upgrades an HTTP request into a hub-managed connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump consumes inbound frames until the connection dies. Pong receipt
// extends the read deadline; a client that misses a ping window times out
// here and is torn down.
func (c *Client) readPump() {
	defer func() { c.hub.unregister <- c }()

	c.conn.SetReadLimit(1 << 16)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handleMessage(env)
	}
}

// writePump is the single writer for the connection: queued messages plus
// the heartbeat pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// handleMessage dispatches one inbound command.
func (c *Client) handleMessage(env wsEnvelope) {
	switch env.Type {
	case "auth":
		c.handleAuth(env.Data)
	case "game:create":
		c.handleCreate(env.Data)
	case "game:join":
		c.handleJoin(env.Data)
	default:
		c.sendError("unknown message type: " + env.Type)
	}
}

func (c *Client) handleAuth(data json.RawMessage) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Token == "" {
		c.sendError("token required for authentication")
		return
	}

	identity, err := c.hub.tokens.Verify(req.Token)
	if err != nil {
		c.sendError("invalid or expired token")
		c.hub.unregister <- c
		return
	}

	c.hub.bindIdentity(c, identity)
	c.enqueue(envelope("auth:success", map[string]string{"address": identity}))
	c.enqueue(envelope("games:list", c.hub.registry.ActiveGames()))
	slog.Info("ws client authenticated", "identity", identity)
}

func (c *Client) handleCreate(data json.RawMessage) {
	identity, ok := c.authedIdentity()
	if !ok {
		c.sendError("authentication required")
		return
	}

	var req struct {
		BetRange   [2]decimal.Decimal `json:"betRange"`
		MaxPlayers int                `json:"maxPlayers"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.MaxPlayers == 0 {
		c.sendError("betRange and maxPlayers are required")
		return
	}

	if _, err := c.hub.registry.CreateGame(identity, req.BetRange[0], req.BetRange[1], req.MaxPlayers); err != nil {
		c.sendError(err.Error())
		return
	}
	metrics.GamesCreated.Inc()
	// The created game is announced via the registry event stream.
}

func (c *Client) handleJoin(data json.RawMessage) {
	identity, ok := c.authedIdentity()
	if !ok {
		c.sendError("authentication required")
		return
	}

	var req struct {
		GameID    string          `json:"gameId"`
		BetAmount decimal.Decimal `json:"betAmount"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.GameID == "" || req.BetAmount.IsZero() {
		c.sendError("gameId and betAmount are required")
		return
	}

	if _, err := c.hub.registry.JoinGame(context.Background(), req.GameID, identity, req.BetAmount); err != nil {
		metrics.JoinsRejected.WithLabelValues(joinRejectReason(err)).Inc()
		c.sendError(joinErrorMessage(err))
		return
	}
	// Success is announced to everyone via the registry event stream.
}

func joinRejectReason(err error) string {
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		return "not_found"
	case errors.Is(err, game.ErrBetOutOfRange):
		return "bet_range"
	case errors.Is(err, game.ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, game.ErrInsufficientBalance):
		return "balance"
	case errors.Is(err, game.ErrStakeLimitExceeded), errors.Is(err, game.ErrExposureLimitExceeded):
		return "stake_limit"
	default:
		return "not_joinable"
	}
}
