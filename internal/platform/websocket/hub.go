// Package websocket delivers change-feed events to browser clients. Clients
// subscribe to topics such as "matches", "matches/<id>" or "chat/<id>" and
// receive every event published on them.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/organlink/organlink/internal/platform/auth"
	"github.com/organlink/organlink/internal/platform/events"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ClientMessage represents an inbound message from a WebSocket client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Ack is written back after a subscribe request so clients learn which
// topics were refused.
type Ack struct {
	Type     string   `json:"type"`
	Accepted []string `json:"accepted"`
	Rejected []string `json:"rejected,omitempty"`
}

// Authorizer decides whether the caller on ctx may subscribe to topic.
type Authorizer func(ctx context.Context, topic string) bool

// Client represents a single WebSocket connection.
type Client struct {
	ID     string
	UserID string
	Topics []string
	Send   chan []byte
	ctx    context.Context
}

func NewClient(ctx context.Context) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: auth.UserIDFromContext(ctx),
		Send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
	}
}

// Hub tracks clients and their topic subscriptions. It implements
// events.Publisher so it can sit behind an events.Fanout.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	// collections also receive item events, e.g. "matches" sees "matches/<id>".
	collections map[string]bool
	logger      zerolog.Logger
}

func NewHub(logger zerolog.Logger, collections ...string) *Hub {
	h := &Hub{
		clients:     make(map[string]map[*Client]struct{}),
		all:         make(map[*Client]struct{}),
		collections: make(map[string]bool, len(collections)),
		logger:      logger,
	}
	for _, c := range collections {
		h.collections[c] = true
	}
	return h
}

// Register adds a client to the hub and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(client, topic)
	}
}

// Unregister removes a client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if _, already := h.clients[topic][client]; already {
			continue
		}
		h.addLocked(client, topic)
		client.Topics = append(client.Topics, topic)
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
		h.removeLocked(client, t)
	}

	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, rm := drop[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) addLocked(client *Client, topic string) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(client *Client, topic string) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Broadcast sends event to every client subscribed to topic. Clients whose
// buffer is full miss the event rather than block the publisher.
func (h *Hub) Broadcast(topic string, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("websocket: marshal event")
		return
	}
	h.deliver(data, topic)
}

func (h *Hub) deliver(data []byte, topics ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Client]struct{})
	for _, topic := range topics {
		for client := range h.clients[topic] {
			if _, dup := seen[client]; dup {
				continue
			}
			seen[client] = struct{}{}
			select {
			case client.Send <- data:
			default:
				h.logger.Warn().Str("client_id", client.ID).Str("topic", topic).Msg("websocket: client buffer full, dropping event")
			}
		}
	}
}

// Publish delivers the event to its topic and, for configured collections, to
// the collection topic as well.
func (h *Hub) Publish(_ context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	topics := []string{event.Topic}
	if event.Resource != event.Topic && h.collections[event.Resource] {
		topics = append(topics, event.Resource)
	}
	h.deliver(data, topics...)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// ProcessMessage applies a subscribe/unsubscribe request. Topics refused by
// authorize are reported in the returned Ack.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage, authorize Authorizer) Ack {
	switch msg.Action {
	case "subscribe":
		ack := Ack{Type: "subscribed", Accepted: []string{}}
		for _, t := range msg.Topics {
			if t == "" {
				continue
			}
			if authorize != nil && !authorize(client.ctx, t) {
				ack.Rejected = append(ack.Rejected, t)
				continue
			}
			ack.Accepted = append(ack.Accepted, t)
		}
		h.Subscribe(client, ack.Accepted)
		return ack
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
		return Ack{Type: "unsubscribed", Accepted: msg.Topics}
	default:
		return Ack{Type: "error", Rejected: msg.Topics}
	}
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler upgrades GET /ws and pumps messages between the socket and the hub.
type Handler struct {
	hub       *Hub
	authorize Authorizer
	origins   map[string]bool
}

// NewHandler builds the upgrade handler. An empty origins list accepts any
// Origin header.
func NewHandler(hub *Hub, authorize Authorizer, origins []string) *Handler {
	h := &Handler{hub: hub, authorize: authorize}
	if len(origins) > 0 {
		h.origins = make(map[string]bool, len(origins))
		for _, o := range origins {
			h.origins[o] = true
		}
	}
	return h
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.origins == nil || h.origins["*"] {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || h.origins[origin]
}

func (h *Handler) HandleConnect(c echo.Context) error {
	up := upgrader
	up.CheckOrigin = h.checkOrigin
	ws, err := up.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	// Keep only the caller identity; the request context ends with the handler.
	reqCtx := c.Request().Context()
	client := NewClient(auth.WithUser(context.Background(), auth.UserIDFromContext(reqCtx), auth.RolesFromContext(reqCtx)))
	h.hub.Register(client)

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		ack := h.hub.ProcessMessage(client, msg, h.authorize)
		if b, err := json.Marshal(ack); err == nil {
			h.trySend(client, b)
		}
	}
}

// trySend queues b unless the client has already been unregistered.
func (h *Handler) trySend(client *Client, b []byte) {
	h.hub.mu.RLock()
	defer h.hub.mu.RUnlock()
	if _, ok := h.hub.all[client]; !ok {
		return
	}
	select {
	case client.Send <- b:
	default:
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
