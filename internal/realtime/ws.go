package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ErrNotAllowed is returned by an Authorizer to refuse an operation
var ErrNotAllowed = errors.New("not allowed")

// Authenticator resolves the user id of an upgrade request
type Authenticator func(r *http.Request) (string, error)

// Authorizer decides which topics a user may read and whether they may
// announce presence
type Authorizer interface {
	CanSubscribe(ctx context.Context, userID, topic string) (bool, error)
	PresenceFor(ctx context.Context, userID string) (*Presence, error)
}

type HandlerConfig struct {
	AllowedOrigins    []string
	MessagesPerSecond float64
	Burst             int
	SendBuffer        int
}

// Handler upgrades requests to websocket connections bound to a Hub
type Handler struct {
	hub      *Hub
	authn    Authenticator
	authz    Authorizer
	upgrader websocket.Upgrader
	config   HandlerConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(hub *Hub, authn Authenticator, authz Authorizer, config HandlerConfig, logger *slog.Logger) *Handler {
	if config.MessagesPerSecond <= 0 {
		config.MessagesPerSecond = 5
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = 64
	}

	h := &Handler{
		hub:    hub,
		authn:  authn,
		authz:  authz,
		config: config,
		logger: logger,
		now:    time.Now,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

type clientMessage struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type serverMessage struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

type trackPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type connection struct {
	h       *Handler
	ws      *websocket.Conn
	sub     *Subscriber
	userID  string
	replies chan serverMessage
	limiter *rate.Limiter
	tracked *Presence
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authn(r)
	if err != nil {
		http.Error(w, `{"error":"unauthorized","message":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Info("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &connection{
		h:       h,
		ws:      ws,
		sub:     h.hub.NewSubscriber(userID, h.config.SendBuffer),
		userID:  userID,
		replies: make(chan serverMessage, 16),
		limiter: rate.NewLimiter(rate.Limit(h.config.MessagesPerSecond), h.config.Burst),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go c.writePump(ctx)
	c.readPump(ctx)
	cancel()
}

func (c *connection) reply(m serverMessage) {
	select {
	case c.replies <- m:
	default:
	}
}

func (c *connection) readPump(ctx context.Context) {
	defer func() {
		if c.tracked != nil {
			if err := c.h.hub.Untrack(context.Background(), *c.tracked); err != nil {
				c.h.logger.Warn("failed to publish presence leave", slog.Any("error", err))
			}
		}
		c.h.hub.Remove(c.sub)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.logger.Info("websocket closed", slog.String("user_id", c.userID), slog.Any("error", err))
			}
			return
		}

		if !c.limiter.Allow() {
			c.reply(serverMessage{Type: "error", Message: "too many messages"})
			continue
		}

		c.handle(ctx, msg)
	}
}

func (c *connection) handle(ctx context.Context, msg clientMessage) {
	switch msg.Type {
	case "subscribe":
		ok, err := c.h.authz.CanSubscribe(ctx, c.userID, msg.Topic)
		if err != nil {
			c.h.logger.Error("topic authorization failed", slog.String("topic", msg.Topic), slog.Any("error", err))
			c.reply(serverMessage{Type: "error", Topic: msg.Topic, Message: "unable to subscribe"})
			return
		}
		if !ok {
			c.reply(serverMessage{Type: "error", Topic: msg.Topic, Message: "not allowed to subscribe to this topic"})
			return
		}
		c.reply(serverMessage{Type: "subscribed", Topic: msg.Topic})
		c.h.hub.Subscribe(c.sub, msg.Topic)

	case "unsubscribe":
		c.h.hub.Unsubscribe(c.sub, msg.Topic)
		c.reply(serverMessage{Type: "unsubscribed", Topic: msg.Topic})

	case "track":
		p, err := c.h.authz.PresenceFor(ctx, c.userID)
		if err != nil {
			c.reply(serverMessage{Type: "error", Topic: TopicVetPresence, Message: "only veterinarians can share presence"})
			return
		}
		var loc trackPayload
		if len(msg.Payload) > 0 && json.Unmarshal(msg.Payload, &loc) == nil && loc.Latitude != nil && loc.Longitude != nil {
			p.Latitude, p.Longitude = loc.Latitude, loc.Longitude
		}
		p.OnlineAt = c.h.now().UTC().Format(time.RFC3339)
		p.Ref = c.sub.ID
		if err := c.h.hub.Track(ctx, *p); err != nil {
			c.reply(serverMessage{Type: "error", Topic: TopicVetPresence, Message: "unable to track presence"})
			return
		}
		c.tracked = p
		c.reply(serverMessage{Type: "tracked", Topic: TopicVetPresence})

	case "untrack":
		if c.tracked != nil {
			_ = c.h.hub.Untrack(ctx, *c.tracked)
			c.tracked = nil
		}

	case "ping":
		c.reply(serverMessage{Type: "pong"})

	default:
		c.reply(serverMessage{Type: "error", Message: "unknown message type"})
	}
}

func (c *connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-c.sub.Events():
			if !ok {
				_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.write(serverMessage{Type: "event", Topic: e.Topic, Event: e.Event, Payload: e.Payload}) {
				return
			}
		case m := <-c.replies:
			if !c.write(m) {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) write(m serverMessage) bool {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(m) == nil
}
