package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType tags a WSMessage's payload kind, adapted from the teacher's
// websocket.go Hub, trimmed to the events this backtesting facade emits.
type MessageType string

const (
	MsgTypeProgress MessageType = "backtest_progress"
	MsgTypeComplete MessageType = "backtest_complete"
	MsgTypeError    MessageType = "backtest_error"
	MsgTypeHeartbeat MessageType = "heartbeat"
)

// WSMessage is a WebSocket message published to a channel.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// BacktestProgress is the payload of a MsgTypeProgress event: how far a
// long-running monte_carlo invocation has gotten.
type BacktestProgress struct {
	RunID     string `json:"run_id"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// Client is a single WebSocket connection subscribed to zero or more
// channels.
type Client struct {
	id            string
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]bool
	mu            sync.RWMutex
}

// Hub fans WSMessages out to subscribed clients. Grounded on the
// teacher's internal/api Hub: a single goroutine owns client
// registration/unregistration via channels; PublishToChannel runs on the
// caller's goroutine under a read lock on the subscriber maps.
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	channels   map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub constructs a Hub; call Run in its own goroutine before serving
// WebSocket upgrades.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		channels:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes registration/unregistration and periodic heartbeats until
// the process exits; it is meant to run for the server's lifetime.
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				for channel := range c.subscriptions {
					if subs, ok := h.channels[channel]; ok {
						delete(subs, c)
						if len(subs) == 0 {
							delete(h.channels, channel)
						}
					}
				}
			}
			h.mu.Unlock()
		case <-ticker.C:
			h.heartbeat()
		}
	}
}

func (h *Hub) heartbeat() {
	msg, err := json.Marshal(WSMessage{Type: MsgTypeHeartbeat, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Subscribe adds c to channel's subscriber set.
func (h *Hub) Subscribe(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][c] = true
	c.mu.Lock()
	c.subscriptions[channel] = true
	c.mu.Unlock()
}

// PublishToChannel marshals data, wraps it in a WSMessage, and delivers
// it to every client subscribed to channel. A full client send buffer is
// dropped rather than blocking the publisher (the caller is usually the
// Monte Carlo worker pool, which must not stall on a slow consumer).
func (h *Hub) PublishToChannel(channel string, msgType MessageType, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("marshal websocket payload", zap.Error(err))
		return
	}
	msg, err := json.Marshal(WSMessage{Type: msgType, Channel: channel, Data: payload, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		h.logger.Error("marshal websocket message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[channel] {
		select {
		case c.send <- msg:
		default:
		}
	}
}
