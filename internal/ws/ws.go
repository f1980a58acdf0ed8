package ws

import (
	"context"
	"log/slog"
	"sync"

	"nhooyr.io/websocket"

	"github.com/mapsmith/mapsmith/internal/chain"
)

// SnapshotFunc returns the JSON document sent to clients on connect and on sync.
type SnapshotFunc func() ([]byte, error)

// Hub manages WebSocket connections and broadcasts chain progress to all clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     *slog.Logger
	mu         sync.RWMutex
	snapshot   SnapshotFunc
	done       chan struct{}
}

// Client represents a single WebSocket connection.
type Client struct {
	hub  *Hub
	send chan []byte
	conn *websocket.Conn
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// SetSnapshot sets the function that describes current state to new clients.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.snapshot = fn
}

// Run is the hub's event loop. It returns when ctx is done, closing every
// client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected")

		case client := <-h.unregister:
			h.drop(client)
			h.logger.Debug("websocket client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("dropping slow websocket client")
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Broadcast sends a message to all connected clients. It is a no-op once
// the hub has stopped.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// BroadcastJSON broadcasts a payload with the given message type.
func (h *Hub) BroadcastJSON(msgType MessageType, payload any) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		h.logger.Error("failed to create broadcast message", "type", msgType, "error", err)
		return
	}
	h.Broadcast(msg)
}

// BroadcastError broadcasts an error to all clients.
func (h *Hub) BroadcastError(errMsg string) {
	h.BroadcastJSON(MsgError, map[string]string{"message": errMsg})
}

// BroadcastEvent broadcasts one chain run event.
func (h *Hub) BroadcastEvent(chainID string, ev chain.Event) {
	typ, ok := eventTypes[ev.Kind]
	if !ok {
		return
	}
	msg, err := newChainMessage(typ, chainID, ev)
	if err != nil {
		h.logger.Error("failed to create chain event message", "chain_id", chainID, "error", err)
		return
	}
	h.Broadcast(msg)
}

// ChainCallbacks returns executor callbacks that broadcast a run of chainID.
func (h *Hub) ChainCallbacks(chainID string) chain.Callbacks {
	return chain.Callbacks{
		OnStepStart: func(linkID string) {
			h.BroadcastEvent(chainID, chain.Event{Kind: chain.EventStepStart, LinkID: linkID})
		},
		OnStepComplete: func(res chain.StepResult) {
			h.BroadcastEvent(chainID, chain.Event{Kind: chain.EventStepComplete, LinkID: res.LinkID, Result: &res})
		},
		OnChainComplete: func(output string) {
			h.BroadcastEvent(chainID, chain.Event{Kind: chain.EventChainComplete, Output: output})
		},
		OnChainError: func(linkID, message string) {
			h.BroadcastEvent(chainID, chain.Event{Kind: chain.EventChainError, LinkID: linkID, Error: message})
		},
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
