package sse

import (
	"path/filepath"
	"sync"

	"github.com/kbukum/nodeflow/logger"
)

// DefaultClientBuffer is the number of messages queued per client before
// messages are dropped.
const DefaultClientBuffer = 256

// Client is a connected SSE client.
type Client struct {
	id       string
	metadata map[string]string
	events   chan []byte
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMetadata adds a metadata key-value pair to the client.
func WithMetadata(key, value string) ClientOption {
	return func(c *Client) { c.metadata[key] = value }
}

// WithGraph records the graph the client subscribed to.
func WithGraph(name string) ClientOption {
	return WithMetadata("graph", name)
}

// NewClient creates a client with a buffered event channel.
func NewClient(id string, opts ...ClientOption) *Client {
	c := &Client{
		id:       id,
		metadata: make(map[string]string),
		events:   make(chan []byte, DefaultClientBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ID() string { return c.id }

func (c *Client) Metadata() map[string]string { return c.metadata }

// Graph returns the subscribed graph name, empty for all graphs.
func (c *Client) Graph() string { return c.metadata["graph"] }

// Events returns the channel of encoded messages.
func (c *Client) Events() <-chan []byte { return c.events }

// Send queues data. It returns false when the client is too slow.
func (c *Client) Send(data []byte) bool {
	select {
	case c.events <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() { close(c.events) }

// Broadcaster sends data to every client whose id matches a glob pattern.
type Broadcaster interface {
	BroadcastToPattern(pattern string, data []byte)
}

type message struct {
	pattern string
	data    []byte
}

// Hub manages client connections and message fan-out. Run must be running
// for Register, Unregister and broadcasts to make progress.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	log        *logger.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *logger.Logger) HubOption {
	return func(h *Hub) { h.log = l.WithComponent("sse") }
}

// NewHub creates a stopped-until-Run hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run is the hub's event loop. It returns after Stop and closes every
// client channel.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.id]; ok {
				old.close()
			}
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client registered", logger.Fields("client_id", client.id, "total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.id]; ok && cur == client {
				delete(h.clients, client.id)
				client.close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client unregistered", logger.Fields("client_id", client.id, "total_clients", total))

		case msg := <-h.broadcast:
			h.broadcastWithPattern(msg.pattern, msg.data)
		}
	}
}

// Stop shuts the hub down. Safe to call multiple times.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Stopped reports whether Stop was called.
func (h *Hub) Stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.close()
		delete(h.clients, id)
	}
	h.log.Debug("all clients closed")
}

// Register adds a client. It returns false once the hub is stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToPattern queues data for every client whose id matches the
// glob pattern, e.g. "graph:demo:*". Messages sent after Stop are dropped.
func (h *Hub) BroadcastToPattern(pattern string, data []byte) {
	select {
	case h.broadcast <- message{pattern: pattern, data: data}:
	case <-h.done:
	}
}

func (h *Hub) broadcastWithPattern(pattern string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for id, client := range h.clients {
		matched, err := filepath.Match(pattern, id)
		if err != nil {
			h.log.Error("bad broadcast pattern", logger.MergeWithError(logger.Fields("pattern", pattern), err))
			return
		}
		if !matched {
			continue
		}
		if client.Send(data) {
			sent++
		} else {
			h.log.Warn("client channel full, dropping message", logger.Fields("client_id", id))
		}
	}
	h.log.Debug("broadcast", logger.Fields("pattern", pattern, "match_count", sent, "data_size", len(data)))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ClientIDs returns the connected client ids.
func (h *Hub) ClientIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// Client returns a client by id, or nil.
func (h *Hub) Client(id string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

var _ Broadcaster = (*Hub)(nil)
