package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

const defaultOutboundBuffer = 16

// Client is one registered live connection. Frames queued for it are drained by the
// connection's writer until Done is closed.
type Client struct {
	ID     string
	UserID string

	outbound chan Frame
	done     chan struct{}
	once     sync.Once
}

func (c *Client) Outbound() <-chan Frame {
	return c.outbound
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub is the in-process registry of live connections, keyed by client id and indexed by user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	byUser  map[string]map[string]*Client
	buffer  int
	now     func() time.Time
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultOutboundBuffer
	}
	return &Hub{
		clients: make(map[string]*Client),
		byUser:  make(map[string]map[string]*Client),
		buffer:  buffer,
		now:     time.Now,
	}
}

func (h *Hub) Register(userID string) *Client {
	client := &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		outbound: make(chan Frame, h.buffer),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	set, ok := h.byUser[userID]
	if !ok {
		set = make(map[string]*Client)
		h.byUser[userID] = set
	}
	set[client.ID] = client
	total := len(h.clients)
	h.mu.Unlock()

	slog.Info("ws_client_registered", "client_id", client.ID, "user_id", userID, "clients", total)
	return client
}

// Deregister removes the client and closes its Done channel. Calling it twice is harmless.
func (h *Hub) Deregister(client *Client) {
	if client == nil {
		return
	}
	h.mu.Lock()
	_, known := h.clients[client.ID]
	delete(h.clients, client.ID)
	if set, ok := h.byUser[client.UserID]; ok {
		delete(set, client.ID)
		if len(set) == 0 {
			delete(h.byUser, client.UserID)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	client.close()
	if known {
		slog.Info("ws_client_deregistered", "client_id", client.ID, "user_id", client.UserID, "clients", total)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SendTo queues a frame for one client. A full buffer drops the frame and reports a
// transport error rather than blocking the caller.
func (h *Hub) SendTo(clientID string, frame Frame) error {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "send to client", fmt.Errorf("client %s is not connected", clientID))
	}
	if !h.enqueue(client, frame) {
		return domain.WrapError(domain.ErrTransport, "send to client", fmt.Errorf("client %s outbound buffer full", clientID))
	}
	return nil
}

// NotifyUser queues a frame for every connection of the user and returns how many accepted it.
func (h *Hub) NotifyUser(userID string, frame Frame) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byUser[userID]))
	for _, c := range h.byUser[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	return h.fanOut(targets, frame)
}

// Broadcast queues a frame for every connected client.
func (h *Hub) Broadcast(frame Frame) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	return h.fanOut(targets, frame)
}

// DocumentStatusChanged pushes a status frame to the owner's connections.
func (h *Hub) DocumentStatusChanged(_ context.Context, event domain.StatusEvent) error {
	if event.OwnerID == "" {
		return nil
	}
	h.NotifyUser(event.OwnerID, statusFrame(event))
	return nil
}

func (h *Hub) fanOut(targets []*Client, frame Frame) int {
	delivered := 0
	for _, c := range targets {
		if h.enqueue(c, frame) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) enqueue(client *Client, frame Frame) bool {
	if frame.Timestamp.IsZero() {
		frame.Timestamp = h.now().UTC()
	}
	select {
	case <-client.done:
		return false
	default:
	}
	select {
	case client.outbound <- frame:
		return true
	default:
		slog.Warn("ws_frame_dropped", "client_id", client.ID, "type", frame.Type, "reason", "outbound buffer full")
		return false
	}
}
