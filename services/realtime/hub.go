// Package realtime pushes events to the websocket connections of signed in users.
package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/klunity/klunity/core"
)

// Hub tracks the live connections of every user. A user may hold several (tabs, devices).
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // {userID: clients}
	closed  bool
	logger  core.Logger
}

var _ core.Publisher = (*Hub)(nil) // interface compliance check

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// NewUpgrader accepts same-host requests and the configured CORS origins.
func NewUpgrader(conf *core.Config) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(conf.Server.CORSOrigins))
	for _, o := range conf.Server.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed["*"]; ok {
				return true
			}
			if _, ok := allowed[origin]; ok {
				return true
			}
			return strings.HasSuffix(origin, "://"+r.Host)
		},
	}
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

// remove drops c and closes its queue. Callers hold h.mu.
func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok = set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
}

// Publish queues evt on every connection of userIDs. Connections whose queue is full are dropped.
func (h *Hub) Publish(evt core.Event, userIDs ...string) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error(fmt.Sprintf("encoding %s event: %v", evt.Type, err), err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range userIDs {
		for c := range h.clients[id] {
			select {
			case c.send <- data:
			default:
				h.remove(c)
			}
		}
	}
}

// Connections returns the number of live connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var n int
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, set := range h.clients {
		for c := range set {
			h.remove(c)
		}
	}
}
