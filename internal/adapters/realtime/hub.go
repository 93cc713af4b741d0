package realtime

import "sync"

// Hub maps players to their live connections so one battle can address
// both participants.
type Hub struct {
	mu      sync.RWMutex
	players map[string]map[*Client]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{players: make(map[string]map[*Client]struct{})}
}

// Add registers c for playerID.
func (h *Hub) Add(playerID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.players[playerID]
	if !ok {
		set = make(map[*Client]struct{})
		h.players[playerID] = set
	}
	set[c] = struct{}{}
}

// Remove unregisters c and returns how many connections the player has left.
func (h *Hub) Remove(playerID string, c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.players[playerID]
	if !ok {
		return 0
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.players, playerID)
	}
	return len(set)
}

// Online reports whether playerID has a live connection.
func (h *Hub) Online(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.players[playerID]) > 0
}

// Send delivers an event to every connection of playerID and returns the
// number of connections addressed.
func (h *Hub) Send(playerID, action string, data any) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.players[playerID]))
	for c := range h.players[playerID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.Notify(action, data)
	}
	return len(clients)
}

// Players returns the number of players online.
func (h *Hub) Players() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.players)
}
