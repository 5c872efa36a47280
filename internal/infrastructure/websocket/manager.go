package websocket

import (
	"context"
	"sync"

	"chatsync/pkg/logger"
	"chatsync/pkg/metrics"
)

// PresenceFunc is told when a user gets their first connection and when
// their last one goes away.
type PresenceFunc func(userID string, online bool)

// Manager manages all active WebSocket connections
type Manager struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
	onPresence PresenceFunc
}

// NewManager creates a new WebSocket connection manager
func NewManager(onPresence PresenceFunc) *Manager {
	if onPresence == nil {
		onPresence = func(string, bool) {}
	}
	return &Manager{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		onPresence: onPresence,
	}
}

// Start runs the manager's main loop in a goroutine. When ctx ends every
// client is closed.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		defer close(m.done)
		for {
			select {
			case client := <-m.register:
				m.add(client)

			case client := <-m.unregister:
				m.remove(client)

			case <-ctx.Done():
				m.closeAll()
				return
			}
		}
	}()
}

// Register adds client. It is a no-op once the manager has stopped.
func (m *Manager) Register(client *Client) {
	select {
	case m.register <- client:
	case <-m.done:
		client.Close()
	}
}

func (m *Manager) Unregister(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) add(client *Client) {
	m.mutex.Lock()
	conns, ok := m.clients[client.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		m.clients[client.UserID] = conns
	}
	conns[client] = struct{}{}
	first := len(conns) == 1
	m.mutex.Unlock()

	metrics.WebSocketConnectionsActive.Inc()
	logger.Info("Client registered: %s (%s)", client.UserID, client.ID)
	if first {
		m.onPresence(client.UserID, true)
	}
}

func (m *Manager) remove(client *Client) {
	m.mutex.Lock()
	conns, ok := m.clients[client.UserID]
	if ok {
		if _, ok = conns[client]; ok {
			delete(conns, client)
		}
	}
	last := ok && len(conns) == 0
	if last {
		delete(m.clients, client.UserID)
	}
	m.mutex.Unlock()

	if !ok {
		return
	}
	client.Close()
	metrics.WebSocketConnectionsActive.Dec()
	logger.Info("Client unregistered: %s (%s)", client.UserID, client.ID)
	if last {
		m.onPresence(client.UserID, false)
	}
}

func (m *Manager) closeAll() {
	m.mutex.Lock()
	clients := m.clients
	m.clients = make(map[string]map[*Client]struct{})
	m.mutex.Unlock()

	for userID, conns := range clients {
		for client := range conns {
			client.Close()
			metrics.WebSocketConnectionsActive.Dec()
		}
		m.onPresence(userID, false)
	}
}

// DisconnectUser closes every connection of userID. Their read pumps then
// unregister them.
func (m *Manager) DisconnectUser(userID string) int {
	m.mutex.RLock()
	conns := make([]*Client, 0, len(m.clients[userID]))
	for client := range m.clients[userID] {
		conns = append(conns, client)
	}
	m.mutex.RUnlock()

	for _, client := range conns {
		client.Close()
	}
	return len(conns)
}

// Connections returns how many connections userID has open.
func (m *Manager) Connections(userID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID])
}

// Count returns the number of open connections.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	n := 0
	for _, conns := range m.clients {
		n += len(conns)
	}
	return n
}
