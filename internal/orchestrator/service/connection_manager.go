package service

import (
	"sync"

	"github.com/gorilla/websocket"
)

// ConnectionManager tracks the websocket connections delegates keep open to
// receive task-available pings. Connections are keyed by delegate id and
// indexed by account so an enqueue can ping every connected delegate in the
// tenant.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*websocket.Conn     // delegateID -> conn
	byAccount   map[string]map[string]struct{} // accountID -> set of delegateIDs
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
		byAccount:   make(map[string]map[string]struct{}),
	}
}

// Add registers a connection for a delegate, replacing any previous one.
func (m *ConnectionManager) Add(accountID, delegateID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.connections[delegateID]; ok {
		old.Close()
	}
	m.connections[delegateID] = conn
	if m.byAccount[accountID] == nil {
		m.byAccount[accountID] = make(map[string]struct{})
	}
	m.byAccount[accountID][delegateID] = struct{}{}
}

// Remove closes and forgets the delegate's connection.
func (m *ConnectionManager) Remove(accountID, delegateID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.connections[delegateID]; ok {
		conn.Close()
		delete(m.connections, delegateID)
	}
	if set, ok := m.byAccount[accountID]; ok {
		delete(set, delegateID)
		if len(set) == 0 {
			delete(m.byAccount, accountID)
		}
	}
}

// Broadcast sends a message to every connected delegate in the account and
// returns the number of delegates reached. Write failures are treated as a
// dead connection, not an error: the delegate will still pick the task up on
// its next poll.
func (m *ConnectionManager) Broadcast(accountID string, message []byte) int {
	m.mu.RLock()
	conns := make(map[string]*websocket.Conn)
	for delegateID := range m.byAccount[accountID] {
		if conn, ok := m.connections[delegateID]; ok {
			conns[delegateID] = conn
		}
	}
	m.mu.RUnlock()

	reached := 0
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, message); err == nil {
			reached++
		}
	}
	return reached
}
