// Package presence tracks which users have a live realtime connection.
package presence

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ernie/pokearena/internal/domain"
)

// Conn is a live client connection. Send must not block or call back into
// the registry; it reports false when the connection is closed or cannot
// take the message.
type Conn interface {
	ID() string
	Send(msg []byte) bool
	Close()
}

// Entry is one connected user
type Entry struct {
	UserID      int64
	DisplayName string
	Conn        Conn
}

// Registry maps user ids to their current connection. A user has at most one
// entry; registering again replaces the previous connection without closing it.
// Replaced connections stay in the broadcast set until they unregister.
type Registry struct {
	mu       sync.RWMutex
	entries  map[int64]Entry
	conns    map[string]Conn
	logger   *slog.Logger
	onChange func(online int)
	closed   bool
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[int64]Entry),
		conns:   make(map[string]Conn),
		logger:  logger,
	}
}

// OnChange registers a callback invoked with the online count after every
// register or unregister. It runs with the registry locked.
func (r *Registry) OnChange(fn func(online int)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Register inserts or replaces the user's entry and broadcasts the new
// online list to every open connection.
func (r *Registry) Register(userID int64, displayName string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		conn.Close()
		return
	}
	_, replaced := r.entries[userID]
	r.entries[userID] = Entry{UserID: userID, DisplayName: displayName, Conn: conn}
	r.conns[conn.ID()] = conn

	r.logger.Info("user connected", "user_id", userID, "conn", conn.ID(), "replaced", replaced, "online", len(r.entries))
	r.changedLocked()
}

// Unregister drops conn from the broadcast set and removes the user's entry
// if it still belongs to conn, then broadcasts the new online list. It
// reports whether an entry was removed.
func (r *Registry) Unregister(userID int64, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, conn.ID())

	e, ok := r.entries[userID]
	if !ok || e.Conn.ID() != conn.ID() {
		return false
	}
	delete(r.entries, userID)

	r.logger.Info("user disconnected", "user_id", userID, "conn", conn.ID(), "online", len(r.entries))
	r.changedLocked()
	return true
}

// changedLocked reports the new count and broadcasts the online list. The
// snapshot and its delivery happen under one lock, so every connection sees
// presence updates in the order they were applied.
func (r *Registry) changedLocked() {
	if r.onChange != nil {
		r.onChange(len(r.entries))
	}
	msg := domain.OnlineUsersMessage{Type: domain.MessageOnlineUsers, Users: r.listLocked()}
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("broadcasting online users", "error", err)
		return
	}
	r.sendAllLocked(data)
}

// Lookup returns the user's current entry
func (r *Registry) Lookup(userID int64) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[userID]
	return e, ok
}

// List returns every online user, ordered by id
func (r *Registry) List() []domain.OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []domain.OnlineUser {
	users := make([]domain.OnlineUser, 0, len(r.entries))
	for _, e := range r.entries {
		users = append(users, domain.OnlineUser{ID: e.UserID, Username: e.DisplayName})
	}
	slices.SortFunc(users, func(a, b domain.OnlineUser) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return users
}

// Count returns the number of online users
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Send delivers msg to one user. It reports false if the user is not online
// or their connection refused the message.
func (r *Registry) Send(userID int64, msg any) bool {
	e, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshaling message", "user_id", userID, "error", err)
		return false
	}
	return e.Conn.Send(data)
}

// Broadcast delivers msg to every open connection, including ones replaced
// by a reconnect. Connections that refuse the message are skipped.
func (r *Registry) Broadcast(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling broadcast: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendAllLocked(data)
	return nil
}

func (r *Registry) sendAllLocked(data []byte) {
	for _, c := range r.conns {
		c.Send(data)
	}
}

// Close empties the registry and closes every connection. Later registrations
// are refused.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.conns
	r.entries = make(map[int64]Entry)
	r.conns = make(map[string]Conn)
	r.closed = true

	for _, c := range conns {
		c.Close()
	}
	if r.onChange != nil {
		r.onChange(0)
	}
	r.logger.Info("presence registry closed", "dropped", len(conns))
}
