package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"support-chat/contract"
	"support-chat/domain"
	"support-chat/errors"
	"support-chat/observability"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

type liveConnection struct {
	info   domain.Connection
	handle contract.Handle
}

// Registry tracks every live connection and the user owning it.
// It is the only owner of transport handles: a connection is destroyed on Unregister.
type Registry struct {
	mu                      sync.RWMutex
	emitMu                  sync.Mutex // keeps listener notifications in mutation order
	log                     *slog.Logger
	singleConnectionPerUser bool
	connections             map[domain.ConnectionID]*liveConnection
	byUser                  map[domain.UserID]map[domain.ConnectionID]struct{}
	listeners               []contract.ConnectionListener
	now                     func() time.Time
}

func NewRegistry(log *slog.Logger, singleConnectionPerUser bool) *Registry {
	return &Registry{
		log:                     log,
		singleConnectionPerUser: singleConnectionPerUser,
		connections:             make(map[domain.ConnectionID]*liveConnection),
		byUser:                  make(map[domain.UserID]map[domain.ConnectionID]struct{}),
		now:                     func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe adds a listener for connect, disconnect and activity events.
// Listeners are called synchronously and must not call back into the registry.
func (r *Registry) Subscribe(listener contract.ConnectionListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// Register records a new live connection for the user.
// With the single-connection policy a second connection is refused with ErrDuplicateConnection.
func (r *Registry) Register(userID domain.UserID, handle contract.Handle) (domain.ConnectionID, error) {
	r.mu.Lock()
	if r.singleConnectionPerUser && len(r.byUser[userID]) > 0 {
		r.mu.Unlock()
		observability.ConnectionEvents.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("%w: %s", errors.ErrDuplicateConnection, userID)
	}

	now := r.now()
	conn := &liveConnection{
		info: domain.Connection{
			ID:           domain.ConnectionID(uuid.NewString()),
			UserID:       userID,
			ConnectedAt:  now,
			LastActivity: now,
		},
		handle: handle,
	}
	r.connections[conn.info.ID] = conn
	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[domain.ConnectionID]struct{})
	}
	r.byUser[userID][conn.info.ID] = struct{}{}

	r.emit(contract.ConnectionEvent{
		Type:       contract.Connected,
		Connection: conn.info,
		Remaining:  len(r.byUser[userID]),
	})

	observability.LiveConnections.Inc()
	observability.ConnectionEvents.WithLabelValues("connected").Inc()
	r.log.Debug("Connection registered", "user_id", userID, "connection_id", conn.info.ID)
	return conn.info.ID, nil
}

// Unregister removes a connection and closes its handle. Unknown ids are a no-op.
func (r *Registry) Unregister(connID domain.ConnectionID) {
	r.mu.Lock()
	conn, ok := r.connections[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.connections, connID)
	userID := conn.info.UserID
	remaining := 0
	if conns, ok := r.byUser[userID]; ok {
		delete(conns, connID)
		remaining = len(conns)
		// No empty sets left behind
		if remaining == 0 {
			delete(r.byUser, userID)
		}
	}

	r.emit(contract.ConnectionEvent{
		Type:       contract.Disconnected,
		Connection: conn.info,
		Remaining:  remaining,
	})

	if err := conn.handle.Close(); err != nil {
		r.log.Debug("Closing transport handle failed", "connection_id", connID, "error", err)
	}
	observability.LiveConnections.Dec()
	observability.ConnectionEvents.WithLabelValues("disconnected").Inc()
	r.log.Debug("Connection unregistered", "user_id", userID, "connection_id", connID)
}

// Lookup returns the live connections of a user, empty when offline.
func (r *Registry) Lookup(userID domain.UserID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := lo.Keys(r.byUser[userID])
	slices.Sort(ids)
	return ids
}

func (r *Registry) Connection(connID domain.ConnectionID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connID]
	if !ok {
		return domain.Connection{}, false
	}
	return conn.info, true
}

// Send pushes a message through the connection's transport.
// Any failure is reported as ErrTransportClosed and the connection is unregistered.
func (r *Registry) Send(ctx context.Context, connID domain.ConnectionID, msg domain.Message) error {
	r.mu.RLock()
	conn, ok := r.connections[connID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: connection %s is gone", errors.ErrTransportClosed, connID)
	}

	if err := conn.handle.Push(ctx, msg); err != nil {
		r.log.Debug("Push failed, unregistering connection",
			"connection_id", connID,
			"user_id", conn.info.UserID,
			"error", err)
		r.Unregister(connID)
		return fmt.Errorf("%w: %v", errors.ErrTransportClosed, err)
	}
	return nil
}

// Touch refreshes the last-activity timestamp of a connection.
func (r *Registry) Touch(connID domain.ConnectionID) {
	r.mu.Lock()
	conn, ok := r.connections[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	conn.info.LastActivity = r.now()
	r.emit(contract.ConnectionEvent{
		Type:       contract.Activity,
		Connection: conn.info,
		Remaining:  len(r.byUser[conn.info.UserID]),
	})
}

// emit must be called with r.mu held; it releases it.
// The emit lock is taken before the state lock is released so listeners observe events in mutation order.
func (r *Registry) emit(evt contract.ConnectionEvent) {
	listeners := r.listeners
	r.emitMu.Lock()
	r.mu.Unlock()
	defer r.emitMu.Unlock()
	for _, l := range listeners {
		l.OnConnectionEvent(evt)
	}
}
