package runtime

import (
	"log/slog"
	"support-chat/contract"
	"support-chat/domain"
	"support-chat/observability"
	"sync"
	"time"
)

var _ contract.ConnectionListener = (*Presence)(nil)

// Presence derives online/away/offline from registry events.
// A user is away when every one of their connections has been idle longer than awayAfter.
type Presence struct {
	mu        sync.RWMutex
	log       *slog.Logger
	awayAfter time.Duration
	users     map[domain.UserID]map[domain.ConnectionID]time.Time
	now       func() time.Time
}

func NewPresence(log *slog.Logger, awayAfter time.Duration) *Presence {
	return &Presence{
		log:       log,
		awayAfter: awayAfter,
		users:     make(map[domain.UserID]map[domain.ConnectionID]time.Time),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p *Presence) OnConnectionEvent(evt contract.ConnectionEvent) {
	userID := evt.Connection.UserID
	connID := evt.Connection.ID

	p.mu.Lock()
	defer p.mu.Unlock()

	switch evt.Type {
	case contract.Connected:
		conns, ok := p.users[userID]
		if !ok {
			conns = make(map[domain.ConnectionID]time.Time)
			p.users[userID] = conns
			observability.PresenceTransitions.WithLabelValues(string(domain.Online)).Inc()
			p.log.Debug("User is online", "user_id", userID)
		}
		conns[connID] = evt.Connection.LastActivity
	case contract.Activity:
		if conns, ok := p.users[userID]; ok {
			if _, known := conns[connID]; known {
				conns[connID] = evt.Connection.LastActivity
			}
		}
	case contract.Disconnected:
		conns, ok := p.users[userID]
		if !ok {
			return
		}
		delete(conns, connID)
		if len(conns) == 0 {
			delete(p.users, userID)
			observability.PresenceTransitions.WithLabelValues(string(domain.Offline)).Inc()
			p.log.Debug("User is offline", "user_id", userID)
		}
	}
}

func (p *Presence) Status(userID domain.UserID) domain.PresenceStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.statusLocked(userID, p.now())
}

// Snapshot returns the status of every connected user.
func (p *Presence) Snapshot() map[domain.UserID]domain.PresenceStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := p.now()
	res := make(map[domain.UserID]domain.PresenceStatus, len(p.users))
	for userID := range p.users {
		res[userID] = p.statusLocked(userID, now)
	}
	return res
}

func (p *Presence) statusLocked(userID domain.UserID, now time.Time) domain.PresenceStatus {
	conns, ok := p.users[userID]
	if !ok || len(conns) == 0 {
		return domain.Offline
	}
	if p.awayAfter <= 0 {
		return domain.Online
	}
	for _, lastActivity := range conns {
		if now.Sub(lastActivity) < p.awayAfter {
			return domain.Online
		}
	}
	return domain.Away
}
