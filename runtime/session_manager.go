package runtime

import (
	"fmt"
	"log/slog"
	"slices"
	"support-chat/contract"
	"support-chat/domain"
	"support-chat/errors"
	"support-chat/observability"
	"sync"
	"time"

	"github.com/samber/lo"
)

// SessionManager owns one-to-one sessions and the agent pool.
// Waiting sessions are assigned first come first served as soon as an agent has capacity.
type SessionManager struct {
	mu             sync.Mutex
	log            *slog.Logger
	identity       contract.IdentityResolver
	maxPerAgent    int
	sessions       map[domain.ConversationID]*domain.Session
	openByCustomer map[domain.UserID]domain.ConversationID
	waiting        []domain.ConversationID
	pool           domain.Set
	load           map[domain.UserID]int
	lastAssigned   domain.UserID
	onAssigned     func(domain.Session)
	now            func() time.Time
}

func NewSessionManager(log *slog.Logger, identity contract.IdentityResolver, maxPerAgent int) *SessionManager {
	return &SessionManager{
		log:            log,
		identity:       identity,
		maxPerAgent:    maxPerAgent,
		sessions:       make(map[domain.ConversationID]*domain.Session),
		openByCustomer: make(map[domain.UserID]domain.ConversationID),
		pool:           make(domain.Set),
		load:           make(map[domain.UserID]int),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// OnAssigned registers the callback run after each assignment, once the manager lock is released.
// It must be set before the manager is shared.
func (m *SessionManager) OnAssigned(fn func(domain.Session)) {
	m.onAssigned = fn
}

// OpenSession creates a Requested session for a customer and tries to assign it right away.
// A customer holds at most one open session.
func (m *SessionManager) OpenSession(customerID domain.UserID) (domain.Session, error) {
	if err := m.requireRole(customerID, domain.RoleCustomer); err != nil {
		return domain.Session{}, err
	}

	var assigned []domain.Session
	defer func() { m.notify(assigned) }()
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.openByCustomer[customerID]; ok {
		return domain.Session{}, fmt.Errorf("%w: %s", errors.ErrSessionAlreadyOpen, existing)
	}

	session := domain.NewSession(customerID, m.now())
	m.sessions[session.ID] = session
	m.openByCustomer[customerID] = session.ID
	m.waiting = append(m.waiting, session.ID)
	observability.SessionTransitions.WithLabelValues(string(domain.Requested)).Inc()
	m.log.Debug("Session requested", "session_id", session.ID, "customer_id", customerID)

	assigned = m.drainLocked()
	return session.Snapshot(), nil
}

// AssignAgent explicitly hands a Requested session to an agent, bypassing the queue order.
// The agent does not need to be online but must have capacity left.
func (m *SessionManager) AssignAgent(sessionID domain.ConversationID, agentID domain.UserID) (domain.Session, error) {
	if err := m.requireRole(agentID, domain.RoleAgent); err != nil {
		return domain.Session{}, err
	}

	var assigned []domain.Session
	defer func() { m.notify(assigned) }()
	m.mu.Lock()
	defer m.mu.Unlock()
	session, err := m.getLocked(sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !m.hasCapacityLocked(agentID) {
		return domain.Session{}, fmt.Errorf("%w: %s holds %d sessions", errors.ErrAgentAtCapacity, agentID, m.load[agentID])
	}
	if err := session.Assign(agentID, m.now()); err != nil {
		return domain.Session{}, err
	}
	m.waiting = slices.DeleteFunc(m.waiting, func(id domain.ConversationID) bool { return id == sessionID })
	m.load[agentID]++
	m.lastAssigned = agentID
	m.assigned(session)
	m.updateGauges()
	assigned = []domain.Session{session.Snapshot()}
	return session.Snapshot(), nil
}

// Activate moves an Assigned session to Active when its agent engages.
// It reports whether the state changed.
func (m *SessionManager) Activate(sessionID domain.ConversationID, userID domain.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok || session.State != domain.Assigned || session.Agent() != userID {
		return false
	}
	if err := session.Activate(); err != nil {
		return false
	}
	observability.SessionTransitions.WithLabelValues(string(domain.Active)).Inc()
	m.log.Debug("Session active", "session_id", sessionID, "agent_id", userID)
	return true
}

// CloseSession is idempotent once the session is closed.
// Closing frees agent capacity, which may assign the next waiting session.
func (m *SessionManager) CloseSession(sessionID domain.ConversationID, reason string) (domain.Session, error) {
	var assigned []domain.Session
	defer func() { m.notify(assigned) }()
	m.mu.Lock()
	defer m.mu.Unlock()
	session, err := m.getLocked(sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	previous := session.State
	if !session.Close(reason, m.now()) {
		return session.Snapshot(), nil
	}
	delete(m.openByCustomer, session.CustomerID)
	if previous == domain.Requested {
		m.waiting = slices.DeleteFunc(m.waiting, func(id domain.ConversationID) bool { return id == sessionID })
	} else if agentID := session.Agent(); agentID != "" && m.load[agentID] > 0 {
		m.load[agentID]--
	}
	observability.SessionTransitions.WithLabelValues(string(domain.Closed)).Inc()
	m.log.Debug("Session closed", "session_id", sessionID, "from", previous, "reason", reason)

	assigned = m.drainLocked()
	return session.Snapshot(), nil
}

// AgentOnline adds an agent to the assignment pool.
func (m *SessionManager) AgentOnline(agentID domain.UserID) error {
	if err := m.requireRole(agentID, domain.RoleAgent); err != nil {
		return err
	}
	var assigned []domain.Session
	defer func() { m.notify(assigned) }()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool[agentID] = struct{}{}
	m.log.Debug("Agent available", "agent_id", agentID)
	assigned = m.drainLocked()
	return nil
}

// AgentOffline removes an agent from the pool. Sessions already assigned stay with the agent.
func (m *SessionManager) AgentOffline(agentID domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pool, agentID)
	m.updateGauges()
	m.log.Debug("Agent unavailable", "agent_id", agentID)
}

func (m *SessionManager) Get(sessionID domain.ConversationID) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, err := m.getLocked(sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return session.Snapshot(), nil
}

// OpenFor returns the sessions a user is a party of and that are not closed, oldest first.
func (m *SessionManager) OpenFor(userID domain.UserID) []domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []domain.Session
	for _, session := range m.sessions {
		if session.IsOpen() && session.IsParty(userID) {
			res = append(res, session.Snapshot())
		}
	}
	slices.SortFunc(res, func(a, b domain.Session) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return res
}

// Waiting returns the queue of Requested sessions, head first.
func (m *SessionManager) Waiting() []domain.ConversationID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.waiting)
}

func (m *SessionManager) requireRole(userID domain.UserID, expected domain.Role) error {
	role, err := m.identity.ResolveRole(userID)
	if err != nil {
		return fmt.Errorf("resolving role of %s: %w", userID, err)
	}
	if role != expected {
		return fmt.Errorf("%w: %s is %s, expected %s", errors.ErrWrongRole, userID, role, expected)
	}
	return nil
}

func (m *SessionManager) getLocked(sessionID domain.ConversationID) (*domain.Session, error) {
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrSessionNotFound, sessionID)
	}
	return session, nil
}

// drainLocked assigns waiting sessions while some agent has capacity and returns them.
func (m *SessionManager) drainLocked() []domain.Session {
	defer m.updateGauges()
	var res []domain.Session
	for len(m.waiting) > 0 {
		agentID, ok := m.pickAgentLocked()
		if !ok {
			return res
		}
		sessionID := m.waiting[0]
		m.waiting = m.waiting[1:]
		session := m.sessions[sessionID]
		if err := session.Assign(agentID, m.now()); err != nil {
			m.log.Error("Queued session not assignable", "session_id", sessionID, "error", err)
			continue
		}
		m.load[agentID]++
		m.lastAssigned = agentID
		m.assigned(session)
		res = append(res, session.Snapshot())
	}
	return res
}

// pickAgentLocked selects the available agent with the fewest open sessions.
// Ties rotate in id order, starting after the last agent picked.
func (m *SessionManager) pickAgentLocked() (domain.UserID, bool) {
	candidates := lo.Filter(lo.Keys(m.pool), func(agentID domain.UserID, _ int) bool {
		return m.hasCapacityLocked(agentID)
	})
	if len(candidates) == 0 {
		return "", false
	}
	minLoad := lo.Min(lo.Map(candidates, func(agentID domain.UserID, _ int) int { return m.load[agentID] }))
	ties := lo.Filter(candidates, func(agentID domain.UserID, _ int) bool { return m.load[agentID] == minLoad })
	slices.Sort(ties)
	if next, ok := lo.Find(ties, func(agentID domain.UserID) bool { return agentID > m.lastAssigned }); ok {
		return next, true
	}
	return ties[0], true
}

func (m *SessionManager) hasCapacityLocked(agentID domain.UserID) bool {
	return m.maxPerAgent <= 0 || m.load[agentID] < m.maxPerAgent
}

func (m *SessionManager) notify(assigned []domain.Session) {
	if m.onAssigned == nil {
		return
	}
	for _, session := range assigned {
		m.onAssigned(session)
	}
}

func (m *SessionManager) assigned(session *domain.Session) {
	observability.SessionTransitions.WithLabelValues(string(domain.Assigned)).Inc()
	m.log.Debug("Session assigned", "session_id", session.ID, "agent_id", session.Agent())
}

func (m *SessionManager) updateGauges() {
	observability.WaitingSessions.Set(float64(len(m.waiting)))
	observability.AvailableAgents.Set(float64(len(m.pool)))
}
