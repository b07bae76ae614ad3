// Package session holds the process-wide registry of connections, sessions,
// bots and the matchmaking queue. One mutex guards the whole structure; every
// exported operation is linearizable with respect to it.
package session

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lab1702/tank2d-server/metrics"
	"github.com/lab1702/tank2d-server/protocol"
)

// InputState is the latest input snapshot applied for a session.
type InputState struct {
	MoveDir        float32
	TurnDir        float32
	TurretTurn     float32
	Fire           bool
	Brake          bool
	LastClientTick uint32
}

// Session represents one player or bot. All fields are guarded by the
// Manager mutex; read them through Manager accessors outside the registry.
type Session struct {
	ConnectionID  string
	SessionID     string
	Authenticated bool
	InQueue       bool
	IsBot         bool
	TankEntityID  uint32
	QueueJoinTime time.Time
	LastHeartbeat time.Time

	input    InputState
	outgoing []protocol.ServerMessage

	// Conn is nil for bots. The connection worker owns reads and writes;
	// the registry only closes it on disconnect.
	Conn net.Conn
}

// Manager is the registry.
type Manager struct {
	mu          sync.Mutex
	log         *zap.SugaredLogger
	connCounter uint64
	botCounter  uint64
	byConn      map[string]*Session
	bySession   map[string]*Session
	queue       []*Session
}

// NewManager creates an empty registry.
func NewManager(log *zap.SugaredLogger) *Manager {
	return &Manager{
		log:       log,
		byConn:    make(map[string]*Session),
		bySession: make(map[string]*Session),
	}
}

// AddConnection registers a fresh transport under a new connection id.
func (m *Manager) AddConnection(conn net.Conn) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connCounter++
	s := &Session{
		ConnectionID: fmt.Sprintf("conn_%d", m.connCounter),
		Conn:         conn,
	}
	m.byConn[s.ConnectionID] = s
	return s
}

// Authenticate marks the session authenticated under sessionID, stamps the
// heartbeat and indexes it. A repeated call overwrites the prior session id
// for the same connection.
func (m *Manager) Authenticate(s *Session, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.SessionID != "" && s.SessionID != sessionID {
		delete(m.bySession, s.SessionID)
	}
	firstAuth := !s.Authenticated
	s.Authenticated = true
	s.SessionID = sessionID
	s.LastHeartbeat = time.Now()
	m.bySession[sessionID] = s
	if firstAuth && !s.IsBot {
		metrics.ConnectedPlayers.Inc()
	}
}

// Enqueue appends the session to the matchmaking queue. Idempotent when the
// session is already queued.
func (m *Manager) Enqueue(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.InQueue {
		return
	}
	s.InQueue = true
	s.QueueJoinTime = time.Now()
	m.queue = append(m.queue, s)
}

// SnapshotQueue returns an independent copy of the queue in FIFO order.
func (m *Manager) SnapshotQueue() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, len(m.queue))
	copy(out, m.queue)
	return out
}

// PopFromQueue removes the given sessions from the queue in one step.
func (m *Manager) PopFromQueue(sessions []*Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[*Session]struct{}, len(sessions))
	for _, s := range sessions {
		drop[s] = struct{}{}
		s.InQueue = false
	}
	kept := m.queue[:0]
	for _, s := range m.queue {
		if _, gone := drop[s]; !gone {
			kept = append(kept, s)
		}
	}
	m.queue = kept
}

// PushMessage appends to the session's outbound mailbox. Bots never receive
// messages, so pushes to them are dropped.
func (m *Manager) PushMessage(s *Session, msg protocol.ServerMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.IsBot {
		return
	}
	s.outgoing = append(s.outgoing, msg)
}

// DrainMessages moves the mailbox contents out, preserving FIFO order.
func (m *Manager) DrainMessages(s *Session) []protocol.ServerMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := s.outgoing
	s.outgoing = nil
	return out
}

// UpdateHeartbeat stamps the session's last heartbeat with the current time.
func (m *Manager) UpdateHeartbeat(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.LastHeartbeat = time.Now()
}

// UpdateInput applies an input command unless its client tick is older than
// the last applied one.
func (m *Manager) UpdateInput(s *Session, cmd *protocol.InputCommand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cmd.ClientTick < s.input.LastClientTick {
		return
	}
	s.input = InputState{
		MoveDir:        cmd.MoveDir,
		TurnDir:        cmd.TurnDir,
		TurretTurn:     cmd.TurretTurn,
		Fire:           cmd.Fire,
		Brake:          cmd.Brake,
		LastClientTick: cmd.ClientTick,
	}
}

// InputCopy returns the session's current input snapshot.
func (m *Manager) InputCopy(s *Session) InputState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return s.input
}

// SnapshotAllSessions returns every authenticated session.
func (m *Manager) SnapshotAllSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.bySession))
	for _, s := range m.bySession {
		out = append(out, s)
	}
	return out
}

// Lookup returns the session indexed under sessionID, or nil.
func (m *Manager) Lookup(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bySession[sessionID]
}

// IsAuthenticated reads the session's authenticated flag under the registry
// lock.
func (m *Manager) IsAuthenticated(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return s.Authenticated
}

// CurrentSessionID reads the session id under the registry lock.
func (m *Manager) CurrentSessionID(s *Session) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return s.SessionID
}

// IdleSessions returns sessions whose last heartbeat is non-zero and older
// than timeout.
func (m *Manager) IdleSessions(timeout time.Duration) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var idle []*Session
	for _, s := range m.bySession {
		if s.LastHeartbeat.IsZero() {
			continue
		}
		if now.Sub(s.LastHeartbeat) > timeout {
			idle = append(idle, s)
		}
	}
	return idle
}

// DisconnectSession removes the session from the queue and both indexes and
// closes its transport. Idempotent.
func (m *Manager) DisconnectSession(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.InQueue {
		for i, q := range m.queue {
			if q == s {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				break
			}
		}
		s.InQueue = false
	}
	removed := false
	if s.SessionID != "" {
		if _, ok := m.bySession[s.SessionID]; ok {
			delete(m.bySession, s.SessionID)
			removed = true
		}
	}
	if s.ConnectionID != "" {
		delete(m.byConn, s.ConnectionID)
	}
	if removed && !s.IsBot && s.Authenticated {
		metrics.ConnectedPlayers.Dec()
	}
	if s.Conn != nil {
		_ = s.Conn.Close()
	}
}

// CreateBots creates and enqueues count bot sessions.
func (m *Manager) CreateBots(count int) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := make([]*Session, 0, count)
	now := time.Now()
	for i := 0; i < count; i++ {
		m.botCounter++
		s := &Session{
			SessionID:     fmt.Sprintf("bot_%d", m.botCounter),
			IsBot:         true,
			Authenticated: true,
			InQueue:       true,
			QueueJoinTime: now,
			LastHeartbeat: now,
		}
		m.queue = append(m.queue, s)
		m.bySession[s.SessionID] = s
		created = append(created, s)
	}
	if count > 0 && m.log != nil {
		m.log.Infow("bots created", "count", count, "queue", len(m.queue))
	}
	return created
}

// SetBotInput overwrites a bot's input snapshot. No-op for real players.
func (m *Manager) SetBotInput(s *Session, in InputState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !s.IsBot {
		return
	}
	s.input = in
}

// ClearBotFire resets a bot's fire flag after a shot was taken.
func (m *Manager) ClearBotFire(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !s.IsBot {
		return
	}
	s.input.Fire = false
}
