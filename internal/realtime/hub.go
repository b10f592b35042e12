package realtime

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/staylink/verification-service/internal/observability"
)

// HubOptions tunes new sessions.
type HubOptions struct {
	SessionBuffer int
	WriteTimeout  time.Duration
	PingInterval  time.Duration
}

// Hub tracks live sessions per submitter and fans pushes out to them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
	opts     HubOptions
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewHub builds an empty hub.
func NewHub(opts HubOptions, logger *zap.Logger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]map[*Session]struct{}),
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
}

// Register attaches conn as a new session for ownerID. The caller runs
// session.WritePump and calls Unregister when the connection ends.
func (h *Hub) Register(ownerID string, conn Conn) *Session {
	session := newSession(ownerID, conn, h.opts.SessionBuffer, h.opts.WriteTimeout, h.opts.PingInterval, h.logger)
	h.mu.Lock()
	if h.sessions[ownerID] == nil {
		h.sessions[ownerID] = make(map[*Session]struct{})
	}
	h.sessions[ownerID][session] = struct{}{}
	h.mu.Unlock()

	h.metrics.SessionOpened()
	h.logger.Info("realtime session opened", zap.String("session_id", session.ID), zap.String("owner_id", ownerID))
	return session
}

// Unregister detaches and closes session.
func (h *Hub) Unregister(session *Session) {
	h.mu.Lock()
	owned, ok := h.sessions[session.OwnerID]
	_, present := owned[session]
	if ok && present {
		delete(owned, session)
		if len(owned) == 0 {
			delete(h.sessions, session.OwnerID)
		}
	}
	h.mu.Unlock()

	session.Close()
	if present {
		h.metrics.SessionClosed()
		h.logger.Info("realtime session closed", zap.String("session_id", session.ID), zap.String("owner_id", session.OwnerID))
	}
}

// Deliver queues env.Push on every session of env.OwnerID without blocking and
// returns how many sessions accepted it.
func (h *Hub) Deliver(env Envelope) int {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions[env.OwnerID]))
	for session := range h.sessions[env.OwnerID] {
		targets = append(targets, session)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, session := range targets {
		if session.enqueue(env.Push) {
			delivered++
		}
	}
	h.metrics.RecordPush(delivered > 0)
	return delivered
}

// SessionCount reports live sessions for ownerID.
func (h *Hub) SessionCount(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[ownerID])
}
