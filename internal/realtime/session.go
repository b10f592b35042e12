package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conn is the subset of a websocket connection a session writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is one connected submitter tab. Pushes are queued into a bounded
// buffer and written by a single goroutine (WritePump).
type Session struct {
	ID      string
	OwnerID string

	conn         Conn
	send         chan Push
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *zap.Logger

	// owned by WritePump
	lastSent map[string]int64
}

func newSession(ownerID string, conn Conn, buffer int, writeTimeout, pingInterval time.Duration, logger *zap.Logger) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		conn:         conn,
		send:         make(chan Push, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		logger:       logger,
		lastSent:     make(map[string]int64),
	}
}

// enqueue never blocks. A full buffer means the client cannot keep up; the
// session is closed so the client reconnects and resyncs.
func (s *Session) enqueue(push Push) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- push:
		return true
	default:
		s.logger.Warn("session buffer full, closing",
			zap.String("session_id", s.ID),
			zap.String("owner_id", s.OwnerID))
		s.Close()
		return false
	}
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close stops the writer and closes the connection. Safe to call repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// WritePump drains the send buffer until the session closes. Per subject it
// never writes a sequence lower than one already written.
func (s *Session) WritePump() {
	var ping <-chan time.Time
	if s.pingInterval > 0 {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-s.done:
			return
		case push := <-s.send:
			if push.Sequence < s.lastSent[push.SubjectID] {
				s.logger.Debug("dropping out-of-order push",
					zap.String("session_id", s.ID),
					zap.String("subject_id", push.SubjectID),
					zap.Int64("sequence", push.Sequence),
					zap.Int64("last_sent", s.lastSent[push.SubjectID]))
				continue
			}
			data, err := json.Marshal(push)
			if err != nil {
				s.logger.Error("marshal push", zap.Error(err))
				continue
			}
			if err := s.write(websocket.TextMessage, data); err != nil {
				s.logger.Info("session write failed", zap.String("session_id", s.ID), zap.Error(err))
				s.Close()
				return
			}
			s.lastSent[push.SubjectID] = push.Sequence
		case <-ping:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *Session) write(messageType int, data []byte) error {
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(messageType, data)
}
