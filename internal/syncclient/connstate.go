package syncclient

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/staylink/verification-service/internal/domain"
)

// ConnState is the lifecycle state of the realtime channel.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateBackingOff   ConnState = "backing_off"
)

// ErrIllegalConnTransition is returned for a lifecycle step that is not
// allowed from the current state.
var ErrIllegalConnTransition = errors.New("illegal connection state transition")

// ConnMachine tracks channel state and the retry budget. Every method is one
// named transition; anything else is rejected.
type ConnMachine struct {
	mu       sync.Mutex
	state    ConnState
	attempts int
	backoff  Backoff
}

// NewConnMachine starts disconnected.
func NewConnMachine(backoff Backoff) *ConnMachine {
	return &ConnMachine{state: StateDisconnected, backoff: backoff}
}

// State returns the current state.
func (m *ConnMachine) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns dial attempts made since a connection last proved stable.
func (m *ConnMachine) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// BeginDial moves disconnected or backing_off to connecting.
func (m *ConnMachine) BeginDial() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateDisconnected && m.state != StateBackingOff {
		return m.illegal("dial")
	}
	m.state = StateConnecting
	m.attempts++
	return nil
}

// DialSucceeded moves connecting to connected. The retry budget is kept until
// Stable is called, so a server that accepts and immediately drops still
// exhausts it.
func (m *ConnMachine) DialSucceeded() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnecting {
		return m.illegal("connected")
	}
	m.state = StateConnected
	return nil
}

// Stable resets the retry budget of a connected channel.
func (m *ConnMachine) Stable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return m.illegal("stable")
	}
	m.attempts = 0
	return nil
}

// DialFailed moves connecting to backing_off and returns the wait before the
// next attempt. Once the budget is spent it moves to disconnected and returns
// domain.ErrChannelUnavailable.
func (m *ConnMachine) DialFailed() (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnecting {
		return 0, m.illegal("dial failed")
	}
	return m.retry()
}

// Lost moves connected to backing_off after the connection dropped. A
// connection that never became stable counts against the budget like a
// failed dial.
func (m *ConnMachine) Lost() (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return 0, m.illegal("lost")
	}
	return m.retry()
}

// retry is called with m.mu held. Retry n waits Delay(n).
func (m *ConnMachine) retry() (time.Duration, error) {
	if m.backoff.MaxAttempts > 0 && m.attempts >= m.backoff.MaxAttempts {
		m.state = StateDisconnected
		m.attempts = 0
		return 0, fmt.Errorf("%w: gave up after %d attempts", domain.ErrChannelUnavailable, m.backoff.MaxAttempts)
	}
	m.state = StateBackingOff
	if m.attempts == 0 {
		return m.backoff.Delay(1), nil
	}
	return m.backoff.Delay(m.attempts), nil
}

// Stop moves any state to disconnected.
func (m *ConnMachine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateDisconnected
	m.attempts = 0
}

func (m *ConnMachine) illegal(step string) error {
	return fmt.Errorf("%w: %s from %s", ErrIllegalConnTransition, step, m.state)
}
