package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"go.uber.org/zap"

	"github.com/staylink/verification-service/internal/realtime"
)

// MessageConn is the read side of a realtime connection.
type MessageConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

// Dialer opens realtime connections.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (MessageConn, error)
}

// WebsocketDialer dials with fasthttp/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (MessageConn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// stableUptime is how long a silent connection must stay up before it
// restores the retry budget.
const stableUptime = 30 * time.Second

// ChannelOptions configures a Channel.
type ChannelOptions struct {
	URL     string
	Token   string
	Dialer  Dialer
	Backoff Backoff
	Logger  *zap.Logger
}

// Channel keeps a realtime connection open and feeds its pushes into a Store.
// Every successful connect is followed by a full refetch; missed pushes are
// never replayed.
type Channel struct {
	url     string
	token   string
	dialer  Dialer
	store   *Store
	machine *ConnMachine
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time

	mu       sync.Mutex
	onChange []func(ConnState)
}

// NewChannel builds a channel for store.
func NewChannel(store *Store, opts ChannelOptions) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	backoff := opts.Backoff
	if backoff.Base <= 0 {
		backoff = DefaultBackoff
	}
	return &Channel{
		url:     opts.URL,
		token:   opts.Token,
		dialer:  dialer,
		store:   store,
		machine: NewConnMachine(backoff),
		logger:  logger,
		sleep:   sleepContext,
		now:     time.Now,
	}
}

// State returns the connection state.
func (c *Channel) State() ConnState {
	return c.machine.State()
}

// OnStateChange registers fn to be called after each state change.
func (c *Channel) OnStateChange(fn func(ConnState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

func (c *Channel) changed() {
	state := c.machine.State()
	c.mu.Lock()
	handlers := append([]func(ConnState){}, c.onChange...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(state)
	}
}

// Run connects and reads until ctx is cancelled, reconnecting with backoff.
// It returns nil on cancellation and domain.ErrChannelUnavailable once the
// retry budget is spent; the machine is then back in disconnected. The budget
// is only restored by a stable connection: one that delivered a frame or
// stayed up for stableUptime.
func (c *Channel) Run(ctx context.Context) error {
	defer func() {
		c.machine.Stop()
		c.changed()
	}()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	for {
		if err := c.machine.BeginDial(); err != nil {
			return err
		}
		c.changed()

		conn, err := c.dialer.Dial(ctx, c.url, header)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay, budgetErr := c.machine.DialFailed()
			c.changed()
			if budgetErr != nil {
				c.logger.Warn("realtime channel unavailable, falling back to manual refresh", zap.Error(budgetErr))
				return budgetErr
			}
			c.logger.Info("dial failed, backing off",
				zap.Int("attempt", c.machine.Attempts()),
				zap.Duration("delay", delay),
				zap.Error(err))
			if err := c.sleep(ctx, delay); err != nil {
				return nil
			}
			continue
		}

		if err := c.machine.DialSucceeded(); err != nil {
			conn.Close()
			return err
		}
		c.changed()
		c.logger.Info("realtime channel connected", zap.String("url", c.url))

		if err := c.store.RefetchAll(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("resync after connect failed", zap.Error(err))
		}

		connectedAt := c.now()
		readErr := c.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		if c.now().Sub(connectedAt) >= stableUptime {
			_ = c.machine.Stable()
		}

		delay, err := c.machine.Lost()
		if err != nil {
			c.logger.Warn("realtime channel keeps dropping, falling back to manual refresh", zap.Error(err))
			return err
		}
		c.changed()
		c.logger.Info("realtime channel lost, reconnecting", zap.Duration("delay", delay), zap.Error(readErr))
		if err := c.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

func (c *Channel) readLoop(ctx context.Context, conn MessageConn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	stable := false
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if !stable {
			stable = c.machine.Stable() == nil
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var push realtime.Push
		if err := json.Unmarshal(data, &push); err != nil {
			c.logger.Error("malformed push", zap.Error(err))
			continue
		}
		applied, err := c.store.Apply(ctx, push)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrStoreStopped) {
				return err
			}
			c.logger.Error("push rejected",
				zap.String("subject_id", push.SubjectID),
				zap.String("type", string(push.Type)),
				zap.Error(err))
			continue
		}
		if applied {
			c.logger.Debug("push applied",
				zap.String("subject_id", push.SubjectID),
				zap.Int64("sequence", push.Sequence))
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
