package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/staylink/verification-service/internal/domain"
)

// Broker carries envelopes from whichever instance produced an event to every
// instance holding sessions.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	Start(ctx context.Context, deliver func(Envelope)) error
	Close() error
}

// LocalBroker delivers in process. It serves single-instance deployments and tests.
type LocalBroker struct {
	mu      sync.RWMutex
	deliver func(Envelope)
}

// NewLocalBroker builds an unstarted broker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{}
}

func (b *LocalBroker) Publish(_ context.Context, env Envelope) error {
	b.mu.RLock()
	deliver := b.deliver
	b.mu.RUnlock()
	if deliver == nil {
		return domain.ErrChannelUnavailable
	}
	deliver(env)
	return nil
}

func (b *LocalBroker) Start(_ context.Context, deliver func(Envelope)) error {
	b.mu.Lock()
	b.deliver = deliver
	b.mu.Unlock()
	return nil
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	b.deliver = nil
	b.mu.Unlock()
	return nil
}

// RedisBroker fans envelopes out over a Redis pub/sub channel.
type RedisBroker struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger

	mu  sync.Mutex
	sub *redis.PubSub
}

// NewRedisBroker wraps client. Start must be called before pushes are received.
func NewRedisBroker(client *redis.Client, channel string, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{client: client, channel: channel, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	return nil
}

// Start subscribes and consumes in a background goroutine until ctx ends or Close is called.
func (b *RedisBroker) Start(ctx context.Context, deliver func(Envelope)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()

	go func() {
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.logger.Warn("discarding malformed push", zap.Error(err))
					continue
				}
				deliver(env)
			}
		}
	}()
	return nil
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return nil
	}
	err := b.sub.Close()
	b.sub = nil
	return err
}
