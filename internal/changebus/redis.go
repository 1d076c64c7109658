// Package changebus shares change notifications between server instances over Redis
// pub/sub, so a client connected to any instance sees writes made through every other.
package changebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceskapp/directory/internal/domain"
	"github.com/ceskapp/directory/internal/sse"
	"github.com/ceskapp/directory/internal/store"
)

const publishTimeout = 3 * time.Second

// message is the wire format on the channel.
type message struct {
	Origin string        `json:"origin"`
	Change domain.Change `json:"change"`
}

// RedisBus is a store.EventEmitter that publishes to Redis, and a subscriber that
// forwards every published change to the local emitter (normally the SSE manager).
// Changes reach local clients only through Redis, so each instance sees each change once.
type RedisBus struct {
	client  *redis.Client
	channel string
	origin  string
	local   store.EventEmitter
	logger  *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

var _ store.EventEmitter = (*RedisBus)(nil)

// NewRedisBus connects to Redis at addr.
func NewRedisBus(ctx context.Context, addr, password, channel, origin string, local store.EventEmitter, logger *slog.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return NewRedisBusFromClient(client, channel, origin, local, logger), nil
}

// NewRedisBusFromClient wraps an existing client. The bus owns it from now on.
func NewRedisBusFromClient(client *redis.Client, channel, origin string, local store.EventEmitter, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client:  client,
		channel: channel,
		origin:  origin,
		local:   local,
		logger:  logger.With(slog.String("channel", channel)),
	}
}

// Emit publishes a change. If Redis is unavailable the change is delivered locally
// so this instance's clients still see it.
func (b *RedisBus) Emit(event any) {
	change, ok := changeOf(event)
	if !ok {
		b.local.Emit(event)
		return
	}

	data, err := json.Marshal(message{Origin: b.origin, Change: change})
	if err != nil {
		b.logger.Error("encode change", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Warn("publish change failed, delivering locally only",
			slog.String("resource", string(change.Resource)),
			slog.String("error", err.Error()))
		b.local.Emit(sse.NewChangeEvent(change))
	}
}

func changeOf(event any) (domain.Change, bool) {
	switch e := event.(type) {
	case domain.Change:
		return e, true
	case sse.Event:
		c, ok := e.Data.(domain.Change)
		return c, ok && e.Type == sse.EventResourceChanged
	default:
		return domain.Change{}, false
	}
}

// Start subscribes and begins forwarding. It returns once the subscription is live.
func (b *RedisBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return errors.New("change bus already started")
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}
	b.pubsub = pubsub
	b.done = make(chan struct{})

	go b.forward(ctx, pubsub.Channel(), b.done)
	b.logger.Info("change bus subscribed")
	return nil
}

func (b *RedisBus) forward(ctx context.Context, ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var m message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.logger.Warn("malformed bus message", slog.String("error", err.Error()))
				continue
			}
			if _, err := domain.ParseResource(string(m.Change.Resource)); err != nil {
				b.logger.Warn("bus message for unknown resource", slog.String("resource", string(m.Change.Resource)))
				continue
			}
			b.local.Emit(sse.NewChangeEvent(m.Change))
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown stops forwarding and closes the Redis connection.
func (b *RedisBus) Shutdown() error {
	b.mu.Lock()
	pubsub, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()

	var errs []error
	if pubsub != nil {
		errs = append(errs, pubsub.Close())
		<-done
	}
	errs = append(errs, b.client.Close())
	return errors.Join(errs...)
}
