package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "aivedha:storage"

// RedisBus fans events out through Redis pub/sub so that separate processes
// of one profile observe each other's writes.
type RedisBus struct {
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	local   *LocalBus
	logger  logging.Logger
	done    chan struct{}
	once    sync.Once
}

// NewRedisBus subscribes to channel and starts the dispatch loop. It returns
// once Redis has confirmed the subscription.
func NewRedisBus(ctx context.Context, client *redis.Client, channel string, logger logging.Logger) (*RedisBus, error) {
	if channel == "" {
		channel = DefaultChannel
	}

	ps := client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	b := &RedisBus{
		client:  client,
		channel: channel,
		pubsub:  ps,
		local:   NewLocalBus(),
		logger:  logger,
		done:    make(chan struct{}),
	}
	go b.dispatch(ps.Channel())
	return b, nil
}

func (b *RedisBus) dispatch(msgs <-chan *redis.Message) {
	defer close(b.done)
	for msg := range msgs {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.logger.Warn(context.Background(), "dropping malformed storage event", "error", err)
			continue
		}
		_ = b.local.Publish(context.Background(), ev)
	}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish storage event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(handler func(Event)) func() {
	return b.local.Subscribe(handler)
}

// Close stops the subscription. The underlying client stays open.
func (b *RedisBus) Close() error {
	var err error
	b.once.Do(func() {
		err = b.pubsub.Close()
		<-b.done
		_ = b.local.Close()
	})
	return err
}
