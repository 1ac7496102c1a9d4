// Package redisbroadcast implements storage.EventBus over Redis Pub/Sub.
// It is grounded on two teacher shapes: the JSON envelope and
// publish/ack-less style of transport/cqrs/infrastructure's
// RedisEventBus, and the self-origin filtering trick from
// luvjson/crdtsync/redis_streams_broadcaster.go (a message's own
// publisher tags it with a session id so it can skip re-delivering its
// own writes back to itself). Pub/Sub rather than Streams: a dropped
// notification here just means a client falls back to its own
// getChangesSince poll, so Streams' durability and consumer groups would
// be paying for a guarantee nothing downstream needs.
package redisbroadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/storage"
)

// Options configures the Bus's channel name and diagnostics.
type Options struct {
	// Channel is the Redis Pub/Sub channel all instances share. Empty
	// uses "syncdoc:doc-updates".
	Channel string

	// Logger receives structured diagnostics; nil uses zap.NewNop().
	Logger *zap.Logger
}

func (o Options) channel() string {
	if o.Channel == "" {
		return "syncdoc:doc-updates"
	}
	return o.Channel
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// message is the wire envelope published to the shared channel.
type message struct {
	DocID    string          `json:"docId"`
	Changes  []common.Change `json:"changes"`
	OriginID string          `json:"originId"`
}

// Bus is a storage.EventBus backed by a *redis.Client's Pub/Sub.
type Bus struct {
	client *redis.Client
	opts   Options
}

// New wraps client as a storage.EventBus.
func New(client *redis.Client, opts Options) *Bus {
	return &Bus{client: client, opts: opts}
}

func (b *Bus) Publish(ctx context.Context, docID string, changes []common.Change, originatingClientID string) error {
	data, err := json.Marshal(message{DocID: docID, Changes: changes, OriginID: originatingClientID})
	if err != nil {
		return fmt.Errorf("redisbroadcast: encode: %w", err)
	}
	if err := b.client.Publish(ctx, b.opts.channel(), data).Err(); err != nil {
		return fmt.Errorf("redisbroadcast: publish: %w", err)
	}
	return nil
}

// Subscribe blocks, delivering every message received on the shared
// channel to handler, until ctx is canceled or the subscription errs.
func (b *Bus) Subscribe(ctx context.Context, handler func(docID string, changes []common.Change, originatingClientID string)) error {
	log := b.opts.logger()
	sub := b.client.Subscribe(ctx, b.opts.channel())
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				log.Warn("redisbroadcast: dropping malformed message", zap.Error(err))
				continue
			}
			handler(m.DocID, m.Changes, m.OriginID)
		}
	}
}

var _ storage.EventBus = (*Bus)(nil)
