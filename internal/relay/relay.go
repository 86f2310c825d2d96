// Package relay shares room broadcasts between gateway instances over redis
// pub/sub, so clients connected to different instances still see each other.
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DoyleJ11/codearena/internal/logging"
	"github.com/DoyleJ11/codearena/pkg/types"
)

const Channel = "codearena:rooms"

type message struct {
	Origin   string         `json:"origin"`
	Envelope types.Envelope `json:"envelope"`
}

type Redis struct {
	rdb    *redis.Client
	origin string
	log    *zap.Logger
}

// Connect dials redis and checks it answers.
func Connect(ctx context.Context, addr string, log *zap.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return New(rdb, log), nil
}

func New(rdb *redis.Client, log *zap.Logger) *Redis {
	return &Redis{rdb: rdb, origin: uuid.NewString(), log: logging.OrNop(log)}
}

func (r *Redis) Publish(ctx context.Context, env types.Envelope) error {
	b, err := encode(r.origin, env)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, Channel, b).Err()
}

// Run delivers broadcasts from other instances until ctx ends.
func (r *Redis) Run(ctx context.Context, deliver func(types.Envelope)) error {
	sub := r.rdb.Subscribe(ctx, Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}
	r.log.Info("relay subscribed", zap.String("channel", Channel), zap.String("origin", r.origin))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env, ok, err := decode(r.origin, []byte(msg.Payload))
			if err != nil {
				r.log.Warn("bad relay message", zap.Error(err))
				continue
			}
			if ok {
				deliver(env)
			}
		}
	}
}

func (r *Redis) Close() error { return r.rdb.Close() }

func encode(origin string, env types.Envelope) ([]byte, error) {
	return json.Marshal(message{Origin: origin, Envelope: env})
}

// decode drops our own publications; the local hub already delivered them.
func decode(origin string, payload []byte) (types.Envelope, bool, error) {
	var m message
	if err := json.Unmarshal(payload, &m); err != nil {
		return types.Envelope{}, false, err
	}
	if m.Origin == origin {
		return types.Envelope{}, false, nil
	}
	return m.Envelope, true, nil
}
