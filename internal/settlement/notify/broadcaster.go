package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	ev "github.com/waveplay/teenpatti-settlement/pkg/contracts/events"
)

// RedisBroadcaster é o Notifier do lado do settlement-worker: publica o
// evento no canal Pub/Sub; o bet-api assina o canal e entrega às sessões.
type RedisBroadcaster struct {
	r       *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisBroadcaster(r *redis.Client, channel string, log *zap.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel, log: log}
}

func (b *RedisBroadcaster) Notify(ctx context.Context, userID, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("notify marshal", zap.String("event", event), zap.Error(err))
		return
	}
	msg, _ := json.Marshal(ev.UserEvent{UserID: userID, Event: event, Payload: raw})

	// fire-and-forget: erro de publicação não interfere no job
	if err := b.r.Publish(ctx, b.channel, msg).Err(); err != nil {
		b.log.Warn("notify publish", zap.String("event", event), zap.Error(err))
	}
}

// StartRedisSubscriber inicia a goroutine no bet-api que escuta o canal de
// notificações e repassa cada UserEvent para as sessões do jogador via Hub.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg := <-ch:
				if msg == nil {
					continue
				}
				var ue ev.UserEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ue); err != nil {
					log.Warn("subscriber unmarshal", zap.Error(err))
					continue
				}
				hub.Notify(ctx, ue.UserID, ue.Event, ue.Payload)
			}
		}
	}()
}
