package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/waveplay/teenpatti-settlement/internal/settlement/job"
	"github.com/waveplay/teenpatti-settlement/pkg/contracts/events"
)

// KafkaPublisher publica os eventos terminais do pipeline: bet_settled
// para jobs encerrados e a DLQ para jobs que esgotaram as tentativas.
type KafkaPublisher struct {
	Settled *kafka.Writer
	DLQ     *kafka.Writer
}

func NewKafkaPublisher(settled, dlq *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{Settled: settled, DLQ: dlq}
}

func (p *KafkaPublisher) PublishBetSettled(ctx context.Context, e events.BetSettled) error {
	e.Ts = time.Now()
	b, _ := json.Marshal(e)
	return p.Settled.WriteMessages(ctx, kafka.Message{Key: []byte(e.BetID), Value: b})
}

func (p *KafkaPublisher) PublishDLQ(ctx context.Context, env *job.Envelope, reason string) error {
	if p.DLQ == nil {
		return nil
	}
	// a credencial do tenant não sai do processo
	clone := *env
	clone.Job.Token = ""
	b, _ := json.Marshal(map[string]any{
		"envelope": &clone,
		"reason":   reason,
	})
	return p.DLQ.WriteMessages(ctx, kafka.Message{Key: []byte(env.Job.BetID), Value: b})
}
