package kafka

import (
	"github.com/segmentio/kafka-go"
)

// NewWriter cria o producer de um tópico. Balanceamento LeastBytes e
// auto-criação de tópico para ambiente local.
func NewWriter(brokers string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}
