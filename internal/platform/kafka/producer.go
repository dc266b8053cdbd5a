package kafka

import (
	"context"
	"strings"
	"time"

	"github.com/benningd54/Anlab/internal/platform/log"
	k "github.com/segmentio/kafka-go"
)

// Producer publishes order notification envelopes to the notifications
// topic. Delivery retries are handled by the outbox relay, not here.
type Producer struct {
	writer *k.Writer
	log    *log.Logger
}

func NewProducer(brokersCSV, topic string, logger *log.Logger) *Producer {
	brokers := strings.Split(brokersCSV, ",")

	return &Producer{
		writer: &k.Writer{
			Addr:         k.TCP(brokers...),
			Topic:        topic,
			Balancer:     &k.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: k.RequireOne,
		},
		log: logger,
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	return p.writer.WriteMessages(
		ctx,
		k.Message{
			Key:   []byte(key),
			Value: value,
		},
	)
}
