package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer holds one tuned writer per streak topic. The topic set is
// fixed at construction; the dispatcher only ever routes to these two.
type KafkaProducer struct {
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates writers for the streak event topics. The hash
// balancer keys on the partition key so one user's (or circle's) events stay
// ordered on a single partition, and the short batch timeout suits the job's
// once-a-day burst profile.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	p := &KafkaProducer{writers: make(map[string]*kafka.Writer, 2)}
	for _, topic := range []string{TopicStreakEvents, TopicCircleStreakEvents} {
		p.writers[topic] = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			BatchTimeout: 50 * time.Millisecond,
			Async:        false,
		}
	}
	return p
}

// WriteMessages writes messages to the given topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("no writer for topic %q", topic)
	}
	return writer.WriteMessages(ctx, msgs...)
}

// Close releases all writers.
func (p *KafkaProducer) Close() error {
	var firstErr error
	for _, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
