package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error
}

// Message is one claimed outbox row ready for delivery.
type Message struct {
	EventID      int64
	EventType    string
	Topic        string
	AggregateID  string
	PartitionKey string
	Payload      []byte
}

// Dispatcher drains the outbox table and delivers streak events to Kafka.
// Rows are claimed with SKIP LOCKED inside a transaction; a delivery failure
// rolls the claim back and the rows are retried on the next poll.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	log              *zap.SugaredLogger
	pollInterval     time.Duration
	batchSize        int
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, logger *zap.SugaredLogger, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		pool:             pool,
		producer:         producer,
		log:              logger,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Errorw("outbox drain failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the dispatcher loop has stopped.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

// Drain delivers pending batches until the outbox is empty. The one-shot
// runner calls this directly after a job run.
func (d *Dispatcher) Drain(ctx context.Context) error {
	for {
		n, err := d.processBatch(ctx)
		if err != nil || n == 0 {
			return err
		}
	}
}

func (d *Dispatcher) processBatch(ctx context.Context) (delivered int, err error) {
	start := time.Now()

	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const query = `SELECT event_id, event_type, topic, aggregate_id, partition_key, payload
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, d.batchSize)
	if err != nil {
		return 0, err
	}

	var messages []Message
	for rows.Next() {
		var m Message
		if err = rows.Scan(&m.EventID, &m.EventType, &m.Topic, &m.AggregateID, &m.PartitionKey, &m.Payload); err != nil {
			rows.Close()
			return 0, err
		}
		messages = append(messages, m)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, tx.Commit(ctx)
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	byTopic := make(map[string][]kafka.Message)
	ids := make([]int64, 0, len(messages))
	for _, m := range messages {
		byTopic[m.Topic] = append(byTopic[m.Topic], buildMessage(m))
		ids = append(ids, m.EventID)
	}

	for topic, batch := range byTopic {
		if err = d.producer.WriteMessages(ctx, topic, batch...); err != nil {
			failedCounter.Add(float64(len(batch)))
			return 0, fmt.Errorf("publish to %s: %w", topic, err)
		}
	}

	if _, err = tx.Exec(ctx, `UPDATE outbox SET published_at = now() WHERE event_id = ANY($1)`, ids); err != nil {
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}

	deliveredCounter.Add(float64(len(messages)))
	return len(messages), nil
}

func buildMessage(m Message) kafka.Message {
	return kafka.Message{
		Key:   []byte(m.PartitionKey),
		Value: m.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(m.EventType)},
			{Key: "aggregate_id", Value: []byte(m.AggregateID)},
		},
	}
}
