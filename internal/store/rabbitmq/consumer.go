package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// JobHandler processes one refresh job. A returned error dead-letters the delivery.
type JobHandler func(ctx context.Context, jobID string) error

// Delivery is the part of amqp.Delivery the consumer needs.
type Delivery interface {
	Body() []byte
	Ack() error
	Nack() error
}

type amqpDelivery struct{ d amqp.Delivery }

func (a amqpDelivery) Body() []byte { return a.d.Body }
func (a amqpDelivery) Ack() error   { return a.d.Ack(false) }
func (a amqpDelivery) Nack() error  { return a.d.Nack(false, false) }

type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	concurrency int
	logger      *zap.Logger
}

func NewConsumer(url, queue string, concurrency int, logger *zap.Logger) (*Consumer, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declareQueues(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	//  strict concurrency control
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, concurrency: concurrency, logger: logger}, nil
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

// Run consumes until ctx is done or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context, handle JobHandler) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	deliveries := make(chan Delivery)
	go func() {
		defer close(deliveries)
		for d := range msgs {
			select {
			case deliveries <- amqpDelivery{d: d}:
			case <-ctx.Done():
				return
			}
		}
	}()

	err = Serve(ctx, deliveries, c.concurrency, handle, c.logger)
	if ctx.Err() == nil && err == nil {
		return errors.New("delivery channel closed")
	}
	return err
}

// Serve runs concurrency workers over deliveries until the channel closes.
func Serve(ctx context.Context, deliveries <-chan Delivery, concurrency int, handle JobHandler, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		workerID := i
		g.Go(func() error {
			for d := range deliveries {
				process(gctx, workerID, d, handle, logger)
			}
			return nil
		})
	}
	return g.Wait()
}

func process(ctx context.Context, workerID int, d Delivery, handle JobHandler, logger *zap.Logger) {
	var m RefreshMessage
	if err := json.Unmarshal(d.Body(), &m); err != nil || m.JobID == "" {
		logger.Warn("bad refresh message", zap.Int("worker", workerID), zap.Error(err))
		_ = d.Nack()
		return
	}

	start := time.Now()
	if err := handle(ctx, m.JobID); err != nil {
		logger.Warn("refresh job failed",
			zap.Int("worker", workerID), zap.String("job_id", m.JobID),
			zap.Duration("cost", time.Since(start)), zap.Error(err))
		_ = d.Nack()
		return
	}

	if err := d.Ack(); err != nil {
		logger.Warn("ack failed", zap.Int("worker", workerID), zap.String("job_id", m.JobID), zap.Error(err))
	}
}
