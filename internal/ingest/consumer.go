package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

// Consumer wires RabbitMQ connectivity, queue/DLQ declaration, and a
// bounded worker pool, directly adapted from the teacher's BaseConsumer +
// PushConsumer pair. The ceiling on in-flight messages (§5) is enforced
// by Qos prefetch plus a fixed worker count rather than any application
// buffering.
type Consumer struct {
	conn        *amqp.Connection
	queue       string
	dlq         string
	prefetch    int
	workerCount int
	exchange    string
	routingKey  string

	processor     *Processor
	logger        *slog.Logger
	maxDeliveries int
}

// NewConsumer builds a Consumer over an established AMQP connection.
func NewConsumer(conn *amqp.Connection, queue, dlq string, prefetch, workerCount, maxDeliveries int, processor *Processor, logger *slog.Logger) *Consumer {
	if prefetch <= 0 {
		prefetch = 100
	}
	if workerCount <= 0 {
		workerCount = 10
	}
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &Consumer{
		conn:          conn,
		queue:         queue,
		dlq:           dlq,
		prefetch:      prefetch,
		workerCount:   workerCount,
		exchange:      "notifications.events",
		routingKey:    "event",
		processor:     processor,
		logger:        logger,
		maxDeliveries: maxDeliveries,
	}
}

// Start declares the topology, applies the prefetch ceiling, and runs the
// worker pool until ctx is cancelled. It blocks until every in-flight
// delivery has been acked/nacked, satisfying the shutdown-drain contract
// of §5.
func (c *Consumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := c.setupQueue(ch); err != nil {
		return fmt.Errorf("queue setup failed: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for i := 0; i < c.workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						return
					}
					c.handle(ctx, msg)
				}
			}
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while processing message", slog.Any("panic", r))
			_ = msg.Nack(false, deliveryAttempts(&msg) < c.maxDeliveries)
		}
	}()

	err := c.processor.Process(ctx, msg.Body)
	if err == nil {
		_ = msg.Ack(false)
		return
	}

	if IsPermanent(err) {
		c.logger.Error("message permanently rejected, dead-lettering", slog.Any("error", err))
		_ = msg.Nack(false, false)
		return
	}

	requeue := deliveryAttempts(&msg) < c.maxDeliveries
	if requeue {
		c.logger.Warn("message processing failed, requeueing", slog.Any("error", err))
	} else {
		c.logger.Error("message exceeded max delivery attempts, dead-lettering", slog.Any("error", err))
	}
	_ = msg.Nack(false, requeue)
}

func (c *Consumer) setupQueue(ch *amqp.Channel) error {
	args := amqp.Table{}
	if c.dlq != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = c.dlq
	}

	if err := ch.ExchangeDeclare(c.exchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, args); err != nil {
		return err
	}
	if err := ch.QueueBind(c.queue, c.routingKey, c.exchange, false, nil); err != nil {
		return err
	}
	if c.dlq != "" {
		if _, err := ch.QueueDeclare(c.dlq, true, false, false, false, nil); err != nil {
			return err
		}
	}
	return nil
}

func deliveryAttempts(msg *amqp.Delivery) int {
	if msg.Headers == nil {
		if msg.Redelivered {
			return 1
		}
		return 0
	}
	if raw, ok := msg.Headers["x-death"]; ok {
		if deaths, ok := raw.([]interface{}); ok && len(deaths) > 0 {
			if table, ok := deaths[0].(amqp.Table); ok {
				if count, ok := table["count"].(int64); ok {
					return int(count)
				}
			}
		}
	}
	if msg.Redelivered {
		return 1
	}
	return 0
}
