package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"virtual_sensors/logger"
)

// HandlerFunc processes one message body. A returned error requeues the message.
type HandlerFunc func(ctx context.Context, body []byte) error

// ConsumerOptions describes where change events come from.
type ConsumerOptions struct {
	Exchange    string
	Queue       string
	BindingKeys []string
	Prefetch    int
	Timeout     time.Duration
}

// Consumer delivers sensor change events to a HandlerFunc.
type Consumer struct {
	channel *amqp.Channel
	opts    ConsumerOptions
	handler HandlerFunc
	wg      sync.WaitGroup
}

// NewConsumer declares the exchange and a durable queue, binds it and sets the prefetch window.
func NewConsumer(conn *amqp.Connection, opts ConsumerOptions, handler HandlerFunc) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}

	if err := declareExchange(ch, opts.Exchange); err != nil {
		ch.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		opts.Queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", opts.Queue, err)
	}

	if opts.Exchange != "" {
		for _, key := range opts.BindingKeys {
			if err := ch.QueueBind(opts.Queue, key, opts.Exchange, false, nil); err != nil {
				ch.Close()
				return nil, fmt.Errorf("failed to bind %s to %s: %w", opts.Queue, key, err)
			}
		}
	}

	if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	return &Consumer{channel: ch, opts: opts, handler: handler}, nil
}

// Start consumes until ctx is done or the channel closes, then waits for
// in-flight messages to be settled.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.opts.Queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", c.opts.Queue, err)
	}
	defer c.wg.Wait()

	logger.Printf("Consuming sensor changes from %s", c.opts.Queue)
	for {
		select {
		case <-ctx.Done():
			logger.Println("Consumer shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("rabbitmq delivery channel closed")
			}
			c.wg.Add(1)
			go func(msg amqp.Delivery) {
				defer c.wg.Done()
				c.deliver(ctx, msg)
			}(msg)
		}
	}
}

// deliver runs the handler on one message and settles it.
func (c *Consumer) deliver(ctx context.Context, msg amqp.Delivery) {
	// in-flight work finishes even when the consumer is stopping
	hctx := context.WithoutCancel(ctx)
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(hctx, c.opts.Timeout)
		defer cancel()
	}

	if err := c.handler(hctx, msg.Body); err != nil {
		logger.Errorf("failed to process message %s: %v", msg.MessageId, err)
		if nerr := msg.Nack(false, true); nerr != nil {
			logger.Errorf("failed to nack message %s: %v", msg.MessageId, nerr)
		}
		return
	}
	if err := msg.Ack(false); err != nil {
		logger.Errorf("failed to ack message %s: %v", msg.MessageId, err)
	}
}

// Close closes the consumer channel.
func (c *Consumer) Close() error {
	return c.channel.Close()
}
