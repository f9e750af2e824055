// Package broker connects the pipeline to RabbitMQ: sensor change events are
// consumed from a queue bound to the sensors exchange and computed readings
// are published to the readings exchange with publisher confirms.
package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Dial opens a connection to the broker.
func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return conn, nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	if name == "" {
		return nil
	}
	if err := ch.ExchangeDeclare(
		name,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	return nil
}
