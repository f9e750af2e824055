package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type recordingAck struct {
	acked   []uint64
	nacked  []uint64
	requeue bool
}

func (r *recordingAck) Ack(tag uint64, _ bool) error {
	r.acked = append(r.acked, tag)
	return nil
}

func (r *recordingAck) Nack(tag uint64, _ bool, requeue bool) error {
	r.nacked = append(r.nacked, tag)
	r.requeue = requeue
	return nil
}

func (r *recordingAck) Reject(tag uint64, requeue bool) error {
	return r.Nack(tag, false, requeue)
}

func TestDeliverSettlesMessages(t *testing.T) {
	ack := &recordingAck{}
	var seen []string
	c := &Consumer{
		opts: ConsumerOptions{Timeout: time.Second},
		handler: func(ctx context.Context, body []byte) error {
			_, hasDeadline := ctx.Deadline()
			require.True(t, hasDeadline)
			seen = append(seen, string(body))
			if string(body) == "bad" {
				return errors.New("store unavailable")
			}
			return nil
		},
	}

	c.deliver(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("good")})
	c.deliver(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("bad")})

	require.Equal(t, []string{"good", "bad"}, seen)
	require.Equal(t, []uint64{1}, ack.acked)
	require.Equal(t, []uint64{2}, ack.nacked)
	require.True(t, ack.requeue)
}

func TestDeliverOutlivesCancelledConsumer(t *testing.T) {
	ack := &recordingAck{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &Consumer{handler: func(ctx context.Context, _ []byte) error {
		return ctx.Err()
	}}
	c.deliver(ctx, amqp.Delivery{Acknowledger: ack, DeliveryTag: 7})
	require.Equal(t, []uint64{7}, ack.acked)
}
