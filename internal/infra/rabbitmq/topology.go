package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	JobsRoutingKey   = "keyframe.jobs"
	StatusRoutingKey = "keyframe.status"
)

type Topology struct {
	Exchange    string
	Queue       string
	DLQ         string
	StatusQueue string
}

// Declare creates the exchange and queues and binds them. It is safe to call
// from both the publishing and the consuming side.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{t.Queue, t.DLQ, t.StatusQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	if err := ch.QueueBind(t.Queue, JobsRoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind jobs queue: %w", err)
	}
	if err := ch.QueueBind(t.StatusQueue, StatusRoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind status queue: %w", err)
	}
	return nil
}
