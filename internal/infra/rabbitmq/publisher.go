package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

// Publisher serialises publishes on one channel; amqp channels must not be
// shared between goroutines.
type Publisher struct {
	mu       sync.Mutex
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, topology Topology) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := topology.Declare(ch); err != nil {
		ch.Close()
		return nil, err
	}
	return &Publisher{channel: ch, exchange: topology.Exchange}, nil
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg.ContentType = "application/json"
	msg.DeliveryMode = amqp.Persistent
	msg.Timestamp = time.Now().UTC()
	return p.channel.PublishWithContext(ctx, exchange, key, false, false, msg)
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}

type JobPublisher struct {
	pub *Publisher
}

func NewJobPublisher(pub *Publisher) *JobPublisher {
	return &JobPublisher{pub: pub}
}

func (jp *JobPublisher) Dispatch(ctx context.Context, msg entity.KeyframeJobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}
	if err := jp.pub.publish(ctx, jp.pub.exchange, JobsRoutingKey, amqp.Publishing{
		MessageId: msg.JobID.String(),
		Body:      body,
	}); err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

type StatusPublisher struct {
	pub *Publisher
}

func NewStatusPublisher(pub *Publisher) *StatusPublisher {
	return &StatusPublisher{pub: pub}
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	return sp.pub.publish(ctx, sp.pub.exchange, StatusRoutingKey, amqp.Publishing{Body: msg})
}

type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	return dp.pub.publish(ctx, "", dp.queue, amqp.Publishing{
		Body: msg,
		Headers: amqp.Table{
			"x-dlq-reason": reason,
		},
	})
}
