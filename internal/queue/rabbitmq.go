package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pitchcoach/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeName      = "pitchcoach"
	QueueNameAnalysis = "pitch_analysis"

	// Rejected analysis jobs end up here for inspection.
	DeadLetterExchange = "pitchcoach.dlx"
	QueueNameDead      = "pitch_analysis.dead"

	publishTimeout = 5 * time.Second
)

// ErrReject marks a message that must not be redelivered. Handlers wrap it
// for payloads that can never succeed; the broker dead-letters them.
var ErrReject = errors.New("message rejected")

// Handler processes one message body. A non-nil error requeues the message
// unless it wraps ErrReject.
type Handler func(ctx context.Context, body []byte) error

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("RabbitMQ connected", zap.String("exchange", ExchangeName))

	return &RabbitMQ{conn: conn, channel: ch}, nil
}

type binding struct {
	exchange string
	queue    string
	args     amqp.Table
}

// topology is the durable layout producers and the worker declare on startup.
var topology = []binding{
	{exchange: DeadLetterExchange, queue: QueueNameDead},
	{
		exchange: ExchangeName,
		queue:    QueueNameAnalysis,
		args: amqp.Table{
			"x-dead-letter-exchange":    DeadLetterExchange,
			"x-dead-letter-routing-key": QueueNameDead,
		},
	},
}

func declareTopology(ch *amqp.Channel) error {
	for _, b := range topology {
		if err := ch.ExchangeDeclare(b.exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", b.exchange, err)
		}
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, b.args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.queue, err)
		}
		// routing key equals the queue name
		if err := ch.QueueBind(b.queue, b.queue, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", b.queue, err)
		}
	}
	return nil
}

func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := r.channel.PublishWithContext(ctx, ExchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", routingKey, err)
	}

	logger.Debug("Message published",
		zap.String("routing_key", routingKey),
		zap.Int("size", len(body)))

	return nil
}

// PublishJob publishes an AnalysisJob to the analysis queue.
func (r *RabbitMQ) PublishJob(ctx context.Context, job *AnalysisJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return r.Publish(ctx, QueueNameAnalysis, body)
}

// Consume delivers messages to handler one at a time until ctx is done or
// the channel closes.
func (r *RabbitMQ) Consume(ctx context.Context, queueName string, handler Handler) error {
	if err := r.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := r.channel.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Info("Consuming messages", zap.String("queue", queueName))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Consumer stopped", zap.String("queue", queueName))
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queueName)
			}
			dispatch(ctx, msg, handler)
		}
	}
}

func dispatch(ctx context.Context, msg amqp.Delivery, handler Handler) {
	log := logger.With(zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Bool("redelivered", msg.Redelivered))

	err := handler(ctx, msg.Body)
	switch {
	case err == nil:
		if err := msg.Ack(false); err != nil {
			log.Error("Failed to ack message", zap.Error(err))
		}
	case errors.Is(err, ErrReject):
		log.Error("Dead-lettering message", zap.Error(err))
		if err := msg.Nack(false, false); err != nil {
			log.Error("Failed to reject message", zap.Error(err))
		}
	default:
		log.Warn("Requeueing message", zap.Error(err))
		if err := msg.Nack(false, true); err != nil {
			log.Error("Failed to nack message", zap.Error(err))
		}
	}
}

// Ping fails once the broker connection is gone.
func (r *RabbitMQ) Ping(_ context.Context) error {
	if r.conn == nil || r.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
