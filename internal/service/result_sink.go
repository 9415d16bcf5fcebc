package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/talentgrid/assessment-backend/internal/config"
	"github.com/talentgrid/assessment-backend/internal/model"
)

// ResultSink receives finalized submissions for persistence or downstream delivery.
type ResultSink interface {
	Publish(ctx context.Context, res model.SubmissionResult) error
}

// RedisQueueSink pushes results onto the queue drained by worker.ResultWorker.
type RedisQueueSink struct {
	rdb *redis.Client
}

// NewRedisQueueSink creates a RedisQueueSink.
func NewRedisQueueSink(rdb *redis.Client) *RedisQueueSink {
	return &RedisQueueSink{rdb: rdb}
}

// Publish implements ResultSink.
func (s *RedisQueueSink) Publish(ctx context.Context, res model.SubmissionResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw).Err()
}

// AMQPChannel is the subset of *amqp.Channel used by AMQPSink.
type AMQPChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes results to a durable RabbitMQ queue for downstream
// consumers such as the recruiter ATS.
type AMQPSink struct {
	ch    AMQPChannel
	queue string
}

// NewAMQPSink declares the queue and returns a sink publishing to it.
func NewAMQPSink(ch AMQPChannel, queue string) (*AMQPSink, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &AMQPSink{ch: ch, queue: queue}, nil
}

// Publish implements ResultSink.
func (s *AMQPSink) Publish(ctx context.Context, res model.SubmissionResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.ch.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    res.SessionID.String(),
		Type:         "exam.submitted",
		Timestamp:    res.CompletedAt,
		Body:         raw,
	})
}

// MultiSink fans a result out to several sinks. Every sink is attempted.
type MultiSink struct {
	sinks []ResultSink
	log   zerolog.Logger
}

// NewMultiSink creates a MultiSink.
func NewMultiSink(log zerolog.Logger, sinks ...ResultSink) *MultiSink {
	return &MultiSink{sinks: sinks, log: log.With().Str("component", "result_sink").Logger()}
}

// Publish implements ResultSink.
func (m *MultiSink) Publish(ctx context.Context, res model.SubmissionResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, res); err != nil {
			m.log.Error().
				Err(err).
				Str("session_id", res.SessionID.String()).
				Str("sink", fmt.Sprintf("%T", s)).
				Msg("Result publish failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// publishTimeout bounds a sink hand-off that runs detached from a request.
const publishTimeout = 5 * time.Second
