package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/huskyapply/gateway/internal/telemetry"
)

// Sentinel errors for publish handling
var (
	ErrPublisherClosed = errors.New("publisher is closed")
	ErrPublishNacked   = errors.New("broker rejected publish")
)

// Publisher sends job messages through a confirm-mode channel: PublishJob
// does not return until the broker has acknowledged the message or the
// publish timeout expires. Connections are re-established lazily, so a
// broker restart costs one failed publish, which the caller's retry
// absorbs.
type Publisher struct {
	cfg     Config
	log     zerolog.Logger
	metrics *telemetry.Metrics

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// NewPublisher connects to the broker, declares the topology, and puts the
// channel in confirm mode. It fails fast when the broker is unreachable.
func NewPublisher(cfg Config, log zerolog.Logger) (*Publisher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid queue config: %w", err)
	}

	p := &Publisher{
		cfg:     cfg,
		log:     log.With().Str("component", "queue-publisher").Logger(),
		metrics: telemetry.GetMetrics(),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.channelLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// channelLocked returns a live confirm-mode channel, redialing if the
// previous connection died. Callers hold p.mu.
func (p *Publisher) channelLocked() (*amqp.Channel, error) {
	if p.closed {
		return nil, ErrPublisherClosed
	}
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	if err := declareTopology(ch, p.cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	p.conn = conn
	p.ch = ch
	p.log.Info().Str("exchange", p.cfg.Exchange).Str("routing_key", p.cfg.RoutingKey).Msg("Connected to broker")
	return ch, nil
}

// PublishJob publishes a work order with the job id as correlation id and
// waits for the broker confirm. Bodies over the compression threshold are
// zstd-compressed.
func (p *Publisher) PublishJob(ctx context.Context, msg *JobMessage) error {
	start := time.Now()
	p.metrics.QueuePublishTotal.Add(ctx, 1)

	err := p.publish(ctx, msg)
	if err != nil {
		p.metrics.QueuePublishErrorsTotal.Add(ctx, 1)
		return err
	}

	p.metrics.QueuePublishDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	p.log.Debug().
		Str("job_id", msg.JobID).
		Str("model_provider", msg.ModelProvider).
		Dur("took", time.Since(start)).
		Msg("Job message confirmed by broker")
	return nil
}

func (p *Publisher) publish(ctx context.Context, msg *JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	headers := amqp.Table{}
	if msg.TraceID != "" {
		headers[headerTraceID] = msg.TraceID
	}

	encoding := ""
	if p.cfg.CompressMin > 0 && len(body) >= p.cfg.CompressMin {
		headers[headerUncompressedLen] = int64(len(body))
		body = compressBody(body)
		encoding = encodingZstd
	}

	p.mu.Lock()
	ch, err := p.channelLocked()
	p.mu.Unlock()
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.cfg.Exchange, p.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:     "application/json",
		ContentEncoding: encoding,
		DeliveryMode:    amqp.Persistent,
		CorrelationId:   msg.JobID,
		Timestamp:       time.Now().UTC(),
		Headers:         headers,
		Body:            body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", msg.JobID, err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()
	acked, err := confirm.WaitContext(confirmCtx)
	if err != nil {
		return fmt.Errorf("publish confirm for job %s: %w", msg.JobID, err)
	}
	if !acked {
		return fmt.Errorf("%w: job %s", ErrPublishNacked, msg.JobID)
	}
	return nil
}

// Close shuts the connection down. Further publishes fail with
// ErrPublisherClosed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}
