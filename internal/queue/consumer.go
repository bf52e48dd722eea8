package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/huskyapply/gateway/internal/models"
)

// StatusHandler ingests worker status events. The consumer acknowledges a
// delivery when the handler returns nil; anything else is dead-lettered.
type StatusHandler interface {
	HandleStatusEvent(ctx context.Context, jobID string, ev *models.StatusEvent) error
}

// StatusConsumer consumes the status reply queue and feeds events into the
// ingestion path. It is the broker-side twin of the internal events
// endpoint: workers can report over either transport. The consumer
// reconnects with exponential backoff until stopped.
type StatusConsumer struct {
	cfg     Config
	log     zerolog.Logger
	handler StatusHandler
	bo      *backoff.ExponentialBackOff

	mu   sync.Mutex
	conn *amqp.Connection

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewStatusConsumer creates a consumer for the configured status queue.
func NewStatusConsumer(cfg Config, handler StatusHandler, log zerolog.Logger) *StatusConsumer {
	cfg.ApplyDefaults()
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 30 * time.Second
	return &StatusConsumer{
		cfg:     cfg,
		log:     log.With().Str("component", "status-consumer").Logger(),
		handler: handler,
		bo:      bo,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the consume loop.
func (c *StatusConsumer) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop ends the consume loop and waits for in-flight handling to finish.
func (c *StatusConsumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	if c.conn != nil && !c.conn.IsClosed() {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *StatusConsumer) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		err := c.consume()
		if err == nil {
			return
		}

		wait := c.bo.NextBackOff()
		c.log.Warn().Err(err).Dur("retry_in", wait).Msg("Status consumer disconnected, will reconnect")
		select {
		case <-time.After(wait):
		case <-c.stopCh:
			return
		}
	}
}

// consume runs one broker session. It returns nil only when stopping.
func (c *StatusConsumer) consume() error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareTopology(ch, c.cfg); err != nil {
		return err
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(c.cfg.StatusQueue, "gateway-status-consumer", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.log.Info().Str("queue", c.cfg.StatusQueue).Msg("Consuming status events")
	c.bo.Reset()

	for {
		select {
		case <-c.stopCh:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(d)
		}
	}
}

// handle processes one delivery. Semantic drops (unknown jobs, stale
// transitions) are the handler's business and still ack; only transport
// and handler failures dead-letter, never requeue, so a poison message
// cannot spin the queue.
func (c *StatusConsumer) handle(d amqp.Delivery) {
	ctx := c.log.WithContext(context.Background())

	jobID := d.CorrelationId
	if jobID == "" {
		c.log.Warn().Msg("Status event without correlation id, dead-lettering")
		_ = d.Nack(false, false)
		return
	}

	body, err := decodeBody(d.Body, d.ContentEncoding)
	if err != nil {
		c.log.Warn().Err(err).Str("job_id", jobID).Msg("Undecodable status event, dead-lettering")
		_ = d.Nack(false, false)
		return
	}

	var ev models.StatusEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.log.Warn().Err(err).Str("job_id", jobID).Msg("Malformed status event, dead-lettering")
		_ = d.Nack(false, false)
		return
	}

	if err := c.handler.HandleStatusEvent(ctx, jobID, &ev); err != nil {
		c.log.Warn().Err(err).Str("job_id", jobID).Msg("Status event handling failed, dead-lettering")
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
