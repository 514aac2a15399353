package events

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"token-observer/src/interfaces"
	"token-observer/src/logger"
	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// KafkaPublisher
// -----------------------------------------------------------------------------

// KafkaPublisher emits computed metric bundles to the event bus for other
// consumers (alerting, warehousing). Delivery is best-effort and async; the
// aggregation path never blocks on the broker.
type KafkaPublisher struct {
	Writer *kafka.Writer
	Logger *logger.Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

// -----------------------------------------------------------------------------

func NewKafkaPublisher(cfg *models.MConfig, log *logger.Logger) *KafkaPublisher {
	p := &KafkaPublisher{Logger: log}

	p.Writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Events.Brokers...),
		Topic:        cfg.Events.Topic,
		Balancer:     &kafka.LeastBytes{},
		Async:        true,
		BatchTimeout: 100 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				p.failed.Add(uint64(len(messages)))
				p.Logger.Warning("Kafka delivery of %d message(s) failed: %v", len(messages), err)
				return
			}
			p.published.Add(uint64(len(messages)))
		},
	}

	log.Info("Kafka publisher targeting %v topic %s", cfg.Events.Brokers, cfg.Events.Topic)
	return p
}

// -----------------------------------------------------------------------------

// PublishMetrics emits one bundle keyed by mint so all updates for a token
// land on the same partition in order.
func (p *KafkaPublisher) PublishMetrics(ctx context.Context, resp *models.MAggregationResponse) error {
	value, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(resp.Mint),
		Value: value,
		Time:  time.Now(),
	})
}

// -----------------------------------------------------------------------------

// Stats returns delivery counters.
func (p *KafkaPublisher) Stats() (published uint64, failed uint64) {
	return p.published.Load(), p.failed.Load()
}

// -----------------------------------------------------------------------------

func (p *KafkaPublisher) Close() error {
	return p.Writer.Close()
}

// -----------------------------------------------------------------------------
// NoopPublisher
// -----------------------------------------------------------------------------

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishMetrics(ctx context.Context, resp *models.MAggregationResponse) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }

// -----------------------------------------------------------------------------

// NewPublisher selects the Kafka publisher when brokers are configured and
// the no-op otherwise.
func NewPublisher(cfg *models.MConfig, log *logger.Logger) interfaces.IEventPublisher {
	if len(cfg.Events.Brokers) == 0 {
		log.Info("No event brokers configured, publishing disabled")
		return NoopPublisher{}
	}
	return NewKafkaPublisher(cfg, log)
}
