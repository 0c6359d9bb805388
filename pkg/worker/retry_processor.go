package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/internal/repository"
	"github.com/pawtrack/pawtrack-api/internal/service/webhook"
	"github.com/pawtrack/pawtrack-api/pkg/event"
	"github.com/pawtrack/pawtrack-api/pkg/logger"
	"github.com/pawtrack/pawtrack-api/pkg/messaging"
	"github.com/pawtrack/pawtrack-api/pkg/metrics"
)

// Deliverer re-executes a webhook delivery attempt. The webhook service
// satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, webhookID uuid.UUID, eventType event.Type, data interface{}, attempt int) *model.DeliveryResult
}

type RetryProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

// RetryProcessor drives scheduled webhook retries. The database is the source
// of truth: due rows are claimed with row locks so multiple workers never
// double-send, and the poll ticker guarantees progress even if every broker
// nudge is lost.
type RetryProcessor struct {
	deliveries repository.DeliveryRepository
	deliverer  Deliverer
	broker     messaging.Broker
	config     RetryProcessorConfig
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewRetryProcessor(
	deliveries repository.DeliveryRepository,
	deliverer Deliverer,
	broker messaging.Broker,
	config RetryProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *RetryProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}

	return &RetryProcessor{
		deliveries: deliveries,
		deliverer:  deliverer,
		broker:     broker,
		config:     config,
		logger:     logger,
		metrics:    metrics,
	}
}

// Start blocks until ctx is cancelled, claiming and re-sending due retries on
// every tick and on every broker nudge.
func (p *RetryProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting webhook retry processor")

	var nudges <-chan []byte
	if p.broker != nil {
		ch, err := p.broker.Subscribe(ctx, webhook.RetryChannel)
		if err != nil {
			p.logger.Error(err, "Failed to subscribe to retry channel, falling back to polling only")
		} else {
			nudges = ch
		}
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down webhook retry processor")
			return
		case <-ticker.C:
			if err := p.processDueRetries(ctx); err != nil {
				p.logger.Error(err, "Failed to process due retries")
			}
		case _, ok := <-nudges:
			if !ok {
				nudges = nil
				continue
			}
			// A nudge only wakes the loop early; claiming still decides what
			// is actually due.
			if err := p.processDueRetries(ctx); err != nil {
				p.logger.Error(err, "Failed to process due retries")
			}
		}
	}
}

func (p *RetryProcessor) processDueRetries(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.RetryPollLatency)
	defer timer.ObserveDuration()

	due, err := p.deliveries.ClaimDueRetries(ctx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("claim_due_retries", "error").Inc()
		return fmt.Errorf("failed to claim due retries: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("claim_due_retries", "success").Inc()

	for _, delivery := range due {
		p.metrics.RetriesClaimed.Inc()
		if err := p.retryDelivery(ctx, delivery); err != nil {
			p.logger.Error(err, "Failed to retry delivery",
				"delivery_id", delivery.ID.String(),
				"webhook_id", delivery.WebhookID.String())
		}
	}

	return nil
}

// retryDelivery re-sends the domain data from a failed attempt as a fresh
// attempt. The new attempt gets its own log row, timestamp, and signature.
func (p *RetryProcessor) retryDelivery(ctx context.Context, delivery *model.WebhookDelivery) error {
	var payload model.WebhookPayload
	if err := json.Unmarshal(delivery.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode stored payload: %w", err)
	}

	attempt := delivery.Attempt + 1
	p.logger.Info("Retrying webhook delivery",
		"delivery_id", delivery.ID.String(),
		"webhook_id", delivery.WebhookID.String(),
		"event_type", delivery.EventType,
		"attempt", attempt)

	result := p.deliverer.Deliver(ctx, delivery.WebhookID, event.Type(delivery.EventType), payload.Data, attempt)
	if !result.Success {
		p.logger.Warn("Webhook retry failed",
			"delivery_id", delivery.ID.String(),
			"attempt", attempt,
			"error", result.Error)
	}
	return nil
}
