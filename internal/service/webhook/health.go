package webhook

import (
	"context"

	"github.com/google/uuid"

	"github.com/pawtrack/pawtrack-api/internal/email"
	"github.com/pawtrack/pawtrack-api/internal/repository"
	"github.com/pawtrack/pawtrack-api/pkg/logger"
	"github.com/pawtrack/pawtrack-api/pkg/metrics"
)

// DefaultFailureThreshold is the consecutive-failure count at which an
// endpoint is automatically disabled.
const DefaultFailureThreshold = 10

// HealthChecker disables endpoints whose consecutive delivery failures cross
// the threshold, so a permanently broken destination stops consuming retry
// capacity. Re-enabling is always an explicit tenant action.
type HealthChecker struct {
	endpoints  repository.WebhookRepository
	threshold  int
	emails     email.Service
	alertEmail string
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewHealthChecker(
	endpoints repository.WebhookRepository,
	threshold int,
	emails email.Service,
	alertEmail string,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *HealthChecker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if emails == nil {
		emails = email.NoopService{}
	}
	return &HealthChecker{
		endpoints:  endpoints,
		threshold:  threshold,
		emails:     emails,
		alertEmail: alertEmail,
		logger:     logger,
		metrics:    metrics,
	}
}

// Threshold returns the configured consecutive-failure threshold.
func (h *HealthChecker) Threshold() int {
	return h.threshold
}

// CheckAndDisable flips the endpoint inactive when its failure streak has
// reached the threshold. failures is the streak the caller observed, normally
// the count returned by the atomic increment that recorded the failure, so
// a still-healthy endpoint costs no extra read. It reports whether this call
// disabled the endpoint; a missing or already-inactive endpoint is a no-op.
func (h *HealthChecker) CheckAndDisable(ctx context.Context, webhookID uuid.UUID, failures int) (bool, error) {
	if failures < h.threshold {
		return false, nil
	}

	endpoint, err := h.endpoints.Get(ctx, webhookID)
	if err != nil {
		return false, err
	}
	if endpoint == nil || !endpoint.IsActive {
		return false, nil
	}

	disabled, err := h.endpoints.Deactivate(ctx, webhookID)
	if err != nil {
		return false, err
	}
	if !disabled {
		// Another delivery attempt won the race and already disabled it.
		return false, nil
	}

	h.metrics.WebhookEndpointsDisabled.Inc()
	h.logger.Warn("webhook endpoint auto-disabled after repeated failures",
		"webhook_id", webhookID.String(),
		"name", endpoint.Name,
		"consecutive_failures", failures,
		"threshold", h.threshold)

	if h.alertEmail != "" {
		if err := h.emails.SendWebhookDisabledAlert(ctx, h.alertEmail, endpoint.Name, webhookID.String()); err != nil {
			h.logger.Error(err, "failed to send webhook disabled alert", "webhook_id", webhookID.String())
		}
	}

	return true, nil
}
