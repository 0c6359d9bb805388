// Package webhook implements the outbound webhook delivery engine: it turns
// domain events into signed, retried HTTP deliveries with a per-attempt audit
// trail, and auto-disables endpoints that keep failing.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/internal/repository"
	"github.com/pawtrack/pawtrack-api/pkg/event"
	"github.com/pawtrack/pawtrack-api/pkg/logger"
	"github.com/pawtrack/pawtrack-api/pkg/messaging"
	"github.com/pawtrack/pawtrack-api/pkg/metrics"
	"github.com/pawtrack/pawtrack-api/pkg/signature"
)

const (
	userAgent = "Pawtrack-Webhooks/1.0"

	headerSignature  = "X-Pawtrack-Signature"
	headerEvent      = "X-Pawtrack-Event"
	headerDeliveryID = "X-Pawtrack-Delivery-Id"

	// maxResponseBodyChars caps the stored response body per attempt.
	maxResponseBodyChars = 10000
	truncationMarker     = "... (truncated)"

	// MaxAttempts is the total size of the retry ladder.
	MaxAttempts = 4

	// RetryChannel carries wake-up nudges to the retry worker.
	RetryChannel = "webhook:retry"

	errWebhookNotFound = "Webhook not found"
	errWebhookDisabled = "Webhook is disabled"
	errRequestTimedOut = "Request timed out"
)

// retrySchedule[n-1] is the delay before attempt n fires.
var retrySchedule = [MaxAttempts]time.Duration{0, time.Minute, 5 * time.Minute, 30 * time.Minute}

// RetryDelay returns the backoff before the given attempt number, and false
// for attempt numbers past the end of the ladder.
func RetryDelay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > MaxAttempts {
		return 0, false
	}
	return retrySchedule[attempt-1], true
}

// HTTPClient is the delivery transport. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config tunes the delivery engine.
type Config struct {
	Timeout           time.Duration
	DispatchQueueSize int
	DispatchWorkers   int
	EndpointCacheTTL  time.Duration
}

type deliveryJob struct {
	webhookID uuid.UUID
	eventType event.Type
	data      interface{}
}

// Service is the webhook delivery engine. All external collaborators (HTTP
// client, clock, id source, persistence, broker) are injected so tests can
// substitute them.
type Service struct {
	endpoints  repository.WebhookRepository
	deliveries repository.DeliveryRepository
	health     *HealthChecker
	broker     messaging.Broker
	cache      *gocache.Cache
	logger     *logger.Logger
	metrics    *metrics.Metrics
	cfg        Config

	client HTTPClient
	now    func() time.Time
	newID  func() uuid.UUID

	jobs chan deliveryJob
	wg   sync.WaitGroup
}

func NewService(
	endpoints repository.WebhookRepository,
	deliveries repository.DeliveryRepository,
	health *HealthChecker,
	broker messaging.Broker,
	cfg Config,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.DispatchQueueSize <= 0 {
		cfg.DispatchQueueSize = 256
	}
	if cfg.DispatchWorkers <= 0 {
		cfg.DispatchWorkers = 8
	}
	if cfg.EndpointCacheTTL <= 0 {
		cfg.EndpointCacheTTL = 30 * time.Second
	}

	return &Service{
		endpoints:  endpoints,
		deliveries: deliveries,
		health:     health,
		broker:     broker,
		cache:      gocache.New(cfg.EndpointCacheTTL, 2*cfg.EndpointCacheTTL),
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		newID:      uuid.New,
		jobs:       make(chan deliveryJob, cfg.DispatchQueueSize),
	}
}

// Start launches the dispatch workers that drain the delivery queue.
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.cfg.DispatchWorkers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-s.jobs:
					s.metrics.WebhookQueueDepth.Set(float64(len(s.jobs)))
					s.Deliver(ctx, job.webhookID, job.eventType, job.data, 1)
				}
			}
		}()
	}
}

// Stop waits for in-flight dispatch workers to finish.
func (s *Service) Stop() {
	s.wg.Wait()
}

// TriggerEvent is the entry point called by domain code after a business
// mutation. It is best-effort by contract: an unknown event type, a lookup
// failure, or a full queue is logged and absorbed, never surfaced to the
// caller, and the HTTP deliveries themselves happen asynchronously.
func (s *Service) TriggerEvent(ctx context.Context, organizationID uuid.UUID, eventType event.Type, data interface{}) {
	if !event.IsValid(string(eventType)) {
		s.logger.Warn("ignoring trigger for unknown webhook event",
			"event_type", string(eventType), "organization_id", organizationID.String())
		return
	}

	endpoints, err := s.subscribedEndpoints(ctx, organizationID, eventType)
	if err != nil {
		s.logger.Error(err, "failed to look up webhook endpoints",
			"event_type", string(eventType), "organization_id", organizationID.String())
		return
	}
	if len(endpoints) == 0 {
		return
	}

	for _, ep := range endpoints {
		job := deliveryJob{webhookID: ep.ID, eventType: eventType, data: data}
		select {
		case s.jobs <- job:
			s.metrics.WebhookQueueDepth.Set(float64(len(s.jobs)))
		default:
			// Queue saturated. Degrade to a detached goroutine rather than
			// block the business transaction or drop the delivery.
			s.logger.Warn("webhook dispatch queue full, delivering out of band",
				"webhook_id", job.webhookID.String())
			go s.Deliver(context.WithoutCancel(ctx), job.webhookID, job.eventType, job.data, 1)
		}
	}
}

func (s *Service) subscribedEndpoints(ctx context.Context, organizationID uuid.UUID, eventType event.Type) ([]*model.WebhookEndpoint, error) {
	key := organizationID.String() + "|" + string(eventType)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]*model.WebhookEndpoint), nil
	}

	endpoints, err := s.endpoints.ListActiveSubscribed(ctx, organizationID, string(eventType))
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, endpoints)
	return endpoints, nil
}

// invalidateOrganization drops all cached endpoint lists for a tenant after
// a configuration change.
func (s *Service) invalidateOrganization(organizationID uuid.UUID) {
	prefix := organizationID.String() + "|"
	for key := range s.cache.Items() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			s.cache.Delete(key)
		}
	}
}

// Deliver performs one delivery attempt against an endpoint and returns a
// structured result. It never returns an error: configuration problems,
// transport failures, and persistence failures all land in the result and
// the audit log.
func (s *Service) Deliver(ctx context.Context, webhookID uuid.UUID, eventType event.Type, data interface{}, attempt int) *model.DeliveryResult {
	return s.deliver(ctx, webhookID, eventType, data, attempt, true)
}

// SendTestWebhook delivers a synthetic test.ping to an endpoint so operators
// can validate reachability and signature handling without a real domain
// event. Test pings use attempt-1 semantics and are never retried, and do
// not require a test.ping subscription.
func (s *Service) SendTestWebhook(ctx context.Context, webhookID uuid.UUID) *model.DeliveryResult {
	data := map[string]interface{}{
		"message":    "This is a test webhook from Pawtrack",
		"webhook_id": webhookID.String(),
	}
	return s.deliver(ctx, webhookID, event.TestPing, data, 1, false)
}

func (s *Service) deliver(ctx context.Context, webhookID uuid.UUID, eventType event.Type, data interface{}, attempt int, scheduleRetry bool) *model.DeliveryResult {
	endpoint, err := s.endpoints.Get(ctx, webhookID)
	if err != nil {
		s.logger.Error(err, "failed to load webhook endpoint", "webhook_id", webhookID.String())
		return &model.DeliveryResult{Success: false, Error: "Failed to load webhook"}
	}
	if endpoint == nil {
		return &model.DeliveryResult{Success: false, Error: errWebhookNotFound}
	}
	if !endpoint.IsActive {
		return &model.DeliveryResult{Success: false, Error: errWebhookDisabled}
	}

	now := s.now()
	payload := model.WebhookPayload{
		Event:     string(eventType),
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error(err, "failed to serialize webhook payload",
			"webhook_id", webhookID.String(), "event_type", string(eventType))
		return &model.DeliveryResult{Success: false, Error: "Failed to serialize payload"}
	}

	// The signature covers the exact bytes that go on the wire.
	sig := signature.Sign(body, endpoint.Secret, now.Unix())

	delivery := &model.WebhookDelivery{
		ID:        s.newID(),
		WebhookID: endpoint.ID,
		EventType: string(eventType),
		Payload:   body,
		Attempt:   attempt,
	}
	if err := s.deliveries.Create(ctx, delivery); err != nil {
		s.logger.Error(err, "failed to create delivery log",
			"webhook_id", webhookID.String(), "event_type", string(eventType))
		return &model.DeliveryResult{Success: false, Error: "Failed to record delivery"}
	}

	timer := prometheus.NewTimer(s.metrics.WebhookDeliveryLatency.WithLabelValues(string(eventType)))
	result := s.send(ctx, endpoint, delivery, body, sig, scheduleRetry)
	timer.ObserveDuration()

	return result
}

func (s *Service) send(ctx context.Context, endpoint *model.WebhookEndpoint, delivery *model.WebhookDelivery, body []byte, sig string, scheduleRetry bool) *model.DeliveryResult {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return s.failDelivery(ctx, endpoint, delivery, nil, fmt.Sprintf("invalid request: %v", err), scheduleRetry)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerSignature, sig)
	req.Header.Set(headerEvent, delivery.EventType)
	req.Header.Set(headerDeliveryID, delivery.ID.String())
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		msg := err.Error()
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			msg = errRequestTimedOut
		}
		return s.failDelivery(ctx, endpoint, delivery, nil, msg, scheduleRetry)
	}
	defer resp.Body.Close()

	respBody := readCappedBody(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return s.completeDelivery(ctx, endpoint, delivery, resp.StatusCode, respBody)
	}

	status := resp.StatusCode
	msg := fmt.Sprintf("endpoint responded with status %d", status)
	return s.failDelivery(ctx, endpoint, delivery, &status, msg, scheduleRetry)
}

func (s *Service) completeDelivery(ctx context.Context, endpoint *model.WebhookEndpoint, delivery *model.WebhookDelivery, httpStatus int, responseBody string) *model.DeliveryResult {
	if err := s.deliveries.MarkDelivered(ctx, delivery.ID, httpStatus, responseBody); err != nil {
		s.logger.Error(err, "failed to mark delivery delivered", "delivery_id", delivery.ID.String())
	}
	if err := s.endpoints.RecordSuccess(ctx, endpoint.ID); err != nil {
		s.logger.Error(err, "failed to record delivery success", "webhook_id", endpoint.ID.String())
	}

	s.metrics.WebhookDeliveries.WithLabelValues(delivery.EventType, "delivered").Inc()
	s.logger.Debug("webhook delivered",
		"webhook_id", endpoint.ID.String(),
		"delivery_id", delivery.ID.String(),
		"event_type", delivery.EventType,
		"attempt", delivery.Attempt,
		"http_status", httpStatus)

	return &model.DeliveryResult{
		Success:        true,
		HTTPStatusCode: httpStatus,
		ResponseBody:   responseBody,
	}
}

func (s *Service) failDelivery(ctx context.Context, endpoint *model.WebhookEndpoint, delivery *model.WebhookDelivery, httpStatus *int, errMsg string, scheduleRetry bool) *model.DeliveryResult {
	var scheduledFor *time.Time
	if scheduleRetry && delivery.Attempt < MaxAttempts {
		if delay, ok := RetryDelay(delivery.Attempt + 1); ok {
			t := s.now().Add(delay)
			scheduledFor = &t
		}
	}

	if err := s.deliveries.MarkFailed(ctx, delivery.ID, httpStatus, errMsg, scheduledFor); err != nil {
		s.logger.Error(err, "failed to mark delivery failed", "delivery_id", delivery.ID.String())
	}
	failures, err := s.endpoints.RecordFailure(ctx, endpoint.ID)
	if err != nil {
		s.logger.Error(err, "failed to record delivery failure", "webhook_id", endpoint.ID.String())
	}

	s.metrics.WebhookDeliveries.WithLabelValues(delivery.EventType, "failed").Inc()
	s.logger.Warn("webhook delivery failed",
		"webhook_id", endpoint.ID.String(),
		"delivery_id", delivery.ID.String(),
		"event_type", delivery.EventType,
		"attempt", delivery.Attempt,
		"error", errMsg)

	// The disable check runs after every failed attempt, so an endpoint can
	// trip the threshold mid-ladder. The streak observed by the atomic
	// increment feeds the check directly.
	if _, err := s.health.CheckAndDisable(ctx, endpoint.ID, failures); err != nil {
		s.logger.Error(err, "webhook health check failed", "webhook_id", endpoint.ID.String())
	}

	if scheduledFor != nil {
		s.metrics.WebhookRetriesScheduled.Inc()
		if s.broker != nil {
			nudge := map[string]interface{}{
				"delivery_id":   delivery.ID.String(),
				"scheduled_for": scheduledFor.UTC().Format(time.RFC3339),
			}
			if err := s.broker.Publish(ctx, RetryChannel, nudge); err != nil {
				// Polling picks the retry up regardless.
				s.logger.Warn("failed to publish retry nudge", "delivery_id", delivery.ID.String())
			}
		}
	}

	result := &model.DeliveryResult{Success: false, Error: errMsg}
	if httpStatus != nil {
		result.HTTPStatusCode = *httpStatus
	}
	return result
}

func readCappedBody(r io.Reader) string {
	// Read one byte past the cap to detect truncation. A stream that breaks
	// mid-read still yields the bytes that arrived before the error.
	buf, _ := io.ReadAll(io.LimitReader(r, maxResponseBodyChars+1))
	if len(buf) > maxResponseBodyChars {
		// Back the cut up so a multi-byte rune is never split.
		cut := maxResponseBodyChars
		for cut > maxResponseBodyChars-utf8.UTFMax && !utf8.RuneStart(buf[cut]) {
			cut--
		}
		return string(buf[:cut]) + truncationMarker
	}
	return string(buf)
}
