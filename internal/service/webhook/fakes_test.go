package webhook

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/pkg/logger"
	"github.com/pawtrack/pawtrack-api/pkg/metrics"
)

// In-memory fakes mirroring the SQL repositories' contracts, including the
// atomic counter semantics the engine depends on.

type fakeWebhookRepo struct {
	mu        sync.Mutex
	endpoints map[uuid.UUID]*model.WebhookEndpoint
	getCalls  int
	listCalls int
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{endpoints: make(map[uuid.UUID]*model.WebhookEndpoint)}
}

func (r *fakeWebhookRepo) Create(_ context.Context, endpoint *model.WebhookEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *endpoint
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.endpoints[endpoint.ID] = &cp
	return nil
}

func (r *fakeWebhookRepo) Get(_ context.Context, id uuid.UUID) (*model.WebhookEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	ep, ok := r.endpoints[id]
	if !ok {
		return nil, nil
	}
	cp := *ep
	return &cp, nil
}

func (r *fakeWebhookRepo) Update(_ context.Context, endpoint *model.WebhookEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.endpoints[endpoint.ID]
	if !ok {
		return nil
	}
	cp := *endpoint
	cp.Secret = existing.Secret
	cp.ConsecutiveFailures = existing.ConsecutiveFailures
	cp.UpdatedAt = time.Now()
	r.endpoints[endpoint.ID] = &cp
	return nil
}

func (r *fakeWebhookRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, id)
	return nil
}

func (r *fakeWebhookRepo) List(_ context.Context, organizationID uuid.UUID) ([]*model.WebhookEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WebhookEndpoint
	for _, ep := range r.endpoints {
		if ep.OrganizationID == organizationID {
			cp := *ep
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeWebhookRepo) ListActiveSubscribed(_ context.Context, organizationID uuid.UUID, eventType string) ([]*model.WebhookEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []*model.WebhookEndpoint
	for _, ep := range r.endpoints {
		if ep.OrganizationID == organizationID && ep.IsActive && ep.SubscribedTo(eventType) {
			cp := *ep
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeWebhookRepo) RecordSuccess(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ep, ok := r.endpoints[id]; ok {
		now := time.Now()
		ep.ConsecutiveFailures = 0
		ep.LastDeliveryAt = &now
		ep.LastSuccessAt = &now
	}
	return nil
}

func (r *fakeWebhookRepo) RecordFailure(_ context.Context, id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.endpoints[id]
	if !ok {
		return 0, nil
	}
	now := time.Now()
	ep.ConsecutiveFailures++
	ep.LastDeliveryAt = &now
	return ep.ConsecutiveFailures, nil
}

func (r *fakeWebhookRepo) Deactivate(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.endpoints[id]
	if !ok || !ep.IsActive {
		return false, nil
	}
	ep.IsActive = false
	return true, nil
}

func (r *fakeWebhookRepo) Reactivate(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ep, ok := r.endpoints[id]; ok {
		ep.IsActive = true
		ep.ConsecutiveFailures = 0
	}
	return nil
}

func (r *fakeWebhookRepo) get(id uuid.UUID) *model.WebhookEndpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.endpoints[id]
	if !ok {
		return nil
	}
	cp := *ep
	return &cp
}

type fakeDeliveryRepo struct {
	mu         sync.Mutex
	deliveries map[uuid.UUID]*model.WebhookDelivery
	order      []uuid.UUID
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{deliveries: make(map[uuid.UUID]*model.WebhookDelivery)}
}

func (r *fakeDeliveryRepo) Create(_ context.Context, delivery *model.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *delivery
	cp.Status = model.DeliveryStatusPending
	cp.CreatedAt = time.Now()
	r.deliveries[delivery.ID] = &cp
	r.order = append(r.order, delivery.ID)
	return nil
}

func (r *fakeDeliveryRepo) Get(_ context.Context, id uuid.UUID) (*model.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDeliveryRepo) MarkDelivered(_ context.Context, id uuid.UUID, httpStatus int, responseBody string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok || d.Status != model.DeliveryStatusPending {
		return nil
	}
	now := time.Now()
	d.Status = model.DeliveryStatusDelivered
	d.HTTPStatusCode = &httpStatus
	d.ResponseBody = &responseBody
	d.DeliveredAt = &now
	return nil
}

func (r *fakeDeliveryRepo) MarkFailed(_ context.Context, id uuid.UUID, httpStatus *int, errorMessage string, scheduledFor *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok || d.Status != model.DeliveryStatusPending {
		return nil
	}
	d.Status = model.DeliveryStatusFailed
	d.HTTPStatusCode = httpStatus
	d.ErrorMessage = &errorMessage
	d.ScheduledFor = scheduledFor
	return nil
}

func (r *fakeDeliveryRepo) MarkSkipped(_ context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok || d.Status != model.DeliveryStatusPending {
		return nil
	}
	d.Status = model.DeliveryStatusSkipped
	d.ErrorMessage = &reason
	return nil
}

func (r *fakeDeliveryRepo) ListByWebhook(_ context.Context, webhookID uuid.UUID, limit int) ([]*model.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WebhookDelivery
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		d := r.deliveries[r.order[i]]
		if d.WebhookID == webhookID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDeliveryRepo) ClaimDueRetries(_ context.Context, limit int) ([]*model.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []*model.WebhookDelivery
	for _, id := range r.order {
		if len(out) >= limit {
			break
		}
		d := r.deliveries[id]
		if d.Status == model.DeliveryStatusFailed && d.ScheduledFor != nil && !d.ScheduledFor.After(now) {
			d.ScheduledFor = nil
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDeliveryRepo) latest() *model.WebhookDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return nil
	}
	cp := *r.deliveries[r.order[len(r.order)-1]]
	return &cp
}

func (r *fakeDeliveryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

type fakeBroker struct {
	mu        sync.Mutex
	published []string
}

func (b *fakeBroker) Publish(_ context.Context, channel string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, channel)
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) publishCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

type fakeEmail struct {
	mu     sync.Mutex
	alerts []string
}

func (e *fakeEmail) SendWebhookDisabledAlert(_ context.Context, _, endpointName, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = append(e.alerts, endpointName)
	return nil
}

func (e *fakeEmail) alertCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.alerts)
}

type testEnv struct {
	svc        *Service
	endpoints  *fakeWebhookRepo
	deliveries *fakeDeliveryRepo
	broker     *fakeBroker
	email      *fakeEmail
	health     *HealthChecker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	m := metrics.New("test")
	endpoints := newFakeWebhookRepo()
	deliveries := newFakeDeliveryRepo()
	broker := &fakeBroker{}
	mail := &fakeEmail{}

	health := NewHealthChecker(endpoints, DefaultFailureThreshold, mail, "ops@pawtrack.io", log, m)
	svc := NewService(endpoints, deliveries, health, broker, Config{Timeout: 2 * time.Second}, log, m)

	return &testEnv{
		svc:        svc,
		endpoints:  endpoints,
		deliveries: deliveries,
		broker:     broker,
		email:      mail,
		health:     health,
	}
}

func (env *testEnv) addEndpoint(t *testing.T, url string, events ...string) *model.WebhookEndpoint {
	t.Helper()
	ep := &model.WebhookEndpoint{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Name:           "test endpoint",
		URL:            url,
		Secret:         "whsec_0123456789abcdef0123456789abcdef0123456789abcdef",
		Events:         pq.StringArray(events),
		IsActive:       true,
	}
	if err := env.endpoints.Create(context.Background(), ep); err != nil {
		t.Fatalf("create endpoint: %v", err)
	}
	return ep
}
