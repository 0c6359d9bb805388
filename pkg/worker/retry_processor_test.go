package worker

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/pkg/event"
	"github.com/pawtrack/pawtrack-api/pkg/logger"
	"github.com/pawtrack/pawtrack-api/pkg/metrics"
)

type stubDeliveryRepo struct {
	mu      sync.Mutex
	due     []*model.WebhookDelivery
	claimed int
}

func (r *stubDeliveryRepo) Create(context.Context, *model.WebhookDelivery) error { return nil }
func (r *stubDeliveryRepo) Get(context.Context, uuid.UUID) (*model.WebhookDelivery, error) {
	return nil, nil
}
func (r *stubDeliveryRepo) MarkDelivered(context.Context, uuid.UUID, int, string) error { return nil }
func (r *stubDeliveryRepo) MarkFailed(context.Context, uuid.UUID, *int, string, *time.Time) error {
	return nil
}
func (r *stubDeliveryRepo) MarkSkipped(context.Context, uuid.UUID, string) error { return nil }
func (r *stubDeliveryRepo) ListByWebhook(context.Context, uuid.UUID, int) ([]*model.WebhookDelivery, error) {
	return nil, nil
}

func (r *stubDeliveryRepo) ClaimDueRetries(_ context.Context, limit int) ([]*model.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimed++
	if len(r.due) == 0 {
		return nil, nil
	}
	if limit > len(r.due) {
		limit = len(r.due)
	}
	out := r.due[:limit]
	r.due = r.due[limit:]
	return out, nil
}

type recordingDeliverer struct {
	mu    sync.Mutex
	calls []deliverCall
}

type deliverCall struct {
	webhookID uuid.UUID
	eventType event.Type
	data      interface{}
	attempt   int
}

func (d *recordingDeliverer) Deliver(_ context.Context, webhookID uuid.UUID, eventType event.Type, data interface{}, attempt int) *model.DeliveryResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, deliverCall{webhookID, eventType, data, attempt})
	return &model.DeliveryResult{Success: true, HTTPStatusCode: 200}
}

func (d *recordingDeliverer) all() []deliverCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]deliverCall(nil), d.calls...)
}

func newTestProcessor(repo *stubDeliveryRepo, deliverer Deliverer) *RetryProcessor {
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	return NewRetryProcessor(repo, deliverer, nil, RetryProcessorConfig{
		BatchSize:    10,
		PollInterval: 10 * time.Millisecond,
	}, log, metrics.New("test"))
}

func dueDelivery(t *testing.T, webhookID uuid.UUID, attempt int) *model.WebhookDelivery {
	t.Helper()
	payload, err := json.Marshal(model.WebhookPayload{
		Event:     "pet.created",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      map[string]interface{}{"pet_id": "p1"},
	})
	require.NoError(t, err)
	return &model.WebhookDelivery{
		ID:        uuid.New(),
		WebhookID: webhookID,
		EventType: "pet.created",
		Payload:   payload,
		Attempt:   attempt,
		Status:    model.DeliveryStatusFailed,
	}
}

func TestProcessDueRetriesRedelivers(t *testing.T) {
	webhookID := uuid.New()
	repo := &stubDeliveryRepo{due: []*model.WebhookDelivery{dueDelivery(t, webhookID, 1)}}
	deliverer := &recordingDeliverer{}
	p := newTestProcessor(repo, deliverer)

	require.NoError(t, p.processDueRetries(context.Background()))

	calls := deliverer.all()
	require.Len(t, calls, 1)
	assert.Equal(t, webhookID, calls[0].webhookID)
	assert.Equal(t, event.PetCreated, calls[0].eventType)
	assert.Equal(t, 2, calls[0].attempt, "retry must run as the next attempt")

	// The stored envelope's data travels to the new attempt unchanged.
	data, ok := calls[0].data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "p1", data["pet_id"])
}

func TestProcessDueRetriesEmptyBatch(t *testing.T) {
	repo := &stubDeliveryRepo{}
	deliverer := &recordingDeliverer{}
	p := newTestProcessor(repo, deliverer)

	require.NoError(t, p.processDueRetries(context.Background()))
	assert.Empty(t, deliverer.all())
}

func TestProcessDueRetriesSkipsCorruptPayload(t *testing.T) {
	webhookID := uuid.New()
	bad := dueDelivery(t, webhookID, 1)
	bad.Payload = []byte("{not json")
	good := dueDelivery(t, webhookID, 2)
	repo := &stubDeliveryRepo{due: []*model.WebhookDelivery{bad, good}}
	deliverer := &recordingDeliverer{}
	p := newTestProcessor(repo, deliverer)

	require.NoError(t, p.processDueRetries(context.Background()))

	// The corrupt row is logged and skipped; the rest of the batch proceeds.
	calls := deliverer.all()
	require.Len(t, calls, 1)
	assert.Equal(t, 3, calls[0].attempt)
}

func TestStartPollsUntilCancelled(t *testing.T) {
	webhookID := uuid.New()
	repo := &stubDeliveryRepo{due: []*model.WebhookDelivery{dueDelivery(t, webhookID, 1)}}
	deliverer := &recordingDeliverer{}
	p := newTestProcessor(repo, deliverer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(deliverer.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not shut down")
	}

	repo.mu.Lock()
	claims := repo.claimed
	repo.mu.Unlock()
	assert.GreaterOrEqual(t, claims, 1)
}
