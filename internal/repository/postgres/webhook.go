package postgres

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/internal/repository"
	"github.com/pawtrack/pawtrack-api/pkg/security"
)

type webhookRepository struct {
	BaseRepository
	enc security.Encryptor
}

// NewWebhookRepository builds the endpoint store. When enc is non-nil,
// signing secrets are encrypted before they touch the database and decrypted
// on the way out.
func NewWebhookRepository(base BaseRepository, enc security.Encryptor) repository.WebhookRepository {
	return &webhookRepository{BaseRepository: base, enc: enc}
}

func (r *webhookRepository) encodeSecret(secret string) (string, error) {
	if r.enc == nil {
		return secret, nil
	}
	ciphertext, err := r.enc.Encrypt([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt webhook secret: %w", err)
	}
	return hex.EncodeToString(ciphertext), nil
}

func (r *webhookRepository) decodeSecret(endpoint *model.WebhookEndpoint) error {
	if r.enc == nil {
		return nil
	}
	ciphertext, err := hex.DecodeString(endpoint.Secret)
	if err != nil {
		return fmt.Errorf("failed to decode stored webhook secret: %w", err)
	}
	plaintext, err := r.enc.Decrypt(ciphertext)
	if err != nil {
		return fmt.Errorf("failed to decrypt webhook secret: %w", err)
	}
	endpoint.Secret = string(plaintext)
	return nil
}

func (r *webhookRepository) Create(ctx context.Context, endpoint *model.WebhookEndpoint) error {
	query := `
		INSERT INTO webhook_endpoints (
			id, organization_id, name, url, secret, events,
			is_active, consecutive_failures, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if endpoint.ID == uuid.Nil {
		endpoint.ID = uuid.New()
	}
	endpoint.CreatedAt = time.Now()
	endpoint.UpdatedAt = time.Now()

	storedSecret, err := r.encodeSecret(endpoint.Secret)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		endpoint.ID,
		endpoint.OrganizationID,
		endpoint.Name,
		endpoint.URL,
		storedSecret,
		endpoint.Events,
		endpoint.IsActive,
		endpoint.ConsecutiveFailures,
		endpoint.CreatedAt,
		endpoint.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook endpoint: %w", err)
	}
	return nil
}

func (r *webhookRepository) Get(ctx context.Context, id uuid.UUID) (*model.WebhookEndpoint, error) {
	query := `
		SELECT id, organization_id, name, url, secret, events,
			   is_active, consecutive_failures, last_delivery_at, last_success_at,
			   created_at, updated_at
		FROM webhook_endpoints
		WHERE id = $1
	`
	var endpoint model.WebhookEndpoint
	err := r.db.GetContext(ctx, &endpoint, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook endpoint: %w", err)
	}
	if err := r.decodeSecret(&endpoint); err != nil {
		return nil, err
	}
	return &endpoint, nil
}

func (r *webhookRepository) Update(ctx context.Context, endpoint *model.WebhookEndpoint) error {
	query := `
		UPDATE webhook_endpoints
		SET name = $1, url = $2, events = $3, is_active = $4, updated_at = $5
		WHERE id = $6
	`
	endpoint.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		endpoint.Name,
		endpoint.URL,
		endpoint.Events,
		endpoint.IsActive,
		endpoint.UpdatedAt,
		endpoint.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook endpoint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("webhook endpoint not found")
	}
	return nil
}

func (r *webhookRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook endpoint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("webhook endpoint not found")
	}
	return nil
}

func (r *webhookRepository) List(ctx context.Context, organizationID uuid.UUID) ([]*model.WebhookEndpoint, error) {
	query := `
		SELECT id, organization_id, name, url, secret, events,
			   is_active, consecutive_failures, last_delivery_at, last_success_at,
			   created_at, updated_at
		FROM webhook_endpoints
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`
	var endpoints []*model.WebhookEndpoint
	if err := r.db.SelectContext(ctx, &endpoints, query, organizationID); err != nil {
		return nil, fmt.Errorf("failed to list webhook endpoints: %w", err)
	}
	for _, ep := range endpoints {
		if err := r.decodeSecret(ep); err != nil {
			return nil, err
		}
	}
	return endpoints, nil
}

func (r *webhookRepository) ListActiveSubscribed(ctx context.Context, organizationID uuid.UUID, eventType string) ([]*model.WebhookEndpoint, error) {
	query := `
		SELECT id, organization_id, name, url, secret, events,
			   is_active, consecutive_failures, last_delivery_at, last_success_at,
			   created_at, updated_at
		FROM webhook_endpoints
		WHERE organization_id = $1
		  AND is_active
		  AND $2 = ANY(events)
	`
	var endpoints []*model.WebhookEndpoint
	if err := r.db.SelectContext(ctx, &endpoints, query, organizationID, eventType); err != nil {
		return nil, fmt.Errorf("failed to list subscribed endpoints: %w", err)
	}
	for _, ep := range endpoints {
		if err := r.decodeSecret(ep); err != nil {
			return nil, err
		}
	}
	return endpoints, nil
}

// RecordSuccess resets the failure counter and stamps both delivery
// timestamps in a single statement so concurrent attempts cannot interleave.
func (r *webhookRepository) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE webhook_endpoints
		SET consecutive_failures = 0,
			last_delivery_at = NOW(),
			last_success_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to record delivery success: %w", err)
	}
	return nil
}

// RecordFailure applies an atomic increment and returns the resulting
// counter value for threshold checks.
func (r *webhookRepository) RecordFailure(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
		UPDATE webhook_endpoints
		SET consecutive_failures = consecutive_failures + 1,
			last_delivery_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
		RETURNING consecutive_failures
	`
	var failures int
	err := r.db.GetContext(ctx, &failures, query, id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("webhook endpoint not found")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record delivery failure: %w", err)
	}
	return failures, nil
}

// Deactivate flips is_active off and reports whether this call did the flip,
// so concurrent threshold checks disable an endpoint exactly once.
func (r *webhookRepository) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE webhook_endpoints
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND is_active
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate webhook endpoint: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Reactivate is the explicit tenant action that re-enables an endpoint and
// clears its failure streak. Never called automatically.
func (r *webhookRepository) Reactivate(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE webhook_endpoints
		SET is_active = TRUE, consecutive_failures = 0, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reactivate webhook endpoint: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("webhook endpoint not found")
	}
	return nil
}

type deliveryRepository struct {
	BaseRepository
}

func NewDeliveryRepository(base BaseRepository) repository.DeliveryRepository {
	return &deliveryRepository{base}
}

func (r *deliveryRepository) Create(ctx context.Context, delivery *model.WebhookDelivery) error {
	if delivery.Payload == nil {
		return fmt.Errorf("delivery payload cannot be nil")
	}

	query := `
		INSERT INTO webhook_deliveries (
			id, webhook_id, event_type, payload, attempt, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	delivery.Status = model.DeliveryStatusPending
	delivery.CreatedAt = time.Now()
	delivery.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		delivery.ID,
		delivery.WebhookID,
		delivery.EventType,
		delivery.Payload,
		delivery.Attempt,
		delivery.Status,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery log: %w", err)
	}
	return nil
}

func (r *deliveryRepository) Get(ctx context.Context, id uuid.UUID) (*model.WebhookDelivery, error) {
	query := `
		SELECT id, webhook_id, event_type, payload, attempt, status,
			   http_status_code, response_body, error_message,
			   delivered_at, scheduled_for, created_at, updated_at
		FROM webhook_deliveries
		WHERE id = $1
	`
	var delivery model.WebhookDelivery
	err := r.db.GetContext(ctx, &delivery, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery log: %w", err)
	}
	return &delivery, nil
}

// Terminal-state updates guard on status = 'pending' so a log row can never
// move backward or to a second terminal state.
func (r *deliveryRepository) MarkDelivered(ctx context.Context, id uuid.UUID, httpStatus int, responseBody string) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, http_status_code = $2, response_body = $3,
			delivered_at = NOW(), updated_at = NOW()
		WHERE id = $4 AND status = $5
	`
	_, err := r.db.ExecContext(ctx, query,
		model.DeliveryStatusDelivered, httpStatus, responseBody, id, model.DeliveryStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark delivery delivered: %w", err)
	}
	return nil
}

func (r *deliveryRepository) MarkFailed(ctx context.Context, id uuid.UUID, httpStatus *int, errorMessage string, scheduledFor *time.Time) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, http_status_code = $2, error_message = $3,
			scheduled_for = $4, updated_at = NOW()
		WHERE id = $5 AND status = $6
	`
	_, err := r.db.ExecContext(ctx, query,
		model.DeliveryStatusFailed, httpStatus, errorMessage, scheduledFor, id, model.DeliveryStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark delivery failed: %w", err)
	}
	return nil
}

func (r *deliveryRepository) MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`
	_, err := r.db.ExecContext(ctx, query,
		model.DeliveryStatusSkipped, reason, id, model.DeliveryStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark delivery skipped: %w", err)
	}
	return nil
}

func (r *deliveryRepository) ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit int) ([]*model.WebhookDelivery, error) {
	query := `
		SELECT id, webhook_id, event_type, payload, attempt, status,
			   http_status_code, response_body, error_message,
			   delivered_at, scheduled_for, created_at, updated_at
		FROM webhook_deliveries
		WHERE webhook_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var deliveries []*model.WebhookDelivery
	if err := r.db.SelectContext(ctx, &deliveries, query, webhookID, limit); err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return deliveries, nil
}

// ClaimDueRetries returns failed attempts whose retry is due and clears
// their schedule inside one transaction. SKIP LOCKED keeps concurrent
// workers from claiming the same rows; clearing scheduled_for makes the
// claim durable, so a row is dispatched at most once per schedule.
func (r *deliveryRepository) ClaimDueRetries(ctx context.Context, limit int) ([]*model.WebhookDelivery, error) {
	var claimed []*model.WebhookDelivery

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		selectQuery := `
			SELECT id, webhook_id, event_type, payload, attempt, status,
				   http_status_code, response_body, error_message,
				   delivered_at, scheduled_for, created_at, updated_at
			FROM webhook_deliveries
			WHERE status = $1
			  AND scheduled_for IS NOT NULL
			  AND scheduled_for <= NOW()
			ORDER BY scheduled_for ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		`
		if err := tx.SelectContext(ctx, &claimed, selectQuery, model.DeliveryStatusFailed, limit); err != nil {
			return fmt.Errorf("failed to select due retries: %w", err)
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(claimed))
		for i, d := range claimed {
			ids[i] = d.ID
		}

		updateQuery := `
			UPDATE webhook_deliveries
			SET scheduled_for = NULL, updated_at = NOW()
			WHERE id = ANY($1)
		`
		if _, err := tx.ExecContext(ctx, updateQuery, pq.Array(ids)); err != nil {
			return fmt.Errorf("failed to clear retry schedule: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
