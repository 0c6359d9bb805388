package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pawtrack/pawtrack-api/internal/model"
)

// All repository interfaces in one file
type (
	// WebhookRepository handles endpoint registrations and their health
	// counters. Counter updates are atomic at the SQL level so concurrent
	// delivery attempts never lose increments.
	WebhookRepository interface {
		Create(ctx context.Context, endpoint *model.WebhookEndpoint) error
		Get(ctx context.Context, id uuid.UUID) (*model.WebhookEndpoint, error)
		Update(ctx context.Context, endpoint *model.WebhookEndpoint) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, organizationID uuid.UUID) ([]*model.WebhookEndpoint, error)
		ListActiveSubscribed(ctx context.Context, organizationID uuid.UUID, eventType string) ([]*model.WebhookEndpoint, error)
		RecordSuccess(ctx context.Context, id uuid.UUID) error
		RecordFailure(ctx context.Context, id uuid.UUID) (int, error)
		Deactivate(ctx context.Context, id uuid.UUID) (bool, error)
		Reactivate(ctx context.Context, id uuid.UUID) error
	}

	// DeliveryRepository handles the per-attempt audit log.
	DeliveryRepository interface {
		Create(ctx context.Context, delivery *model.WebhookDelivery) error
		Get(ctx context.Context, id uuid.UUID) (*model.WebhookDelivery, error)
		MarkDelivered(ctx context.Context, id uuid.UUID, httpStatus int, responseBody string) error
		MarkFailed(ctx context.Context, id uuid.UUID, httpStatus *int, errorMessage string, scheduledFor *time.Time) error
		MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error
		ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit int) ([]*model.WebhookDelivery, error)
		ClaimDueRetries(ctx context.Context, limit int) ([]*model.WebhookDelivery, error)
	}

	CustomerRepository interface {
		Create(ctx context.Context, customer *model.Customer) error
		Get(ctx context.Context, id uuid.UUID) (*model.Customer, error)
		Update(ctx context.Context, customer *model.Customer) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, organizationID uuid.UUID) ([]*model.Customer, error)
	}

	PetRepository interface {
		Create(ctx context.Context, pet *model.Pet) error
		Get(ctx context.Context, id uuid.UUID) (*model.Pet, error)
		Update(ctx context.Context, pet *model.Pet) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, organizationID uuid.UUID) ([]*model.Pet, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		List(ctx context.Context, organizationID uuid.UUID) ([]*model.Appointment, error)
	}

	UserRepository interface {
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
	}
)
