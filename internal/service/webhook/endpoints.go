package webhook

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/pkg/errors"
	"github.com/pawtrack/pawtrack-api/pkg/event"
	"github.com/pawtrack/pawtrack-api/pkg/signature"
)

// maxDeliveryHistory caps the delivery log page returned to tenants.
const maxDeliveryHistory = 50

// CreateEndpoint registers a new endpoint for a tenant and returns it with
// the freshly generated plaintext secret. Callers must surface the secret to
// the tenant immediately; it is not retrievable afterwards.
func (s *Service) CreateEndpoint(ctx context.Context, organizationID uuid.UUID, req *model.CreateWebhookRequest) (*model.WebhookWithSecret, error) {
	if err := validateEndpointURL(req.URL); err != nil {
		return nil, errors.BadRequest(err.Error(), err)
	}
	if ok, invalid := event.Validate(req.Events); !ok {
		return nil, errors.BadRequest(fmt.Sprintf("unknown event types: %s", strings.Join(invalid, ", ")), nil)
	}

	secret, err := signature.GenerateSecret()
	if err != nil {
		return nil, errors.Internal(err)
	}

	endpoint := &model.WebhookEndpoint{
		ID:             s.newID(),
		OrganizationID: organizationID,
		Name:           req.Name,
		URL:            req.URL,
		Secret:         secret,
		Events:         pq.StringArray(req.Events),
		IsActive:       true,
	}
	if err := s.endpoints.Create(ctx, endpoint); err != nil {
		return nil, errors.Internal(err)
	}

	s.invalidateOrganization(organizationID)
	s.logger.Info("webhook endpoint created",
		"webhook_id", endpoint.ID.String(),
		"organization_id", organizationID.String(),
		"events", len(endpoint.Events))

	return &model.WebhookWithSecret{WebhookEndpoint: *endpoint, Secret: secret}, nil
}

// GetEndpoint returns a tenant's endpoint or a not-found error. Tenancy is
// enforced here so handlers cannot leak another organization's config.
func (s *Service) GetEndpoint(ctx context.Context, organizationID, webhookID uuid.UUID) (*model.WebhookEndpoint, error) {
	endpoint, err := s.endpoints.Get(ctx, webhookID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if endpoint == nil || endpoint.OrganizationID != organizationID {
		return nil, errors.NotFound("webhook", nil)
	}
	return endpoint, nil
}

// ListEndpoints returns all endpoints for a tenant.
func (s *Service) ListEndpoints(ctx context.Context, organizationID uuid.UUID) ([]*model.WebhookEndpoint, error) {
	endpoints, err := s.endpoints.List(ctx, organizationID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return endpoints, nil
}

// UpdateEndpoint applies a partial update. Re-enabling a disabled endpoint
// goes through Reactivate so the failure streak restarts from zero.
func (s *Service) UpdateEndpoint(ctx context.Context, organizationID, webhookID uuid.UUID, req *model.UpdateWebhookRequest) (*model.WebhookEndpoint, error) {
	endpoint, err := s.GetEndpoint(ctx, organizationID, webhookID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		endpoint.Name = *req.Name
	}
	if req.URL != nil {
		if err := validateEndpointURL(*req.URL); err != nil {
			return nil, errors.BadRequest(err.Error(), err)
		}
		endpoint.URL = *req.URL
	}
	if req.Events != nil {
		if ok, invalid := event.Validate(req.Events); !ok {
			return nil, errors.BadRequest(fmt.Sprintf("unknown event types: %s", strings.Join(invalid, ", ")), nil)
		}
		endpoint.Events = pq.StringArray(req.Events)
	}

	reactivate := req.IsActive != nil && *req.IsActive && !endpoint.IsActive
	if req.IsActive != nil {
		endpoint.IsActive = *req.IsActive
	}

	if err := s.endpoints.Update(ctx, endpoint); err != nil {
		return nil, errors.Internal(err)
	}
	if reactivate {
		if err := s.endpoints.Reactivate(ctx, webhookID); err != nil {
			return nil, errors.Internal(err)
		}
		endpoint.ConsecutiveFailures = 0
		s.logger.Info("webhook endpoint reactivated", "webhook_id", webhookID.String())
	}

	s.invalidateOrganization(organizationID)
	return endpoint, nil
}

// DeleteEndpoint removes an endpoint. Its delivery history remains.
func (s *Service) DeleteEndpoint(ctx context.Context, organizationID, webhookID uuid.UUID) error {
	if _, err := s.GetEndpoint(ctx, organizationID, webhookID); err != nil {
		return err
	}
	if err := s.endpoints.Delete(ctx, webhookID); err != nil {
		return errors.Internal(err)
	}
	s.invalidateOrganization(organizationID)
	s.logger.Info("webhook endpoint deleted", "webhook_id", webhookID.String())
	return nil
}

// ListDeliveries returns the most recent delivery attempts for an endpoint.
func (s *Service) ListDeliveries(ctx context.Context, organizationID, webhookID uuid.UUID, limit int) ([]*model.WebhookDelivery, error) {
	if _, err := s.GetEndpoint(ctx, organizationID, webhookID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxDeliveryHistory {
		limit = maxDeliveryHistory
	}
	deliveries, err := s.deliveries.ListByWebhook(ctx, webhookID, limit)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return deliveries, nil
}

func validateEndpointURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("webhook URL must include a host")
	}
	return nil
}
