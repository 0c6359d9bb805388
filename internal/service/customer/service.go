// Package customer manages pet-owner records and emits the customer.*
// webhook events on every mutation.
package customer

import (
	"context"

	"github.com/google/uuid"

	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/internal/repository"
	"github.com/pawtrack/pawtrack-api/pkg/errors"
	"github.com/pawtrack/pawtrack-api/pkg/event"
)

// EventTrigger fans a domain event out to subscribed webhook endpoints.
type EventTrigger interface {
	TriggerEvent(ctx context.Context, organizationID uuid.UUID, eventType event.Type, data interface{})
}

type Service struct {
	repo    repository.CustomerRepository
	webhook EventTrigger
}

func NewService(repo repository.CustomerRepository, webhook EventTrigger) *Service {
	return &Service{repo: repo, webhook: webhook}
}

func (s *Service) Create(ctx context.Context, organizationID uuid.UUID, req *model.CreateCustomerRequest) (*model.Customer, error) {
	customer := &model.Customer{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Phone:          req.Phone,
		Status:         model.CustomerStatusActive,
	}
	if err := s.repo.Create(ctx, customer); err != nil {
		return nil, errors.Internal(err)
	}

	s.webhook.TriggerEvent(ctx, organizationID, event.CustomerCreated, customer)
	return customer, nil
}

func (s *Service) Get(ctx context.Context, organizationID, id uuid.UUID) (*model.Customer, error) {
	customer, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if customer == nil || customer.OrganizationID != organizationID {
		return nil, errors.NotFound("customer", nil)
	}
	return customer, nil
}

func (s *Service) List(ctx context.Context, organizationID uuid.UUID) ([]*model.Customer, error) {
	customers, err := s.repo.List(ctx, organizationID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return customers, nil
}

func (s *Service) Update(ctx context.Context, organizationID, id uuid.UUID, req *model.UpdateCustomerRequest) (*model.Customer, error) {
	customer, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	if req.FirstName != "" {
		customer.FirstName = req.FirstName
	}
	if req.LastName != "" {
		customer.LastName = req.LastName
	}
	if req.Email != "" {
		customer.Email = req.Email
	}
	if req.Phone != "" {
		customer.Phone = req.Phone
	}

	if err := s.repo.Update(ctx, customer); err != nil {
		return nil, errors.Internal(err)
	}

	s.webhook.TriggerEvent(ctx, organizationID, event.CustomerUpdated, customer)
	return customer, nil
}

func (s *Service) Delete(ctx context.Context, organizationID, id uuid.UUID) error {
	customer, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Internal(err)
	}

	s.webhook.TriggerEvent(ctx, organizationID, event.CustomerDeleted, customer)
	return nil
}
