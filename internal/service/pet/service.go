// Package pet manages patient records and emits the pet.* webhook events.
package pet

import (
	"context"

	"github.com/google/uuid"

	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/internal/repository"
	"github.com/pawtrack/pawtrack-api/pkg/errors"
	"github.com/pawtrack/pawtrack-api/pkg/event"
)

type EventTrigger interface {
	TriggerEvent(ctx context.Context, organizationID uuid.UUID, eventType event.Type, data interface{})
}

type Service struct {
	repo      repository.PetRepository
	customers repository.CustomerRepository
	webhook   EventTrigger
}

func NewService(repo repository.PetRepository, customers repository.CustomerRepository, webhook EventTrigger) *Service {
	return &Service{repo: repo, customers: customers, webhook: webhook}
}

func (s *Service) Create(ctx context.Context, organizationID uuid.UUID, req *model.CreatePetRequest) (*model.Pet, error) {
	owner, err := s.customers.Get(ctx, req.CustomerID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if owner == nil || owner.OrganizationID != organizationID {
		return nil, errors.BadRequest("customer does not exist", nil)
	}

	pet := &model.Pet{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		CustomerID:     req.CustomerID,
		Name:           req.Name,
		Species:        req.Species,
		Breed:          req.Breed,
		BirthDate:      req.BirthDate,
		Notes:          req.Notes,
	}
	if err := s.repo.Create(ctx, pet); err != nil {
		return nil, errors.Internal(err)
	}

	s.webhook.TriggerEvent(ctx, organizationID, event.PetCreated, pet)
	return pet, nil
}

func (s *Service) Get(ctx context.Context, organizationID, id uuid.UUID) (*model.Pet, error) {
	pet, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if pet == nil || pet.OrganizationID != organizationID {
		return nil, errors.NotFound("pet", nil)
	}
	return pet, nil
}

func (s *Service) List(ctx context.Context, organizationID uuid.UUID) ([]*model.Pet, error) {
	pets, err := s.repo.List(ctx, organizationID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return pets, nil
}

func (s *Service) Update(ctx context.Context, organizationID, id uuid.UUID, req *model.UpdatePetRequest) (*model.Pet, error) {
	pet, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		pet.Name = req.Name
	}
	if req.Species != "" {
		pet.Species = req.Species
	}
	if req.Breed != "" {
		pet.Breed = req.Breed
	}
	if req.BirthDate != nil {
		pet.BirthDate = req.BirthDate
	}
	if req.Notes != "" {
		pet.Notes = req.Notes
	}

	if err := s.repo.Update(ctx, pet); err != nil {
		return nil, errors.Internal(err)
	}

	s.webhook.TriggerEvent(ctx, organizationID, event.PetUpdated, pet)
	return pet, nil
}

func (s *Service) Delete(ctx context.Context, organizationID, id uuid.UUID) error {
	pet, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Internal(err)
	}

	s.webhook.TriggerEvent(ctx, organizationID, event.PetDeleted, pet)
	return nil
}
