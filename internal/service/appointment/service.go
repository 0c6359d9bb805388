// Package appointment manages the booking lifecycle. Each state change emits
// its own appointment.* webhook event; cancel and complete are one-way
// transitions out of scheduled.
package appointment

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
	repo    repository.AppointmentRepository
	pets    repository.PetRepository
	webhook EventTrigger
}

func NewService(repo repository.AppointmentRepository, pets repository.PetRepository, webhook EventTrigger) *Service {
	return &Service{repo: repo, pets: pets, webhook: webhook}
}

func (s *Service) Create(ctx context.Context, organizationID uuid.UUID, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, errors.BadRequest("end_time must be after start_time", nil)
	}

	pet, err := s.pets.Get(ctx, req.PetID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if pet == nil || pet.OrganizationID != organizationID {
		return nil, errors.BadRequest("pet does not exist", nil)
	}

	appt := &model.Appointment{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		CustomerID:     req.CustomerID,
		PetID:          req.PetID,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Status:         model.AppointmentStatusScheduled,
		Reason:         req.Reason,
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		return nil, errors.Internal(err)
	}

	s.webhook.TriggerEvent(ctx, organizationID, event.AppointmentCreated, appt)
	return appt, nil
}

func (s *Service) Get(ctx context.Context, organizationID, id uuid.UUID) (*model.Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if appt == nil || appt.OrganizationID != organizationID {
		return nil, errors.NotFound("appointment", nil)
	}
	return appt, nil
}

func (s *Service) List(ctx context.Context, organizationID uuid.UUID) ([]*model.Appointment, error) {
	appts, err := s.repo.List(ctx, organizationID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return appts, nil
}

func (s *Service) Update(ctx context.Context, organizationID, id uuid.UUID, req *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	appt, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != model.AppointmentStatusScheduled {
		return nil, errors.Conflict("only scheduled appointments can be edited", nil)
	}

	if req.StartTime != nil {
		appt.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		appt.EndTime = *req.EndTime
	}
	if !appt.EndTime.After(appt.StartTime) {
		return nil, errors.BadRequest("end_time must be after start_time", nil)
	}
	if req.Reason != "" {
		appt.Reason = req.Reason
	}

	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, errors.Internal(err)
	}

	s.webhook.TriggerEvent(ctx, organizationID, event.AppointmentUpdated, appt)
	return appt, nil
}

func (s *Service) Cancel(ctx context.Context, organizationID, id uuid.UUID, reason string) (*model.Appointment, error) {
	appt, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != model.AppointmentStatusScheduled {
		return nil, errors.Conflict("only scheduled appointments can be cancelled", nil)
	}

	appt.Status = model.AppointmentStatusCancelled
	if reason != "" {
		appt.CancelReason = &reason
	}
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, errors.Internal(err)
	}

	s.webhook.TriggerEvent(ctx, organizationID, event.AppointmentCancelled, appt)
	return appt, nil
}

func (s *Service) Complete(ctx context.Context, organizationID, id uuid.UUID) (*model.Appointment, error) {
	appt, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != model.AppointmentStatusScheduled {
		return nil, errors.Conflict("only scheduled appointments can be completed", nil)
	}

	appt.Status = model.AppointmentStatusCompleted
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, errors.Internal(err)
	}

	s.webhook.TriggerEvent(ctx, organizationID, event.AppointmentCompleted, appt)
	return appt, nil
}
