package webhook

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/pkg/errors"
	"github.com/pawtrack/pawtrack-api/pkg/event"
	"github.com/pawtrack/pawtrack-api/pkg/signature"
)

func TestCreateEndpoint(t *testing.T) {
	env := newTestEnv(t)
	orgID := uuid.New()

	created, err := env.svc.CreateEndpoint(context.Background(), orgID, &model.CreateWebhookRequest{
		Name:   "CRM sync",
		URL:    "https://crm.example.com/hooks/pawtrack",
		Events: []string{string(event.CustomerCreated), string(event.CustomerUpdated)},
	})

	require.NoError(t, err)
	assert.True(t, signature.IsValidSecretFormat(created.Secret))
	assert.True(t, created.IsActive)
	assert.Equal(t, orgID, created.OrganizationID)
	assert.Zero(t, created.ConsecutiveFailures)

	// The stored endpoint keeps the same secret the caller was shown.
	stored := env.endpoints.get(created.ID)
	require.NotNil(t, stored)
	assert.Equal(t, created.Secret, stored.Secret)
}

func TestCreateEndpointRejectsBadURL(t *testing.T) {
	env := newTestEnv(t)

	cases := []string{
		"ftp://example.com/hook",
		"not a url",
		"https://",
	}
	for _, url := range cases {
		_, err := env.svc.CreateEndpoint(context.Background(), uuid.New(), &model.CreateWebhookRequest{
			Name:   "bad",
			URL:    url,
			Events: []string{string(event.PetCreated)},
		})
		var appErr *errors.AppError
		require.ErrorAs(t, err, &appErr, "url %q", url)
		assert.Equal(t, errors.ErrBadRequest, appErr.Code, "url %q", url)
	}
}

func TestCreateEndpointRejectsUnknownEvents(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateEndpoint(context.Background(), uuid.New(), &model.CreateWebhookRequest{
		Name:   "bad events",
		URL:    "https://example.com/hook",
		Events: []string{string(event.PetCreated), "pet.exploded", "cat.created"},
	})

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.ErrBadRequest, appErr.Code)

	// Every unknown entry is named, not just the first.
	assert.Contains(t, appErr.Message, "pet.exploded")
	assert.Contains(t, appErr.Message, "cat.created")
}

func TestGetEndpointEnforcesTenancy(t *testing.T) {
	env := newTestEnv(t)
	ep := env.addEndpoint(t, "https://example.com/hook", string(event.PetCreated))

	got, err := env.svc.GetEndpoint(context.Background(), ep.OrganizationID, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, ep.ID, got.ID)

	_, err = env.svc.GetEndpoint(context.Background(), uuid.New(), ep.ID)
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.ErrNotFound, appErr.Code)
}

func TestUpdateEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ep := env.addEndpoint(t, "https://example.com/hook", string(event.PetCreated))

	name := "renamed"
	url := "https://example.com/hooks/v2"
	updated, err := env.svc.UpdateEndpoint(context.Background(), ep.OrganizationID, ep.ID, &model.UpdateWebhookRequest{
		Name:   &name,
		URL:    &url,
		Events: []string{string(event.PetCreated), string(event.PetDeleted)},
	})

	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, url, updated.URL)
	assert.Len(t, updated.Events, 2)

	_, err = env.svc.UpdateEndpoint(context.Background(), ep.OrganizationID, ep.ID, &model.UpdateWebhookRequest{
		Events: []string{"pet.exploded"},
	})
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.ErrBadRequest, appErr.Code)
}

func TestUpdateEndpointReactivation(t *testing.T) {
	env := newTestEnv(t)
	ep := env.addEndpoint(t, "https://example.com/hook", string(event.PetCreated))
	failTimes(t, env, ep.ID, DefaultFailureThreshold)
	_, err := env.endpoints.Deactivate(context.Background(), ep.ID)
	require.NoError(t, err)

	active := true
	updated, err := env.svc.UpdateEndpoint(context.Background(), ep.OrganizationID, ep.ID, &model.UpdateWebhookRequest{
		IsActive: &active,
	})

	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.Zero(t, updated.ConsecutiveFailures)

	stored := env.endpoints.get(ep.ID)
	assert.True(t, stored.IsActive)
	assert.Zero(t, stored.ConsecutiveFailures)
}

func TestDeleteEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ep := env.addEndpoint(t, "https://example.com/hook", string(event.PetCreated))

	require.NoError(t, env.svc.DeleteEndpoint(context.Background(), ep.OrganizationID, ep.ID))
	assert.Nil(t, env.endpoints.get(ep.ID))

	err := env.svc.DeleteEndpoint(context.Background(), ep.OrganizationID, ep.ID)
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.ErrNotFound, appErr.Code)
}

func TestListDeliveriesCapsLimit(t *testing.T) {
	env := newTestEnv(t)
	ep := env.addEndpoint(t, "https://example.com/hook", string(event.PetCreated))

	for i := 0; i < maxDeliveryHistory+10; i++ {
		require.NoError(t, env.deliveries.Create(context.Background(), &model.WebhookDelivery{
			ID:        uuid.New(),
			WebhookID: ep.ID,
			EventType: string(event.PetCreated),
			Attempt:   1,
		}))
	}

	deliveries, err := env.svc.ListDeliveries(context.Background(), ep.OrganizationID, ep.ID, 0)
	require.NoError(t, err)
	assert.Len(t, deliveries, maxDeliveryHistory)

	deliveries, err = env.svc.ListDeliveries(context.Background(), ep.OrganizationID, ep.ID, 5)
	require.NoError(t, err)
	assert.Len(t, deliveries, 5)
}
