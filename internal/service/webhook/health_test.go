package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtrack/pawtrack-api/pkg/event"
)

func failTimes(t *testing.T, env *testEnv, id uuid.UUID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := env.endpoints.RecordFailure(context.Background(), id)
		require.NoError(t, err)
	}
}

func TestCheckAndDisableBelowThreshold(t *testing.T) {
	env := newTestEnv(t)
	ep := env.addEndpoint(t, "https://example.com/hook", string(event.PetCreated))
	failTimes(t, env, ep.ID, DefaultFailureThreshold-1)

	disabled, err := env.health.CheckAndDisable(context.Background(), ep.ID, DefaultFailureThreshold-1)

	require.NoError(t, err)
	assert.False(t, disabled)
	// A streak below the threshold must not even load the endpoint.
	assert.Zero(t, env.endpoints.getCalls)
	assert.True(t, env.endpoints.get(ep.ID).IsActive)
	assert.Zero(t, env.email.alertCount())
}

func TestCheckAndDisableAtThreshold(t *testing.T) {
	env := newTestEnv(t)
	ep := env.addEndpoint(t, "https://example.com/hook", string(event.PetCreated))
	failTimes(t, env, ep.ID, DefaultFailureThreshold)

	disabled, err := env.health.CheckAndDisable(context.Background(), ep.ID, DefaultFailureThreshold)

	require.NoError(t, err)
	assert.True(t, disabled)
	assert.False(t, env.endpoints.get(ep.ID).IsActive)
	assert.Equal(t, 1, env.email.alertCount())

	// A second check reports false; the endpoint was already disabled.
	disabled, err = env.health.CheckAndDisable(context.Background(), ep.ID, DefaultFailureThreshold)
	require.NoError(t, err)
	assert.False(t, disabled)
	assert.Equal(t, 1, env.email.alertCount())
}

func TestCheckAndDisableUnknownEndpoint(t *testing.T) {
	env := newTestEnv(t)

	disabled, err := env.health.CheckAndDisable(context.Background(), uuid.New(), DefaultFailureThreshold)

	require.NoError(t, err)
	assert.False(t, disabled)
}

func TestDeliveryFailuresTripDisable(t *testing.T) {
	env := newTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ep := env.addEndpoint(t, server.URL, string(event.PetCreated))

	// The streak is one failure short; the next failed delivery crosses the
	// threshold and the post-failure health check must disable the endpoint.
	failTimes(t, env, ep.ID, DefaultFailureThreshold-1)

	result := env.svc.Deliver(context.Background(), ep.ID, event.PetCreated, nil, 1)

	require.False(t, result.Success)
	stored := env.endpoints.get(ep.ID)
	assert.False(t, stored.IsActive)
	assert.Equal(t, DefaultFailureThreshold, stored.ConsecutiveFailures)
}

func TestReactivateResetsFailureStreak(t *testing.T) {
	env := newTestEnv(t)
	ep := env.addEndpoint(t, "https://example.com/hook", string(event.PetCreated))
	failTimes(t, env, ep.ID, DefaultFailureThreshold)

	_, err := env.health.CheckAndDisable(context.Background(), ep.ID, DefaultFailureThreshold)
	require.NoError(t, err)

	require.NoError(t, env.endpoints.Reactivate(context.Background(), ep.ID))

	stored := env.endpoints.get(ep.ID)
	assert.True(t, stored.IsActive)
	assert.Zero(t, stored.ConsecutiveFailures)
}
