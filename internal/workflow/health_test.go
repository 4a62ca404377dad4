package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/sitehost/internal/executor"
	"github.com/edvin/sitehost/internal/model"
)

func TestHealthCheck_Healthy(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "acme.example.com")
	env.store.On("DatabaseExists", mock.Anything, "acme_example_com").Return(true, nil)

	h, err := env.orch.HealthCheck(context.Background(), "acme.example.com")
	require.NoError(t, err)
	assert.True(t, h.Registered)
	assert.Equal(t, model.ProcessHealthy, h.ProcessStatus)
	assert.Equal(t, http.StatusOK, h.HTTPStatus)
	assert.Equal(t, model.DataStoreOnline, h.DataStoreStatus)
	assert.True(t, h.CheckedAt.Equal(fixedTime))
	env.store.AssertExpectations(t)
}

func TestHealthCheck_ProcessAliveButDatabaseMissing(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "acme")
	env.store.On("DatabaseExists", mock.Anything, "acme").Return(false, nil)

	h, err := env.orch.HealthCheck(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, model.ProcessHealthy, h.ProcessStatus)
	assert.Equal(t, model.DataStoreOffline, h.DataStoreStatus)
}

func TestHealthCheck_UnregisteredSiteIsStillProbed(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("DatabaseExists", mock.Anything, "ghost").Return(true, nil)

	h, err := env.orch.HealthCheck(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, h.Registered)
	assert.Equal(t, model.ProcessUnhealthy, h.ProcessStatus)
	assert.Equal(t, http.StatusServiceUnavailable, h.HTTPStatus)
	assert.Equal(t, model.DataStoreOnline, h.DataStoreStatus)
	assert.Equal(t, []string{"list-apps"}, env.bench.subcommands())
}

func TestHealthCheck_InfrastructureErrorIsUnknown(t *testing.T) {
	env := newTestEnv(t)
	env.bench.on("list-apps", func(executor.Invocation) (*executor.Result, error) {
		return nil, fmt.Errorf("%w: docker daemon unreachable", executor.ErrInfrastructure)
	})
	env.store.On("DatabaseExists", mock.Anything, "acme").Return(true, nil)

	h, err := env.orch.HealthCheck(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, model.ProcessUnknown, h.ProcessStatus)
	assert.Equal(t, http.StatusServiceUnavailable, h.HTTPStatus)
}

func TestHealthCheck_DataStoreError(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "acme")
	env.store.On("DatabaseExists", mock.Anything, "acme").Return(false, errors.New("dial tcp: connection refused"))

	h, err := env.orch.HealthCheck(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "error: dial tcp: connection refused", h.DataStoreStatus)
	assert.Equal(t, model.ProcessHealthy, h.ProcessStatus)
}

func TestHealthCheck_NoDataStore(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "acme")
	env.orch.datastore = nil

	h, err := env.orch.HealthCheck(context.Background(), "acme")
	require.NoError(t, err)
	assert.Contains(t, h.DataStoreStatus, "error:")
}

func TestHealthCheck_InvalidName(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.orch.HealthCheck(context.Background(), "bad name")
	assert.ErrorIs(t, err, ErrInvalidSiteName)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "a", "b", "c")
	env.containers.On("RunningContainers", mock.Anything).Return(4, nil)
	env.store.On("CountDatabases", mock.Anything).Return(3, nil)

	st, err := env.orch.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalSites)
	assert.Equal(t, 4, st.RunningContainers)
	assert.Equal(t, 3, st.Databases)
	assert.True(t, st.Timestamp.Equal(fixedTime))
}

func TestStats_BestEffort(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "a")
	env.containers.On("RunningContainers", mock.Anything).Return(0, errors.New("docker down"))
	env.store.On("CountDatabases", mock.Anything).Return(0, errors.New("mysql down"))

	st, err := env.orch.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalSites)
	assert.Zero(t, st.RunningContainers)
	assert.Zero(t, st.Databases)
}
