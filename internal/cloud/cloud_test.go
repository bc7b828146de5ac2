package cloud_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/internal/cloud/simulated"
	"github.com/OldStager01/cloud-vm-monitor/internal/resilience"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

func TestLatest(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	samples := []*models.MetricSample{
		{Timestamp: base.Add(5 * time.Minute), CPUUtilization: models.Float(70)},
		{Timestamp: base, CPUUtilization: models.Float(40), NetworkIn: models.Float(100)},
	}

	got := cloud.Latest(samples)
	require.NotNil(t, got)
	assert.Equal(t, 70.0, *got.CPUUtilization)
	assert.Equal(t, 100.0, *got.NetworkIn)
	assert.Nil(t, got.MemoryUtilization)
	assert.True(t, got.Timestamp.Equal(base.Add(5*time.Minute)))

	assert.Nil(t, cloud.Latest(nil))
}

func TestSampleSet_MergesByTimestamp(t *testing.T) {
	set := cloud.NewSampleSet(models.ProviderAzure, "vm-a")
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	set.At(ts).CPUUtilization = models.Float(10)
	set.At(ts).NetworkIn = models.Float(20)
	set.At(ts.Add(-time.Minute)).CPUUtilization = models.Float(5)

	samples := set.Samples()
	require.Len(t, samples, 2)
	assert.Equal(t, 5.0, *samples[0].CPUUtilization)
	assert.Equal(t, 20.0, *samples[1].NetworkIn)
	assert.Equal(t, "vm-a", samples[1].InstanceID)
}

func TestRegistry(t *testing.T) {
	r := cloud.NewRegistry(simulated.NewFleet(simulated.Config{Provider: models.ProviderGCP}))

	a, err := r.For(models.ProviderGCP)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGCP, a.Provider())

	_, err = r.For(models.ProviderAzure)
	assert.ErrorIs(t, err, cloud.ErrNotConfigured)
	assert.False(t, r.Configured(models.ProviderAzure))
	assert.Equal(t, []models.Provider{models.ProviderGCP}, r.Providers())
}

func TestProviderError(t *testing.T) {
	inner := errors.New("AccessDenied")
	err := cloud.NewProviderError(models.ProviderAWS, "stop", inner)

	var pe *cloud.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, models.ProviderAWS, pe.Provider)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "aws stop: AccessDenied", err.Error())

	assert.Same(t, err, cloud.NewProviderError(models.ProviderAWS, "other", err))
	assert.Nil(t, cloud.NewProviderError(models.ProviderAWS, "stop", nil))

	assert.True(t, cloud.IsTransient(err))
	assert.False(t, cloud.IsTransient(cloud.ErrNotConfigured))
	assert.False(t, cloud.IsTransient(&cloud.ProviderError{Err: cloud.ErrNotFound}))
}

func TestResilientAdapter_RetriesReads(t *testing.T) {
	fleet := simulated.NewFleet(simulated.Config{Provider: models.ProviderAWS, Seed: 1})
	fleet.AddInstance(cloud.Instance{InstanceID: "i-1"})
	fleet.Fail("get_state", "i-1", errors.New("throttled"))

	a := cloud.NewResilientAdapter(fleet, cloud.ResilientConfig{
		MaxFailures:   10,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})

	_, err := a.GetState(context.Background(), cloud.Target{InstanceID: "i-1"})
	require.Error(t, err)
	assert.Equal(t, 3, fleet.Calls("get_state"))
}

func TestResilientAdapter_NoRetryOnMutations(t *testing.T) {
	fleet := simulated.NewFleet(simulated.Config{Provider: models.ProviderAWS, Seed: 1})
	fleet.AddInstance(cloud.Instance{InstanceID: "i-1"})
	fleet.Fail("create_snapshot", "i-1", errors.New("throttled"))

	a := cloud.NewResilientAdapter(fleet, cloud.ResilientConfig{RetryAttempts: 3, RetryDelay: time.Millisecond})

	_, err := a.CreateSnapshot(context.Background(), cloud.Target{InstanceID: "i-1"}, "vol-1", "n", "")
	require.Error(t, err)
	assert.Equal(t, 1, fleet.Calls("create_snapshot"))
}

func TestResilientAdapter_OpensCircuit(t *testing.T) {
	fleet := simulated.NewFleet(simulated.Config{Provider: models.ProviderAWS, Seed: 1})
	fleet.AddInstance(cloud.Instance{InstanceID: "i-1"})
	fleet.Fail("stop", "", errors.New("unavailable"))

	a := cloud.NewResilientAdapter(fleet, cloud.ResilientConfig{MaxFailures: 2, Timeout: time.Hour})
	ctx := context.Background()
	target := cloud.Target{InstanceID: "i-1"}

	_ = a.Stop(ctx, target)
	_ = a.Stop(ctx, target)
	assert.Equal(t, resilience.StateOpen, a.CircuitState())

	err := a.Stop(ctx, target)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	var pe *cloud.ProviderError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, fleet.Calls("stop"))
}

func TestResilientAdapter_NotFoundDoesNotTrip(t *testing.T) {
	fleet := simulated.NewFleet(simulated.Config{Provider: models.ProviderAWS, Seed: 1})
	a := cloud.NewResilientAdapter(fleet, cloud.ResilientConfig{MaxFailures: 1, RetryAttempts: 3, RetryDelay: time.Millisecond})

	for i := 0; i < 3; i++ {
		_, err := a.GetState(context.Background(), cloud.Target{InstanceID: "missing"})
		assert.ErrorIs(t, err, cloud.ErrNotFound)
	}
	assert.Equal(t, resilience.StateClosed, a.CircuitState())
	assert.Equal(t, 3, fleet.Calls("get_state"))
}

func TestRESTClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"name":"vm-1"}`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"message":"The resource was not found"}}`))
		default:
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":{"message":"insufficient permissions"}}`))
		}
	}))
	defer srv.Close()

	c := cloud.NewRESTClient(models.ProviderAzure, time.Second, func(ctx context.Context) (string, error) {
		return "tok", nil
	})
	ctx := context.Background()

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.Do(ctx, "get", http.MethodGet, srv.URL+"/ok", nil, &out))
	assert.Equal(t, "vm-1", out.Name)

	err := c.Do(ctx, "get", http.MethodGet, srv.URL+"/missing", nil, nil)
	assert.ErrorIs(t, err, cloud.ErrNotFound)

	err = c.Do(ctx, "stop", http.MethodPost, srv.URL+"/denied", map[string]string{}, nil)
	var pe *cloud.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "insufficient permissions", pe.Message)
	assert.Equal(t, "stop", pe.Op)
}
