package cluster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingObserver captures what the health checker reports.
type recordingObserver struct {
	healthy     int
	degraded    int
	unavailable int
	checks      []string
}

func (o *recordingObserver) UpdateNodeHealth(healthy, degraded, unavailable int) {
	o.healthy, o.degraded, o.unavailable = healthy, degraded, unavailable
}

func (o *recordingObserver) RecordHealthCheck(status string, duration time.Duration) {
	o.checks = append(o.checks, status)
}

func TestCheckNodeHealth(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	node := &Node{Name: "data-0", Address: backend.URL}
	require.NoError(t, registry.AddNode(ctx, node))

	result, err := registry.CheckNodeHealth(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, HealthStatusHealthy, result.Status)

	got, err := registry.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, HealthStatusHealthy, got.HealthStatus)
	assert.NotNil(t, got.LastSeen)
}

func TestCheckAllNodesReportsToObserver(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	require.NoError(t, registry.AddNode(ctx, &Node{Name: "data-0", Address: backend.URL}))
	// Nothing listens on port 1, so this node is unreachable.
	require.NoError(t, registry.AddNode(ctx, &Node{Name: "data-1", Address: "http://127.0.0.1:1"}))

	observer := &recordingObserver{}
	results := registry.CheckAllNodes(ctx, observer)
	require.Len(t, results, 2)

	assert.Equal(t, 1, observer.healthy)
	assert.Equal(t, 0, observer.degraded)
	assert.Equal(t, 1, observer.unavailable)
	assert.ElementsMatch(t, []string{HealthStatusHealthy, HealthStatusUnavailable}, observer.checks)
}

func TestCheckAllNodesNilObserver(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.AddNode(ctx, &Node{Name: "data-0", Address: "http://127.0.0.1:1"}))

	require.NotPanics(t, func() {
		results := registry.CheckAllNodes(ctx, nil)
		require.Len(t, results, 1)
		assert.Equal(t, HealthStatusUnavailable, results[0].Status)
	})
}
