package cluster

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitSchema(db))
	return NewRegistry(db)
}

func TestRegistryAddAndGetNode(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	node := &Node{
		Name:       "data-0",
		Address:    "http://10.0.0.1:9400",
		Attributes: map[string]string{"zone": "us-east-1a"},
	}
	require.NoError(t, registry.AddNode(ctx, node))
	require.NotEmpty(t, node.ID, "missing id must be minted")

	got, err := registry.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, node.ID, got.ID)
	assert.Equal(t, "data-0", got.Name)
	assert.Equal(t, "http://10.0.0.1:9400", got.Address)
	assert.Equal(t, map[string]string{"zone": "us-east-1a"}, got.Attributes)
	assert.Equal(t, HealthStatusUnknown, got.HealthStatus)
	assert.Nil(t, got.LastHealthCheck)
}

func TestRegistryGetNodeNotFound(t *testing.T) {
	registry := newTestRegistry(t)

	_, err := registry.GetNode(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node not found")
}

func TestRegistryListNodes(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	names := []string{"data-2", "data-0", "data-1"}
	for _, name := range names {
		require.NoError(t, registry.AddNode(ctx, &Node{Name: name, Address: "http://" + name + ":9400"}))
	}

	nodes, err := registry.ListNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "data-0", nodes[0].Name)
	assert.Equal(t, "data-1", nodes[1].Name)
	assert.Equal(t, "data-2", nodes[2].Name)
}

func TestRegistryDiscoveryNodes(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	node := &Node{ID: "node-0", Name: "data-0", Address: "http://10.0.0.1:9400",
		Attributes: map[string]string{"tier": "hot"}}
	require.NoError(t, registry.AddNode(ctx, node))

	discovered, err := registry.DiscoveryNodes(ctx)
	require.NoError(t, err)
	require.Len(t, discovered, 1)
	assert.Equal(t, "node-0", discovered[0].ID)
	assert.Equal(t, "data-0", discovered[0].Name)
	assert.Equal(t, map[string]string{"tier": "hot"}, discovered[0].Attributes)
}

func TestRegistryRemoveNode(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	node := &Node{Name: "data-0", Address: "http://10.0.0.1:9400"}
	require.NoError(t, registry.AddNode(ctx, node))
	require.NoError(t, registry.RemoveNode(ctx, node.ID))

	_, err := registry.GetNode(ctx, node.ID)
	assert.Error(t, err)

	err = registry.RemoveNode(ctx, node.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node not found")
}
