package cluster

import (
	"strings"
	"testing"

	"github.com/shardscope/shardscope/internal/allocation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState() *State {
	return &State{
		Nodes: []*allocation.DiscoveryNode{
			{ID: "node-0", Name: "data-0", Address: "10.0.0.1:9400"},
			{ID: "node-1", Name: "data-1", Address: "10.0.0.2:9400"},
		},
		Indices: []*IndexMetadata{
			{
				Name:   "docs",
				UUID:   "docs-uuid",
				Shards: 2,
				ActiveAllocationIDs: map[int][]string{
					0: {"eggplant"},
					1: {"aubergine"},
				},
			},
		},
		Routing: []*ShardRouting{
			{Index: "docs", Shard: 0, Primary: true, AssignedNodeID: "node-0"},
			{Index: "docs", Shard: 0, Primary: false,
				UnassignedInfo:       &allocation.UnassignedInfo{Reason: allocation.ReasonReplicaAdded, Details: "replica added"},
				RemainingDelayMillis: 30000},
			{Index: "docs", Shard: 1, Primary: true, AssignedNodeID: "node-1"},
		},
		Stores: []*ShardStore{
			{Index: "docs", Shard: 0, Status: allocation.StoreStatus{
				NodeID: "node-0", LegacyVersion: 42, AllocationID: "eggplant", Role: allocation.StoreRolePrimary}},
		},
		Verdicts: []*ShardVerdict{
			{Index: "docs", Shard: 0, NodeID: "node-0", Weight: 1.5, Decisions: []allocation.Decision{
				{Type: allocation.DecisionYes, Decider: "same_shard", Explanation: "no copy of this shard is already allocated to this node"},
			}},
			{Index: "docs", Shard: 0, NodeID: "node-1", Weight: -0.5, Decisions: []allocation.Decision{
				{Type: allocation.DecisionNo, Decider: "filter", Explanation: "node does not match index include filters"},
			}},
		},
	}
}

func TestStateValidate(t *testing.T) {
	require.NoError(t, testState().Validate())

	t.Run("duplicate node id", func(t *testing.T) {
		state := testState()
		state.Nodes = append(state.Nodes, &allocation.DiscoveryNode{ID: "node-0"})
		err := state.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate node id")
	})

	t.Run("routing against unknown index", func(t *testing.T) {
		state := testState()
		state.Routing = append(state.Routing, &ShardRouting{Index: "missing", Shard: 0, Primary: true,
			UnassignedInfo: &allocation.UnassignedInfo{Reason: allocation.ReasonIndexCreated}})
		err := state.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown index")
	})

	t.Run("routing against out of range shard", func(t *testing.T) {
		state := testState()
		state.Routing = append(state.Routing, &ShardRouting{Index: "docs", Shard: 7, Primary: true,
			UnassignedInfo: &allocation.UnassignedInfo{Reason: allocation.ReasonIndexCreated}})
		err := state.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "shard 7")
	})

	t.Run("assigned shard with unassigned info", func(t *testing.T) {
		state := testState()
		state.Routing[0].UnassignedInfo = &allocation.UnassignedInfo{Reason: allocation.ReasonIndexCreated}
		err := state.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "assigned but carries unassigned info")
	})

	t.Run("unassigned shard without unassigned info", func(t *testing.T) {
		state := testState()
		state.Routing[1].UnassignedInfo = nil
		err := state.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "carries no unassigned info")
	})

	t.Run("store report for unknown node", func(t *testing.T) {
		state := testState()
		state.Stores[0].Status.NodeID = "node-9"
		err := state.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown node")
	})
}

func TestLoadState(t *testing.T) {
	doc := `{
		"nodes": [{"id": "node-0", "name": "data-0", "address": "10.0.0.1:9400"}],
		"indices": [{"name": "docs", "uuid": "u1", "shards": 1,
			"active_allocation_ids": {"0": ["eggplant"]}}],
		"routing": [{"index": "docs", "shard": 0, "primary": true, "assigned_node_id": "node-0"}],
		"stores": [],
		"verdicts": []
	}`

	state, err := LoadState(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, state.Nodes, 1)
	require.NotNil(t, state.Index("docs"))
	assert.Equal(t, map[string]struct{}{"eggplant": {}}, state.Index("docs").ActiveIDSet(0))
}

func TestLoadStateRejectsBadDocuments(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		_, err := LoadState(strings.NewReader(`{"nodes": [`))
		assert.Error(t, err)
	})

	t.Run("unknown fields", func(t *testing.T) {
		_, err := LoadState(strings.NewReader(`{"nodez": []}`))
		assert.Error(t, err)
	})

	t.Run("inconsistent snapshot", func(t *testing.T) {
		_, err := LoadState(strings.NewReader(`{
			"nodes": [],
			"indices": [{"name": "docs", "uuid": "u1", "shards": 1}],
			"routing": [{"index": "docs", "shard": 0, "primary": true, "assigned_node_id": "ghost"}]
		}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown node")
	})
}

func TestStateLookups(t *testing.T) {
	state := testState()

	assert.Nil(t, state.Index("missing"))
	assert.Nil(t, state.FindRouting("docs", 1, false))
	assert.NotNil(t, state.FindRouting("docs", 0, false))

	status := state.FindStore("docs", 0, "node-0")
	require.NotNil(t, status)
	assert.Equal(t, "eggplant", status.AllocationID)
	assert.Nil(t, state.FindStore("docs", 0, "node-1"))

	decision, weight := state.FindVerdict("docs", 0, "node-1")
	assert.Equal(t, allocation.DecisionNo, decision.Type())
	assert.Equal(t, -0.5, weight)

	// Missing verdicts degrade to an empty (vacuously YES) aggregate.
	decision, weight = state.FindVerdict("docs", 1, "node-0")
	assert.Equal(t, allocation.DecisionYes, decision.Type())
	assert.Zero(t, decision.Len())
	assert.Zero(t, weight)
}

func TestStateSummarize(t *testing.T) {
	summary := testState().Summarize()
	assert.Equal(t, Summary{Nodes: 2, Indices: 1, Shards: 2, Stores: 1}, summary)
}
