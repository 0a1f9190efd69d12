package cluster

import (
	"testing"

	"github.com/shardscope/shardscope/internal/allocation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplainShardAssignedPrimary(t *testing.T) {
	state := testState()

	cae, err := ExplainShard(state, "docs", 0, true)
	require.NoError(t, err)

	assert.Equal(t, allocation.ShardID{Index: "docs", IndexUUID: "docs-uuid", ID: 0}, cae.Shard())
	assert.True(t, cae.IsPrimary())
	assert.True(t, cae.IsAssigned())
	assert.Equal(t, "node-0", cae.AssignedNodeID())
	assert.Nil(t, cae.UnassignedInfo())
	require.Len(t, cae.NodeExplanations(), 2)

	// node-0 holds the copy and is the assigned node.
	ne0 := cae.NodeExplanations()["node-0"]
	require.NotNil(t, ne0)
	assert.Equal(t, allocation.FinalDecisionAlreadyAssigned, ne0.FinalDecision)
	assert.Equal(t, allocation.StoreCopyAvailable, ne0.StoreCopy)
	assert.Equal(t, 1.5, ne0.Weight)
	require.NotNil(t, ne0.StoreStatus)
	assert.Equal(t, "eggplant", ne0.StoreStatus.AllocationID)

	// node-1 has no copy and a decider NO.
	ne1 := cae.NodeExplanations()["node-1"]
	require.NotNil(t, ne1)
	assert.Equal(t, allocation.FinalDecisionNo, ne1.FinalDecision)
	assert.Equal(t, allocation.StoreCopyNone, ne1.StoreCopy)
	assert.Nil(t, ne1.StoreStatus)
}

func TestExplainShardUnassignedReplica(t *testing.T) {
	state := testState()

	cae, err := ExplainShard(state, "docs", 0, false)
	require.NoError(t, err)

	assert.False(t, cae.IsPrimary())
	assert.False(t, cae.IsAssigned())
	assert.Empty(t, cae.AssignedNodeID())
	assert.Equal(t, int64(30000), cae.RemainingDelayMillis())
	require.NotNil(t, cae.UnassignedInfo())
	assert.Equal(t, allocation.ReasonReplicaAdded, cae.UnassignedInfo().Reason)

	// No assigned node, so node-0's valid copy yields the affirmative
	// "valid copy" wording.
	ne0 := cae.NodeExplanations()["node-0"]
	require.NotNil(t, ne0)
	assert.Equal(t, allocation.FinalDecisionYes, ne0.FinalDecision)
	assert.Equal(t, "the shard can be assigned and the node contains a valid copy of the shard data", ne0.FinalExplanation)
}

func TestExplainShardStaleStore(t *testing.T) {
	state := testState()
	// The copy on disk belongs to a superseded allocation generation.
	state.Stores[0].Status.AllocationID = "banana"

	cae, err := ExplainShard(state, "docs", 0, true)
	require.NoError(t, err)

	ne0 := cae.NodeExplanations()["node-0"]
	require.NotNil(t, ne0)
	assert.Equal(t, allocation.FinalDecisionNo, ne0.FinalDecision)
	assert.Equal(t, allocation.StoreCopyStale, ne0.StoreCopy)
}

func TestExplainShardErrors(t *testing.T) {
	state := testState()

	t.Run("unknown index", func(t *testing.T) {
		_, err := ExplainShard(state, "missing", 0, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown index")
	})

	t.Run("shard out of range", func(t *testing.T) {
		_, err := ExplainShard(state, "docs", 9, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no shard 9")
	})

	t.Run("missing routing entry", func(t *testing.T) {
		_, err := ExplainShard(state, "docs", 1, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no routing entry for replica copy")
	})
}

func TestExplainShardRendersJSON(t *testing.T) {
	state := testState()

	cae, err := ExplainShard(state, "docs", 0, true)
	require.NoError(t, err)

	rendered, err := cae.RenderJSON()
	require.NoError(t, err)
	assert.Contains(t, string(rendered), `"final_decision":"ALREADY_ASSIGNED"`)
	assert.Contains(t, string(rendered), `"shard":{"index":"docs","index_uuid":"docs-uuid","id":0,"primary":true}`)
}
