package cluster

import (
	"fmt"

	"github.com/shardscope/shardscope/internal/allocation"
)

// ExplainShard gathers the per-node inputs for one shard copy from the state
// snapshot and runs the allocation engine against every node, producing the
// aggregate explain result.
func ExplainShard(state *State, index string, shard int, primary bool) (*allocation.ClusterAllocationExplanation, error) {
	im := state.Index(index)
	if im == nil {
		return nil, fmt.Errorf("unknown index %q", index)
	}
	if shard < 0 || shard >= im.Shards {
		return nil, fmt.Errorf("index %q has no shard %d (%d shards)", index, shard, im.Shards)
	}
	routing := state.FindRouting(index, shard, primary)
	if routing == nil {
		copyName := "replica"
		if primary {
			copyName = "primary"
		}
		return nil, fmt.Errorf("no routing entry for %s copy of shard %s[%d]", copyName, index, shard)
	}

	live := im.ActiveIDSet(shard)

	nodeExplanations := make(map[string]*allocation.NodeExplanation, len(state.Nodes))
	for _, node := range state.Nodes {
		decision, weight := state.FindVerdict(index, shard, node.ID)
		storeStatus := state.FindStore(index, shard, node.ID)
		nodeExplanations[node.ID] = allocation.ExplainNode(node, decision, weight,
			storeStatus, routing.AssignedNodeID, live)
	}

	shardID := allocation.ShardID{Index: index, IndexUUID: im.UUID, ID: shard}
	return allocation.NewClusterAllocationExplanation(shardID, routing.Primary,
		routing.AssignedNodeID, routing.RemainingDelayMillis, routing.UnassignedInfo,
		nodeExplanations), nil
}
