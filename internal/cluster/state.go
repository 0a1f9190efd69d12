package cluster

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shardscope/shardscope/internal/allocation"
)

// IndexMetadata describes one index in a state snapshot.
type IndexMetadata struct {
	Name   string `json:"name"`
	UUID   string `json:"uuid"`
	Shards int    `json:"shards"`
	// ActiveAllocationIDs maps shard number to the allocation ids of its
	// live copies.
	ActiveAllocationIDs map[int][]string `json:"active_allocation_ids"`
}

// ActiveIDSet returns the live allocation-id set for a shard.
func (im *IndexMetadata) ActiveIDSet(shard int) map[string]struct{} {
	ids := im.ActiveAllocationIDs[shard]
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// ShardRouting is the assignment state of one shard copy.
type ShardRouting struct {
	Index                string                     `json:"index"`
	Shard                int                        `json:"shard"`
	Primary              bool                       `json:"primary"`
	AssignedNodeID       string                     `json:"assigned_node_id,omitempty"`
	UnassignedInfo       *allocation.UnassignedInfo `json:"unassigned_info,omitempty"`
	RemainingDelayMillis int64                      `json:"remaining_delay_millis,omitempty"`
}

// ShardStore is a store collector report for one shard copy on one node.
type ShardStore struct {
	Index  string                 `json:"index"`
	Shard  int                    `json:"shard"`
	Status allocation.StoreStatus `json:"status"`
}

// ShardVerdict carries the decider verdicts and balancer weight for one
// shard/node pair. How deciders compute these is not this service's concern;
// the snapshot transports their output.
type ShardVerdict struct {
	Index     string                `json:"index"`
	Shard     int                   `json:"shard"`
	NodeID    string                `json:"node_id"`
	Weight    float64               `json:"weight"`
	Decisions []allocation.Decision `json:"decisions"`
}

// State is a consistent snapshot of the cluster allocation state: nodes,
// index metadata, shard routing, store reports and decider verdicts.
// Immutable once installed; explain requests read it without locking.
type State struct {
	Nodes    []*allocation.DiscoveryNode `json:"nodes"`
	Indices  []*IndexMetadata            `json:"indices"`
	Routing  []*ShardRouting             `json:"routing"`
	Stores   []*ShardStore               `json:"stores"`
	Verdicts []*ShardVerdict             `json:"verdicts"`
}

// LoadState decodes and validates a state snapshot document.
func LoadState(r io.Reader) (*State, error) {
	var state State
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode cluster state: %w", err)
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &state, nil
}

// Validate checks the internal consistency of the snapshot so that explain
// requests against it cannot hit contract violations later.
func (s *State) Validate() error {
	nodeIDs := make(map[string]struct{}, len(s.Nodes))
	for _, node := range s.Nodes {
		if node.ID == "" {
			return fmt.Errorf("invalid cluster state: node with empty id")
		}
		if _, dup := nodeIDs[node.ID]; dup {
			return fmt.Errorf("invalid cluster state: duplicate node id %q", node.ID)
		}
		nodeIDs[node.ID] = struct{}{}
	}

	indices := make(map[string]*IndexMetadata, len(s.Indices))
	for _, im := range s.Indices {
		if im.Name == "" || im.UUID == "" {
			return fmt.Errorf("invalid cluster state: index with empty name or uuid")
		}
		if _, dup := indices[im.Name]; dup {
			return fmt.Errorf("invalid cluster state: duplicate index %q", im.Name)
		}
		if im.Shards <= 0 {
			return fmt.Errorf("invalid cluster state: index %q has %d shards", im.Name, im.Shards)
		}
		indices[im.Name] = im
	}

	for _, routing := range s.Routing {
		im, ok := indices[routing.Index]
		if !ok {
			return fmt.Errorf("invalid cluster state: routing references unknown index %q", routing.Index)
		}
		if routing.Shard < 0 || routing.Shard >= im.Shards {
			return fmt.Errorf("invalid cluster state: routing references shard %d of index %q (%d shards)",
				routing.Shard, routing.Index, im.Shards)
		}
		if routing.AssignedNodeID != "" {
			if _, ok := nodeIDs[routing.AssignedNodeID]; !ok {
				return fmt.Errorf("invalid cluster state: shard %s[%d] assigned to unknown node %q",
					routing.Index, routing.Shard, routing.AssignedNodeID)
			}
			if routing.UnassignedInfo != nil {
				return fmt.Errorf("invalid cluster state: shard %s[%d] is assigned but carries unassigned info",
					routing.Index, routing.Shard)
			}
		} else if routing.UnassignedInfo == nil {
			return fmt.Errorf("invalid cluster state: shard %s[%d] is unassigned but carries no unassigned info",
				routing.Index, routing.Shard)
		}
		if routing.RemainingDelayMillis < 0 {
			return fmt.Errorf("invalid cluster state: shard %s[%d] has negative remaining delay",
				routing.Index, routing.Shard)
		}
	}

	for _, store := range s.Stores {
		if _, ok := indices[store.Index]; !ok {
			return fmt.Errorf("invalid cluster state: store report references unknown index %q", store.Index)
		}
		if _, ok := nodeIDs[store.Status.NodeID]; !ok {
			return fmt.Errorf("invalid cluster state: store report references unknown node %q", store.Status.NodeID)
		}
	}

	for _, verdict := range s.Verdicts {
		if _, ok := indices[verdict.Index]; !ok {
			return fmt.Errorf("invalid cluster state: verdict references unknown index %q", verdict.Index)
		}
		if _, ok := nodeIDs[verdict.NodeID]; !ok {
			return fmt.Errorf("invalid cluster state: verdict references unknown node %q", verdict.NodeID)
		}
	}

	return nil
}

// Index returns the metadata for an index, nil if unknown.
func (s *State) Index(name string) *IndexMetadata {
	for _, im := range s.Indices {
		if im.Name == name {
			return im
		}
	}
	return nil
}

// FindRouting returns the routing entry for a shard copy, nil if absent.
func (s *State) FindRouting(index string, shard int, primary bool) *ShardRouting {
	for _, routing := range s.Routing {
		if routing.Index == index && routing.Shard == shard && routing.Primary == primary {
			return routing
		}
	}
	return nil
}

// FindStore returns the store report for a shard on a node, nil if the node
// reported no copy.
func (s *State) FindStore(index string, shard int, nodeID string) *allocation.StoreStatus {
	for _, store := range s.Stores {
		if store.Index == index && store.Shard == shard && store.Status.NodeID == nodeID {
			status := store.Status
			return &status
		}
	}
	return nil
}

// FindVerdict returns the decider verdicts and weight for a shard/node pair.
// A missing entry means no decider vetoed: an empty aggregate and zero
// weight.
func (s *State) FindVerdict(index string, shard int, nodeID string) (allocation.AggregateDecision, float64) {
	for _, verdict := range s.Verdicts {
		if verdict.Index == index && verdict.Shard == shard && verdict.NodeID == nodeID {
			return allocation.NewAggregateDecision(verdict.Decisions...), verdict.Weight
		}
	}
	return allocation.NewAggregateDecision(), 0
}

// Summary is the condensed view of a snapshot returned by the API.
type Summary struct {
	Nodes   int `json:"nodes"`
	Indices int `json:"indices"`
	Shards  int `json:"shards"`
	Stores  int `json:"stores"`
}

// Summarize counts the snapshot's contents.
func (s *State) Summarize() Summary {
	shards := 0
	for _, im := range s.Indices {
		shards += im.Shards
	}
	return Summary{
		Nodes:   len(s.Nodes),
		Indices: len(s.Indices),
		Shards:  shards,
		Stores:  len(s.Stores),
	}
}
