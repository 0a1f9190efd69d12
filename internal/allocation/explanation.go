package allocation

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ClusterAllocationExplanation is the complete explain result for one shard:
// its identity and assignment state plus one NodeExplanation per candidate
// node. Immutable once constructed; safe for concurrent readers.
type ClusterAllocationExplanation struct {
	shard                ShardID
	primary              bool
	assignedNodeID       string
	remainingDelayMillis int64
	unassignedInfo       *UnassignedInfo
	nodeExplanations     map[string]*NodeExplanation
}

// NewClusterAllocationExplanation builds the aggregate explain result.
// assignedNodeID empty means the shard is unassigned, in which case
// unassignedInfo must be present; an assigned shard must not carry
// unassignedInfo. Violating either is a programmer error in the orchestrator
// and panics rather than being masked.
func NewClusterAllocationExplanation(shard ShardID, primary bool, assignedNodeID string,
	remainingDelayMillis int64, unassignedInfo *UnassignedInfo,
	nodeExplanations map[string]*NodeExplanation) *ClusterAllocationExplanation {

	if assignedNodeID != "" && unassignedInfo != nil {
		panic(fmt.Sprintf("shard %s is assigned to %q but carries unassigned info", shard, assignedNodeID))
	}
	if assignedNodeID == "" && unassignedInfo == nil {
		panic(fmt.Sprintf("shard %s is unassigned but carries no unassigned info", shard))
	}
	if remainingDelayMillis < 0 {
		panic(fmt.Sprintf("shard %s has negative remaining delay %d", shard, remainingDelayMillis))
	}

	return &ClusterAllocationExplanation{
		shard:                shard,
		primary:              primary,
		assignedNodeID:       assignedNodeID,
		remainingDelayMillis: remainingDelayMillis,
		unassignedInfo:       unassignedInfo,
		nodeExplanations:     nodeExplanations,
	}
}

// Shard returns the shard identity.
func (c *ClusterAllocationExplanation) Shard() ShardID { return c.shard }

// IsPrimary reports whether the explained copy is the primary.
func (c *ClusterAllocationExplanation) IsPrimary() bool { return c.primary }

// IsAssigned reports whether the shard currently has an assigned node.
func (c *ClusterAllocationExplanation) IsAssigned() bool { return c.assignedNodeID != "" }

// AssignedNodeID returns the currently assigned node id, empty if unassigned.
func (c *ClusterAllocationExplanation) AssignedNodeID() string { return c.assignedNodeID }

// RemainingDelayMillis returns the delay left before a delayed-allocation
// timer fires. Meaningful only while unassigned.
func (c *ClusterAllocationExplanation) RemainingDelayMillis() int64 { return c.remainingDelayMillis }

// UnassignedInfo returns why the shard is unassigned, nil if assigned.
func (c *ClusterAllocationExplanation) UnassignedInfo() *UnassignedInfo { return c.unassignedInfo }

// NodeExplanations returns the per-node results keyed by node id. Callers
// must treat the map as read-only.
func (c *ClusterAllocationExplanation) NodeExplanations() map[string]*NodeExplanation {
	return c.nodeExplanations
}

// nodeIDs returns the explanation map keys in sorted order so that encoding
// and rendering are deterministic.
func (c *ClusterAllocationExplanation) nodeIDs() []string {
	ids := make([]string, 0, len(c.nodeExplanations))
	for id := range c.nodeExplanations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// JSON projection types. Field order here is the emission order and is part
// of the external contract; do not reorder or rename.

type shardJSON struct {
	Index     string `json:"index"`
	IndexUUID string `json:"index_uuid"`
	ID        int    `json:"id"`
	Primary   bool   `json:"primary"`
}

type unassignedInfoJSON struct {
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}

type storeJSON struct {
	ShardCopy      string `json:"shard_copy"`
	StoreException string `json:"store_exception,omitempty"`
}

type decisionJSON struct {
	Decider     string `json:"decider"`
	Decision    string `json:"decision"`
	Explanation string `json:"explanation"`
}

type nodeExplanationJSON struct {
	NodeName         string            `json:"node_name"`
	NodeAttributes   map[string]string `json:"node_attributes"`
	Store            storeJSON         `json:"store"`
	FinalDecision    string            `json:"final_decision"`
	FinalExplanation string            `json:"final_explanation"`
	Weight           float64           `json:"weight"`
	Decisions        []decisionJSON    `json:"decisions"`
}

type explanationJSON struct {
	Shard          shardJSON                      `json:"shard"`
	Assigned       bool                           `json:"assigned"`
	AssignedNodeID string                         `json:"assigned_node_id,omitempty"`
	UnassignedInfo *unassignedInfoJSON            `json:"unassigned_info,omitempty"`
	Nodes          map[string]nodeExplanationJSON `json:"nodes"`
}

// RenderJSON produces the deterministic structured rendering of the
// explanation. Map keys are emitted sorted; everything else follows the
// declared field order.
func (c *ClusterAllocationExplanation) RenderJSON() ([]byte, error) {
	out := explanationJSON{
		Shard: shardJSON{
			Index:     c.shard.Index,
			IndexUUID: c.shard.IndexUUID,
			ID:        c.shard.ID,
			Primary:   c.primary,
		},
		Assigned:       c.IsAssigned(),
		AssignedNodeID: c.assignedNodeID,
		Nodes:          make(map[string]nodeExplanationJSON, len(c.nodeExplanations)),
	}
	if c.unassignedInfo != nil {
		out.UnassignedInfo = &unassignedInfoJSON{
			Reason:  c.unassignedInfo.Reason.String(),
			Details: c.unassignedInfo.Details,
		}
	}

	for id, ne := range c.nodeExplanations {
		attrs := ne.Node.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		rendered := nodeExplanationJSON{
			NodeName:         ne.Node.Name,
			NodeAttributes:   attrs,
			Store:            storeJSON{ShardCopy: ne.StoreCopy.String()},
			FinalDecision:    ne.FinalDecision.String(),
			FinalExplanation: ne.FinalExplanation,
			Weight:           ne.Weight,
			Decisions:        make([]decisionJSON, 0, ne.Decision.Len()),
		}
		if ne.StoreStatus != nil && ne.StoreStatus.ReadError != nil {
			rendered.Store.StoreException = ne.StoreStatus.ReadError.Message
		}
		for _, d := range ne.Decision.Decisions() {
			rendered.Decisions = append(rendered.Decisions, decisionJSON{
				Decider:     d.Decider,
				Decision:    d.Type.String(),
				Explanation: d.Explanation,
			})
		}
		out.Nodes[id] = rendered
	}

	return json.Marshal(out)
}
