package allocation

import (
	"encoding/json"
	"fmt"
)

// DiscoveryNode identifies a candidate node for shard placement.
type DiscoveryNode struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Address    string            `json:"address"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ShardID identifies one shard of an index.
type ShardID struct {
	Index     string `json:"index"`
	IndexUUID string `json:"index_uuid"`
	ID        int    `json:"id"`
}

func (s ShardID) String() string {
	return fmt.Sprintf("[%s/%s][%d]", s.Index, s.IndexUUID, s.ID)
}

// UnassignedReason is the event that left a shard without an assigned node.
type UnassignedReason int

const (
	ReasonIndexCreated UnassignedReason = iota
	ReasonClusterRecovered
	ReasonNodeLeft
	ReasonAllocationFailed
	ReasonReplicaAdded
	ReasonRerouteCancelled
	ReasonReinitialized
	ReasonReallocatedReplica
)

var unassignedReasonNames = map[UnassignedReason]string{
	ReasonIndexCreated:       "INDEX_CREATED",
	ReasonClusterRecovered:   "CLUSTER_RECOVERED",
	ReasonNodeLeft:           "NODE_LEFT",
	ReasonAllocationFailed:   "ALLOCATION_FAILED",
	ReasonReplicaAdded:       "REPLICA_ADDED",
	ReasonRerouteCancelled:   "REROUTE_CANCELLED",
	ReasonReinitialized:      "REINITIALIZED",
	ReasonReallocatedReplica: "REALLOCATED_REPLICA",
}

func (r UnassignedReason) String() string {
	if name, ok := unassignedReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("UnassignedReason(%d)", int(r))
}

// ParseUnassignedReason parses a canonical unassigned reason name.
func ParseUnassignedReason(s string) (UnassignedReason, error) {
	for reason, name := range unassignedReasonNames {
		if name == s {
			return reason, nil
		}
	}
	return 0, fmt.Errorf("unknown unassigned reason %q", s)
}

// MarshalJSON encodes the reason as its canonical name.
func (r UnassignedReason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes the reason from its canonical name.
func (r *UnassignedReason) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseUnassignedReason(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// UnassignedInfo explains why a shard currently has no assigned node.
type UnassignedInfo struct {
	Reason  UnassignedReason `json:"reason"`
	Details string           `json:"details,omitempty"`
}
