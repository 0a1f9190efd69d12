package allocation

import "fmt"

// FinalDecision is the totalized outcome of explaining one shard/node pair.
type FinalDecision int

const (
	FinalDecisionYes FinalDecision = iota
	FinalDecisionNo
	FinalDecisionAlreadyAssigned
)

var finalDecisionNames = map[FinalDecision]string{
	FinalDecisionYes:             "YES",
	FinalDecisionNo:              "NO",
	FinalDecisionAlreadyAssigned: "ALREADY_ASSIGNED",
}

func (d FinalDecision) String() string {
	if name, ok := finalDecisionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("FinalDecision(%d)", int(d))
}

// The fixed explanation strings. Consumers match on these literally, so they
// must not change.
const (
	explanationCannotRead = "the copy of the shard cannot be read"
	explanationCorrupt    = "the copy of the shard is corrupt"
	explanationStale      = "the copy of the shard is stale, allocation ids do not match"
	explanationDeciderNo  = "the shard cannot be assigned because one or more allocation decider returns a 'NO' decision"
	explanationAssigned   = "the shard is already assigned to this node"
	explanationCanAssign  = "the shard can be assigned"
	explanationValidCopy  = "the shard can be assigned and the node contains a valid copy of the shard data"
)

// NodeExplanation is the explain result for one shard/node pair. It is built
// once per explain request and read-only afterwards; it is owned exclusively
// by the ClusterAllocationExplanation that contains it.
type NodeExplanation struct {
	Node             *DiscoveryNode
	Decision         AggregateDecision
	Weight           float64
	StoreStatus      *StoreStatus
	FinalDecision    FinalDecision
	FinalExplanation string
	StoreCopy        StoreCopy
}

// ExplainNode fuses a node's decider verdict, store classification and
// assignment status into a final decision and explanation.
//
// The precedence is strict and the first matching rule wins: store read
// failures disqualify the node regardless of decider opinion, a decider NO is
// the next-strongest signal, "already assigned" is reported only once read and
// decider problems are ruled out, and the two affirmative outcomes differ only
// in whether store information exists at all.
//
// weight and storeStatus are carried through unchanged for rendering; inputs
// are treated as already-validated data and no errors are signaled.
func ExplainNode(node *DiscoveryNode, decision AggregateDecision, weight float64,
	storeStatus *StoreStatus, assignedNodeID string, activeAllocationIDs map[string]struct{}) *NodeExplanation {

	storeCopy := ClassifyStoreCopy(storeStatus, activeAllocationIDs)

	var finalDecision FinalDecision
	var finalExplanation string
	switch {
	case storeCopy == StoreCopyIOError:
		finalDecision, finalExplanation = FinalDecisionNo, explanationCannotRead
	case storeCopy == StoreCopyCorrupt:
		finalDecision, finalExplanation = FinalDecisionNo, explanationCorrupt
	case storeCopy == StoreCopyStale:
		finalDecision, finalExplanation = FinalDecisionNo, explanationStale
	case decision.Type() == DecisionNo:
		finalDecision, finalExplanation = FinalDecisionNo, explanationDeciderNo
	case assignedNodeID != "" && assignedNodeID == node.ID:
		finalDecision, finalExplanation = FinalDecisionAlreadyAssigned, explanationAssigned
	case storeCopy == StoreCopyNone:
		finalDecision, finalExplanation = FinalDecisionYes, explanationCanAssign
	default:
		finalDecision, finalExplanation = FinalDecisionYes, explanationValidCopy
	}

	return &NodeExplanation{
		Node:             node,
		Decision:         decision,
		Weight:           weight,
		StoreStatus:      storeStatus,
		FinalDecision:    finalDecision,
		FinalExplanation: finalExplanation,
		StoreCopy:        storeCopy,
	}
}
