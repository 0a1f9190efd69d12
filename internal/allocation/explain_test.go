package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	testNode = &DiscoveryNode{ID: "node-0", Name: "node-0", Address: "127.0.0.1:9300"}

	yesDecision = NewAggregateDecision(Decision{Type: DecisionYes, Decider: "yes label", Explanation: "yes please"})
	noDecision  = NewAggregateDecision(Decision{Type: DecisionNo, Decider: "no label", Explanation: "no thanks"})
)

func testStoreStatus(allocationID string, readError *StoreReadError) *StoreStatus {
	return &StoreStatus{
		NodeID:        "node-0",
		LegacyVersion: 42,
		AllocationID:  allocationID,
		Role:          StoreRolePrimary,
		ReadError:     readError,
	}
}

func assertExplanation(t *testing.T, ne *NodeExplanation, finalExplanation string,
	finalDecision FinalDecision, storeCopy StoreCopy) {
	t.Helper()
	assert.Equal(t, finalExplanation, ne.FinalExplanation)
	assert.Equal(t, finalDecision, ne.FinalDecision)
	assert.Equal(t, storeCopy, ne.StoreCopy)
}

func TestExplainNode(t *testing.T) {
	live := activeIDs("eggplant")

	t.Run("read error disqualifies despite YES deciders", func(t *testing.T) {
		status := testStoreStatus("eggplant", &StoreReadError{Kind: StoreErrorIO, Message: "stuff's broke, yo"})
		ne := ExplainNode(testNode, yesDecision, 1.5, status, "", live)
		assertExplanation(t, ne, "the copy of the shard cannot be read", FinalDecisionNo, StoreCopyIOError)
	})

	t.Run("no store means the shard can be assigned", func(t *testing.T) {
		ne := ExplainNode(testNode, yesDecision, 1.5, nil, "", live)
		assertExplanation(t, ne, "the shard can be assigned", FinalDecisionYes, StoreCopyNone)
	})

	t.Run("decider NO with no store", func(t *testing.T) {
		ne := ExplainNode(testNode, noDecision, 1.5, nil, "", live)
		assertExplanation(t, ne,
			"the shard cannot be assigned because one or more allocation decider returns a 'NO' decision",
			FinalDecisionNo, StoreCopyNone)
	})

	t.Run("decider NO with available copy", func(t *testing.T) {
		ne := ExplainNode(testNode, noDecision, 1.5, testStoreStatus("eggplant", nil), "", live)
		assertExplanation(t, ne,
			"the shard cannot be assigned because one or more allocation decider returns a 'NO' decision",
			FinalDecisionNo, StoreCopyAvailable)
	})

	t.Run("corrupt copy", func(t *testing.T) {
		status := testStoreStatus("eggplant", &StoreReadError{Kind: StoreErrorCorrupt, Message: "stuff's corrupt, yo"})
		ne := ExplainNode(testNode, yesDecision, 1.5, status, "", live)
		assertExplanation(t, ne, "the copy of the shard is corrupt", FinalDecisionNo, StoreCopyCorrupt)
	})

	t.Run("stale copy", func(t *testing.T) {
		ne := ExplainNode(testNode, yesDecision, 1.5, testStoreStatus("banana", nil), "", live)
		assertExplanation(t, ne, "the copy of the shard is stale, allocation ids do not match",
			FinalDecisionNo, StoreCopyStale)
	})

	t.Run("already assigned to this node", func(t *testing.T) {
		ne := ExplainNode(testNode, yesDecision, 1.5, testStoreStatus("eggplant", nil), "node-0", live)
		assertExplanation(t, ne, "the shard is already assigned to this node",
			FinalDecisionAlreadyAssigned, StoreCopyAvailable)
	})

	t.Run("assigned elsewhere with valid copy", func(t *testing.T) {
		ne := ExplainNode(testNode, yesDecision, 1.5, testStoreStatus("eggplant", nil), "node-9", live)
		assertExplanation(t, ne, "the shard can be assigned and the node contains a valid copy of the shard data",
			FinalDecisionYes, StoreCopyAvailable)
	})

	t.Run("valid copy and no assignment", func(t *testing.T) {
		ne := ExplainNode(testNode, yesDecision, 1.5, testStoreStatus("eggplant", nil), "", live)
		assertExplanation(t, ne, "the shard can be assigned and the node contains a valid copy of the shard data",
			FinalDecisionYes, StoreCopyAvailable)
	})
}

// TestExplainNodePrecedence builds inputs that satisfy several rules at once
// and checks that the strongest one always wins.
func TestExplainNodePrecedence(t *testing.T) {
	live := activeIDs("eggplant")

	t.Run("stale copy beats decider NO", func(t *testing.T) {
		ne := ExplainNode(testNode, noDecision, 1.5, testStoreStatus("banana", nil), "", live)
		assertExplanation(t, ne, "the copy of the shard is stale, allocation ids do not match",
			FinalDecisionNo, StoreCopyStale)
	})

	t.Run("read error beats decider NO and assignment", func(t *testing.T) {
		status := testStoreStatus("eggplant", &StoreReadError{Kind: StoreErrorIO, Message: "boom"})
		ne := ExplainNode(testNode, noDecision, 1.5, status, "node-0", live)
		assertExplanation(t, ne, "the copy of the shard cannot be read", FinalDecisionNo, StoreCopyIOError)
	})

	t.Run("corruption beats assignment", func(t *testing.T) {
		status := testStoreStatus("eggplant", &StoreReadError{Kind: StoreErrorCorrupt, Message: "boom"})
		ne := ExplainNode(testNode, yesDecision, 1.5, status, "node-0", live)
		assertExplanation(t, ne, "the copy of the shard is corrupt", FinalDecisionNo, StoreCopyCorrupt)
	})

	t.Run("decider NO beats assignment", func(t *testing.T) {
		ne := ExplainNode(testNode, noDecision, 1.5, testStoreStatus("eggplant", nil), "node-0", live)
		assertExplanation(t, ne,
			"the shard cannot be assigned because one or more allocation decider returns a 'NO' decision",
			FinalDecisionNo, StoreCopyAvailable)
	})

	t.Run("assignment beats plain YES wording", func(t *testing.T) {
		ne := ExplainNode(testNode, yesDecision, 1.5, nil, "node-0", live)
		assertExplanation(t, ne, "the shard is already assigned to this node",
			FinalDecisionAlreadyAssigned, StoreCopyNone)
	})
}

func TestExplainNodeCarriesInputsThrough(t *testing.T) {
	live := activeIDs("eggplant")
	status := testStoreStatus("eggplant", nil)

	ne := ExplainNode(testNode, yesDecision, 0.75, status, "", live)
	assert.Same(t, testNode, ne.Node)
	assert.Same(t, status, ne.StoreStatus)
	assert.Equal(t, 0.75, ne.Weight)
	assert.True(t, yesDecision.Equal(ne.Decision))
}
