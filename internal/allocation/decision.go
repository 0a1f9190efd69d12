package allocation

import (
	"encoding/json"
	"fmt"
)

// DecisionType is a single allocation decider's verdict for a shard/node pair.
type DecisionType int

const (
	DecisionYes DecisionType = iota
	DecisionNo
	DecisionThrottle
)

// String returns the canonical name used on the wire and in rendered output.
func (t DecisionType) String() string {
	switch t {
	case DecisionYes:
		return "YES"
	case DecisionNo:
		return "NO"
	case DecisionThrottle:
		return "THROTTLE"
	default:
		return fmt.Sprintf("DecisionType(%d)", int(t))
	}
}

// ParseDecisionType parses a canonical decision type name.
func ParseDecisionType(s string) (DecisionType, error) {
	switch s {
	case "YES":
		return DecisionYes, nil
	case "NO":
		return DecisionNo, nil
	case "THROTTLE":
		return DecisionThrottle, nil
	default:
		return 0, fmt.Errorf("unknown decision type %q", s)
	}
}

// MarshalJSON encodes the type as its canonical name.
func (t DecisionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes the type from its canonical name.
func (t *DecisionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDecisionType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Decision is one decider's verdict: which decider voted, what it voted, and
// why. Immutable once created.
type Decision struct {
	Type        DecisionType `json:"type"`
	Decider     string       `json:"decider"`
	Explanation string       `json:"explanation"`
}

// AggregateDecision is an ordered sequence of decider verdicts for one
// shard/node pair. Order is insertion order and is significant for equality
// and rendering; the effective type depends only on the set of verdict types
// present.
type AggregateDecision struct {
	decisions []Decision
}

// NewAggregateDecision builds an aggregate from the given verdicts in order.
func NewAggregateDecision(decisions ...Decision) AggregateDecision {
	copied := make([]Decision, len(decisions))
	copy(copied, decisions)
	return AggregateDecision{decisions: copied}
}

// Decisions returns the contained verdicts in insertion order.
func (a AggregateDecision) Decisions() []Decision {
	out := make([]Decision, len(a.decisions))
	copy(out, a.decisions)
	return out
}

// Len returns the number of contained verdicts.
func (a AggregateDecision) Len() int {
	return len(a.decisions)
}

// Type derives the effective verdict: NO wins over THROTTLE, THROTTLE wins
// over YES. An empty aggregate is YES.
func (a AggregateDecision) Type() DecisionType {
	effective := DecisionYes
	for _, d := range a.decisions {
		switch d.Type {
		case DecisionNo:
			return DecisionNo
		case DecisionThrottle:
			effective = DecisionThrottle
		}
	}
	return effective
}

// Equal reports whether both aggregates contain the same verdicts in the same
// order. Permuting the order makes aggregates unequal even when the verdict
// multisets match.
func (a AggregateDecision) Equal(other AggregateDecision) bool {
	if len(a.decisions) != len(other.decisions) {
		return false
	}
	for i, d := range a.decisions {
		if d != other.decisions[i] {
			return false
		}
	}
	return true
}
