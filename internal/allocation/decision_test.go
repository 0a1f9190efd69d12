package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateDecisionEffectiveType(t *testing.T) {
	yes := Decision{Type: DecisionYes, Decider: "yes label", Explanation: "yes please"}
	no := Decision{Type: DecisionNo, Decider: "no label", Explanation: "no thanks"}
	throttle := Decision{Type: DecisionThrottle, Decider: "throttle label", Explanation: "wait a sec"}

	tests := []struct {
		name      string
		decisions []Decision
		expected  DecisionType
	}{
		{"empty aggregate is vacuously YES", nil, DecisionYes},
		{"all YES", []Decision{yes, yes}, DecisionYes},
		{"NO wins over everything", []Decision{yes, throttle, no}, DecisionNo},
		{"NO wins regardless of position", []Decision{no, yes, throttle}, DecisionNo},
		{"THROTTLE wins over YES", []Decision{yes, throttle, yes}, DecisionThrottle},
		{"single THROTTLE", []Decision{throttle}, DecisionThrottle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregateDecision(tt.decisions...)
			assert.Equal(t, tt.expected, agg.Type())
		})
	}
}

func TestAggregateDecisionTypeIsNoIffAnyNo(t *testing.T) {
	// The effective type is NO exactly when at least one contained
	// decision is NO.
	combos := [][]Decision{
		{},
		{{Type: DecisionYes, Decider: "a", Explanation: "x"}},
		{{Type: DecisionThrottle, Decider: "b", Explanation: "y"}},
		{{Type: DecisionYes, Decider: "a", Explanation: "x"}, {Type: DecisionNo, Decider: "c", Explanation: "z"}},
		{{Type: DecisionNo, Decider: "c", Explanation: "z"}, {Type: DecisionThrottle, Decider: "b", Explanation: "y"}},
	}
	for _, decisions := range combos {
		agg := NewAggregateDecision(decisions...)
		containsNo := false
		for _, d := range decisions {
			if d.Type == DecisionNo {
				containsNo = true
			}
		}
		assert.Equal(t, containsNo, agg.Type() == DecisionNo)
	}
}

func TestAggregateDecisionEquality(t *testing.T) {
	no := Decision{Type: DecisionNo, Decider: "no label", Explanation: "because I said no"}
	yes := Decision{Type: DecisionYes, Decider: "yes label", Explanation: "yes please"}
	throttle := Decision{Type: DecisionThrottle, Decider: "throttle label", Explanation: "wait a sec"}

	d1 := NewAggregateDecision(no, yes, throttle)
	d2 := NewAggregateDecision(no, yes, throttle)
	assert.True(t, d1.Equal(d2))
	assert.True(t, d2.Equal(d1))

	// Same multiset, different order: unequal.
	permuted := NewAggregateDecision(yes, no, throttle)
	assert.False(t, d1.Equal(permuted))

	// Different length.
	shorter := NewAggregateDecision(no, yes)
	assert.False(t, d1.Equal(shorter))

	// Differing reason text.
	altered := NewAggregateDecision(no, Decision{Type: DecisionYes, Decider: "yes label", Explanation: "changed"}, throttle)
	assert.False(t, d1.Equal(altered))
}

func TestAggregateDecisionImmutability(t *testing.T) {
	input := []Decision{
		{Type: DecisionYes, Decider: "yes label", Explanation: "yes please"},
	}
	agg := NewAggregateDecision(input...)

	// Mutating the input slice after construction must not leak in.
	input[0] = Decision{Type: DecisionNo, Decider: "mutated", Explanation: "mutated"}
	require.Equal(t, 1, agg.Len())
	assert.Equal(t, DecisionYes, agg.Type())

	// Mutating the returned slice must not affect the aggregate either.
	out := agg.Decisions()
	out[0] = Decision{Type: DecisionNo, Decider: "mutated", Explanation: "mutated"}
	assert.Equal(t, DecisionYes, agg.Type())
}

func TestDecisionTypeNames(t *testing.T) {
	assert.Equal(t, "YES", DecisionYes.String())
	assert.Equal(t, "NO", DecisionNo.String())
	assert.Equal(t, "THROTTLE", DecisionThrottle.String())

	for _, name := range []string{"YES", "NO", "THROTTLE"} {
		parsed, err := ParseDecisionType(name)
		require.NoError(t, err)
		assert.Equal(t, name, parsed.String())
	}

	_, err := ParseDecisionType("MAYBE")
	assert.Error(t, err)
}
