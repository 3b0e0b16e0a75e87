package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"antcolony_demo/types"
)

func TestCandidatesSorted(t *testing.T) {
	rs := NewRoundState()
	assert.True(t, rs.AddCandidate("m"))
	assert.True(t, rs.AddCandidate("c"))
	assert.True(t, rs.AddCandidate("x"))
	assert.False(t, rs.AddCandidate("c"))

	assert.Equal(t, []types.ValueID{"c", "m", "x"}, rs.Candidates)
	assert.True(t, rs.IsCandidate("m"))
	assert.False(t, rs.IsCandidate("a"))
}

func TestRoundStateCopy(t *testing.T) {
	rs := NewRoundState()
	rs.ResetRound(3, time.Now())
	rs.AddProposer("A", "X")
	rs.Record = &types.ConsensusRecord{Value: "X", Round: 3, Contributors: []types.NodeID{"B"}}

	cp := rs.Copy()
	cp.AddProposer("B", "Y")
	cp.Record.Contributors[0] = "Z"

	assert.True(t, rs.IsProposer("A"))
	assert.False(t, rs.IsProposer("B"))
	assert.Equal(t, []types.ValueID{"X"}, rs.Candidates)
	assert.Equal(t, types.NodeID("B"), rs.Record.Contributors[0])
}

func TestStepIsActive(t *testing.T) {
	assert.True(t, RoundStepProposed.IsActive())
	assert.True(t, RoundStepExploring.IsActive())
	for _, s := range []RoundStepType{RoundStepIdle, RoundStepDecided, RoundStepCancelled, RoundStepTimedOut} {
		assert.False(t, s.IsActive(), s.String())
	}
}

func TestResetRound(t *testing.T) {
	rs := NewRoundState()
	rs.AddProposer("A", "X")
	rs.Record = &types.ConsensusRecord{Value: "X", Round: 1}

	now := time.Now()
	rs.ResetRound(2, now)
	assert.EqualValues(t, 2, rs.Round)
	assert.Equal(t, now, rs.StartTime)
	assert.Empty(t, rs.Proposers)
	assert.Empty(t, rs.Candidates)
	assert.Nil(t, rs.Record)
	assert.Contains(t, rs.StringShort(), "round=2")
}
