package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"antcolony_demo/types"
)

func TestPeerLiveness(t *testing.T) {
	ns := NewNodeState("A", 5*time.Second)
	start := time.Now()

	assert.True(t, ns.Touch("B", start), "new peer")
	assert.False(t, ns.Touch("B", start.Add(time.Second)))
	assert.True(t, ns.Touch("C", start))
	assert.False(t, ns.Touch("A", start), "self is never a peer")

	assert.Equal(t, []types.NodeID{"B", "C"}, ns.LivePeers(start.Add(2*time.Second)))

	// C超时
	later := start.Add(5500 * time.Millisecond)
	assert.Equal(t, []types.NodeID{"B"}, ns.LivePeers(later))
	assert.Equal(t, []types.NodeID{"C"}, ns.Reap(later))
	assert.Empty(t, ns.Reap(later), "only newly dead peers are reported")
	assert.False(t, ns.IsLive("C", later))

	// 重新收到消息后恢复
	assert.True(t, ns.Touch("C", later))
	assert.Equal(t, []types.NodeID{"B", "C"}, ns.LivePeers(later))
}

func TestPeerIntensity(t *testing.T) {
	ns := NewNodeState("A", 5*time.Second)
	now := time.Now()

	ns.ObserveIntensity("B", "X", 0.5)
	assert.Equal(t, 0.0, ns.PeerIntensity("B", "X"), "unknown peer is ignored")

	ns.Touch("B", now)
	ns.ObserveIntensity("B", "X", 0.5)
	ns.ObserveIntensity("B", "X", 0.4)
	assert.Equal(t, 0.4, ns.PeerIntensity("B", "X"), "last report wins")

	peers := ns.Peers(now)
	assert.Len(t, peers, 1)
	assert.Equal(t, 0.4, peers[0].Intensities["X"])
	assert.True(t, peers[0].Alive)

	ns.ResetIntensities()
	assert.Equal(t, 0.0, ns.PeerIntensity("B", "X"))
}

func TestRounds(t *testing.T) {
	ns := NewNodeState("A", time.Second)
	assert.Equal(t, types.LTime(1), ns.NextRound())
	assert.False(t, ns.IsCurrentRound(types.LtimeZero))

	ns.ObserveRound(4)
	ns.ObserveRound(2)
	assert.Equal(t, types.LTime(5), ns.NextRound())

	ns.SetRound(5)
	assert.True(t, ns.IsCurrentRound(5))
	assert.False(t, ns.IsCurrentRound(4))
	assert.Equal(t, types.LTime(6), ns.NextRound())

	ns.SetProposal("X")
	assert.Equal(t, types.ValueID("X"), ns.Proposal())
}
