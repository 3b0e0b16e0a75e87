package rpc_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"antcolony_demo/config"
	"antcolony_demo/gossip"
	"antcolony_demo/node"
	"antcolony_demo/rpc"
	"antcolony_demo/types"
)

func startTestNode(t *testing.T) (*node.Node, *gossip.MemNetwork) {
	network := gossip.NewMemNetwork(gossip.WithManualDelivery())
	cfg := config.TestConfig()
	cfg.NodeID = "A"

	n, err := node.NewNode(cfg, log.TestingLogger(), node.WithTransportProvider(
		func(cfg *config.Config, self types.NodeID, options ...gossip.TransportOption) gossip.Transport {
			return network.NewTransport(self, options...)
		}))
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(func() { n.Stop() }) // nolint: errcheck
	return n, network
}

func TestProposeAndCancel(t *testing.T) {
	startTestNode(t)
	ctx := &rpctypes.Context{}

	status, err := rpc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.NodeID("A"), status.NodeInfo.ID)
	assert.Equal(t, "Idle", status.Step)

	res, err := rpc.Propose(ctx, "X")
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Round)
	assert.Equal(t, types.ValueID("X"), res.Value)

	_, err = rpc.Propose(ctx, "Y")
	assert.Error(t, err, "上一轮没有结束")

	round, err := rpc.Round(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Exploring", round.Step)
	require.Len(t, round.Candidates, 1)
	assert.InDelta(t, 0.3, round.Candidates[0].Intensity, 1e-9)
	assert.Equal(t, []rpc.ResultProposer{{Proposer: "A", Value: "X"}}, round.Proposers)

	ph, err := rpc.Pheromones(ctx)
	require.NoError(t, err)
	require.Len(t, ph.Pheromones, 1)

	cancel, err := rpc.Cancel(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cancel.Round)
	_, err = rpc.Cancel(ctx)
	assert.Error(t, err)

	status, err = rpc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Cancelled", status.Step)
	assert.Equal(t, types.OutcomeCancelled, status.LastOutcome)
}

func TestProposeLongValue(t *testing.T) {
	startTestNode(t)

	value := strings.Repeat("v", types.MaxValueIDLength+1)
	res, err := rpc.Propose(&rpctypes.Context{}, value)
	require.NoError(t, err)
	assert.Equal(t, types.ValueIDFromBytes([]byte(value)), res.Value)

	_, err = rpc.Propose(&rpctypes.Context{}, "")
	assert.Error(t, err)
}

func TestDecisionsAndPeers(t *testing.T) {
	startTestNode(t)
	ctx := &rpctypes.Context{}

	_, err := rpc.Decisions(ctx, -1)
	assert.Error(t, err)

	decisions, err := rpc.Decisions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, decisions.Decisions)

	peers, err := rpc.Peers(ctx)
	require.NoError(t, err)
	assert.Empty(t, peers.Peers)
}

// 客户端用tmjson解码rpc的结果
func TestResultsDecodeWithTMJSON(t *testing.T) {
	_, network := startTestNode(t)
	ctx := &rpctypes.Context{}

	peer := network.NewTransport("B")
	require.NoError(t, peer.Start())
	t.Cleanup(func() { peer.Stop() }) // nolint: errcheck
	require.NoError(t, peer.Broadcast(&gossip.Packet{
		Type:      gossip.PacketProposalAnnounce,
		Round:     1,
		Timestamp: time.Now(),
		Value:     "Y",
		Intensity: 0.3,
	}))
	network.Drain()

	round, err := rpc.Round(ctx)
	require.NoError(t, err)
	require.Equal(t, []rpc.ResultProposer{{Proposer: "B", Value: "Y"}}, round.Proposers)

	bz, err := tmjson.Marshal(round)
	require.NoError(t, err)
	decodedRound := new(rpc.ResultRound)
	require.NoError(t, tmjson.Unmarshal(bz, decodedRound))
	assert.Equal(t, round.Proposers, decodedRound.Proposers)
	assert.Equal(t, round.Candidates, decodedRound.Candidates)

	peers, err := rpc.Peers(ctx)
	require.NoError(t, err)
	require.Len(t, peers.Peers, 1)
	assert.Equal(t, types.NodeID("B"), peers.Peers[0].ID)
	assert.Equal(t, []rpc.ResultCandidate{{Value: "Y", Intensity: 0.3}}, peers.Peers[0].Intensities)

	bz, err = tmjson.Marshal(peers)
	require.NoError(t, err)
	decodedPeers := new(rpc.ResultPeers)
	require.NoError(t, tmjson.Unmarshal(bz, decodedPeers))
	require.Len(t, decodedPeers.Peers, 1)
	assert.Equal(t, peers.Peers[0].Intensities, decodedPeers.Peers[0].Intensities)
	assert.True(t, peers.Peers[0].LastSeen.Equal(decodedPeers.Peers[0].LastSeen))
}

func TestJSONMetrics(t *testing.T) {
	startTestNode(t)
	ctx := &rpctypes.Context{}

	all, err := rpc.JSONMetrics(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all.Metrics, 2)
	assert.Contains(t, all.Metrics, "consensus")

	one, err := rpc.JSONMetrics(ctx, "stats")
	require.NoError(t, err)
	assert.Len(t, one.Metrics, 1)

	none, err := rpc.JSONMetrics(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none.Metrics)
}

func TestRoutes(t *testing.T) {
	for _, name := range []string{"status", "propose", "cancel", "round", "decisions", "pheromones", "peers", "metrics"} {
		assert.Contains(t, rpc.Routes, name)
	}
}
