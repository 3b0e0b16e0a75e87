package ant

import (
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"antcolony_demo/config"
	"antcolony_demo/pheromone"
	"antcolony_demo/types"
)

// ----- utility -----

type fakeView struct {
	mtx         sync.Mutex
	live        []types.NodeID
	intensities map[types.NodeID]float64
}

func newFakeView(live ...types.NodeID) *fakeView {
	return &fakeView{live: live, intensities: make(map[types.NodeID]float64)}
}

func (v *fakeView) LivePeers(now time.Time) []types.NodeID {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	return append([]types.NodeID{}, v.live...)
}

func (v *fakeView) PeerIntensity(peer types.NodeID, value types.ValueID) float64 {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	return v.intensities[peer]
}

type sentHop struct {
	to    types.NodeID
	agent *types.AntAgent
}

type fakeSender struct {
	mtx  sync.Mutex
	hops []sentHop
}

func (s *fakeSender) SendHop(to types.NodeID, agent *types.AntAgent) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.hops = append(s.hops, sentHop{to, agent})
	return nil
}

func (s *fakeSender) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.hops)
}

func newTestEngine(cfg *config.AntConfig, self types.NodeID, view PeerView) (*Engine, *fakeSender, *pheromone.Store) {
	store := pheromone.NewStore(config.TestPheromoneConfig())
	eng := NewEngine(cfg, self, store, view, WithSyncSend())
	eng.SetLogger(log.TestingLogger())
	sender := &fakeSender{}
	eng.SetSender(sender)
	return eng, sender, store
}

func foreignAgent(origin types.NodeID, seq uint64, energy float64) *types.AntAgent {
	return types.NewAntAgent(types.AgentID{Origin: origin, Seq: seq}, 1, "X", energy)
}

// ----- tests -----

// 同一个跳重复到达只增强一次
func TestReceiveIdempotent(t *testing.T) {
	eng, _, store := newTestEngine(config.TestAntConfig(), "B", newFakeView("A", "C"))
	now := time.Now()

	agent := foreignAgent("A", 1, 1.0)
	agent.Hops = 1

	amount, applied := eng.Receive(agent, "A", now)
	require.True(t, applied)
	assert.InDelta(t, 0.1, amount, 1e-9)
	before := store.IntensityOf("X")

	for i := 0; i < 3; i++ {
		amount, applied = eng.Receive(agent.Copy(), "A", now)
		assert.False(t, applied)
		assert.Equal(t, 0.0, amount)
	}
	assert.Equal(t, before, store.IntensityOf("X"))

	// 下一跳是新的事件
	agent.Hops = 2
	_, applied = eng.Receive(agent, "C", now)
	assert.True(t, applied)
}

func TestReinforcementAmount(t *testing.T) {
	cfg := config.TestAntConfig()
	cfg.PopularityCap = 3
	eng, _, _ := newTestEngine(cfg, "B", newFakeView("A"))
	now := time.Now()

	expected := []float64{
		0.1 * 0.5,
		0.1 * 0.5 * 1.05,
		0.1 * 0.5 * 1.10,
		0.1 * 0.5 * 1.10, // 达到上限
	}
	for i, want := range expected {
		agent := foreignAgent("A", uint64(i+1), 0.5)
		amount, applied := eng.Receive(agent, "A", now)
		require.True(t, applied)
		assert.InDelta(t, want, amount, 1e-9, "deposit #%d", i)
	}
}

func TestAdvanceEnergyMonotoneAndExpiry(t *testing.T) {
	cfg := config.TestAntConfig()
	cfg.Exploration = 0
	eng, _, _ := newTestEngine(cfg, "A", newFakeView("B", "C"))
	now := time.Now()

	agent := types.NewAntAgent(types.AgentID{Origin: "A", Seq: 1}, 1, "X", 0.25)
	last := agent.Energy
	hops := 0
	for {
		_, ok := eng.Advance(agent, now)
		assert.True(t, agent.Energy <= last, "energy must not increase")
		last = agent.Energy
		if !ok {
			break
		}
		hops++
	}
	assert.Equal(t, 2, hops)
	assert.True(t, agent.IsExpired())
	assert.Equal(t, 0.0, agent.Energy)

	_, ok := eng.Advance(agent, now)
	assert.False(t, ok, "expired agent never moves")
}

func TestAdvanceMaxHops(t *testing.T) {
	cfg := config.TestAntConfig()
	cfg.MaxHops = 3
	eng, _, _ := newTestEngine(cfg, "A", newFakeView("B", "C"))

	agent := types.NewAntAgent(types.AgentID{Origin: "A", Seq: 1}, 1, "X", 1.0)
	agent.Hops = 3
	_, ok := eng.Advance(agent, time.Now())
	assert.False(t, ok)
	assert.Equal(t, types.AgentExpired, agent.State)
}

func TestEligiblePeers(t *testing.T) {
	agent := foreignAgent("A", 1, 1.0)
	agent.History = []types.NodeID{"C", "A"}

	// 只排除最近的len(live)-1个
	assert.Equal(t, []types.NodeID{"C"}, eligiblePeers(agent, []types.NodeID{"A", "C"}, 4))
	assert.Equal(t, []types.NodeID{"A"}, eligiblePeers(agent, []types.NodeID{"A"}, 4))
	assert.Equal(t, []types.NodeID{"D"}, eligiblePeers(agent, []types.NodeID{"A", "C", "D"}, 4))
	assert.Equal(t, []types.NodeID{"C", "D"}, eligiblePeers(agent, []types.NodeID{"A", "C", "D"}, 1))
	assert.Empty(t, eligiblePeers(agent, []types.NodeID{}, 4))
}

func TestAdvanceNoLivePeers(t *testing.T) {
	eng, sender, _ := newTestEngine(config.TestAntConfig(), "A", newFakeView())
	agents, err := eng.Spawn(1, "X", time.Now())
	require.NoError(t, err)
	for _, a := range agents {
		assert.True(t, a.IsExpired())
	}
	assert.Equal(t, 0, sender.Len())
	assert.Equal(t, 0, eng.Pool().Size(), "expired agents leave the pool")
}

// 不探索时总是选择强度最高的邻居
func TestAdvanceGreedy(t *testing.T) {
	cfg := config.TestAntConfig()
	cfg.Exploration = 0
	view := newFakeView("B", "C", "D")
	view.intensities["C"] = 0.5
	view.intensities["D"] = 0.9
	eng, _, _ := newTestEngine(cfg, "A", view)

	for i := 0; i < 20; i++ {
		agent := types.NewAntAgent(types.AgentID{Origin: "A", Seq: uint64(i)}, 1, "X", 1.0)
		to, ok := eng.Advance(agent, time.Now())
		require.True(t, ok)
		assert.Equal(t, types.NodeID("D"), to)
		assert.Equal(t, []types.NodeID{"A"}, agent.History)
		assert.Equal(t, 1, agent.Hops)
	}
}

func TestAdvanceExploration(t *testing.T) {
	cfg := config.TestAntConfig()
	cfg.Exploration = 1
	view := newFakeView("B", "C", "D")
	view.intensities["D"] = 0.9
	eng, _, _ := newTestEngine(cfg, "A", view)

	chosen := map[types.NodeID]int{}
	for i := 0; i < 100; i++ {
		agent := types.NewAntAgent(types.AgentID{Origin: "A", Seq: uint64(i)}, 1, "X", 1.0)
		to, ok := eng.Advance(agent, time.Now())
		require.True(t, ok)
		chosen[to]++
	}
	assert.Len(t, chosen, 3, "exploration reaches every eligible peer")
}

// 相同的种子产生相同的游走
func TestAdvanceDeterministic(t *testing.T) {
	walk := func() []types.NodeID {
		cfg := config.TestAntConfig()
		cfg.Exploration = 0.5
		eng, _, _ := newTestEngine(cfg, "A", newFakeView("B", "C", "D", "E"))
		res := []types.NodeID{}
		for i := 0; i < 30; i++ {
			agent := types.NewAntAgent(types.AgentID{Origin: "A", Seq: uint64(i)}, 1, "X", 1.0)
			to, _ := eng.Advance(agent, time.Now())
			res = append(res, to)
		}
		return res
	}
	assert.Equal(t, walk(), walk())
}

func TestReturningAgent(t *testing.T) {
	cfg := config.TestAntConfig()
	eng, sender, _ := newTestEngine(cfg, "B", newFakeView("A", "C", "D"))

	agent := foreignAgent("A", 7, 0.35)
	agent.History = []types.NodeID{"A", "C"}
	require.True(t, eng.Forward(agent, time.Now()))
	assert.Equal(t, types.AgentReturning, agent.State)
	require.Equal(t, 1, sender.Len())
	assert.Equal(t, types.NodeID("A"), sender.hops[0].to)

	// 回到发起节点后结束
	origin, _, _ := newTestEngine(cfg, "A", newFakeView("B"))
	back := sender.hops[0].agent
	require.NoError(t, origin.Pool().Add(back, time.Now()))
	_, applied := origin.Receive(back, "B", time.Now())
	assert.True(t, applied)
	assert.False(t, origin.Forward(back, time.Now()))
	assert.True(t, back.IsExpired())
	assert.Equal(t, 0, origin.Pool().Size())
}

func TestSpawnTooManyAgents(t *testing.T) {
	cfg := config.TestAntConfig()
	cfg.MaxLiveAgents = 6
	eng, sender, _ := newTestEngine(cfg, "A", newFakeView("B", "C"))
	now := time.Now()

	agents, err := eng.Spawn(1, "X", now)
	require.NoError(t, err)
	assert.Len(t, agents, 4)

	agents, err = eng.Spawn(1, "X", now)
	require.NoError(t, err)
	assert.Len(t, agents, 2)

	_, err = eng.Spawn(1, "X", now)
	assert.Equal(t, types.ErrTooManyAgents, err)
	assert.Equal(t, 6, sender.Len())

	eng.EndRound(1)
	agents, err = eng.Spawn(2, "X", now)
	require.NoError(t, err)
	assert.Len(t, agents, 4)

	// TTL
	assert.Equal(t, 4, eng.Reap(now.Add(cfg.AgentTTL)))
}

func TestEngineSendRoutine(t *testing.T) {
	defer leaktest.Check(t)()

	store := pheromone.NewStore(config.TestPheromoneConfig())
	eng := NewEngine(config.TestAntConfig(), "A", store, newFakeView("B", "C"))
	eng.SetLogger(log.TestingLogger())
	sender := &fakeSender{}
	eng.SetSender(sender)
	require.NoError(t, eng.Start())

	_, err := eng.Spawn(1, "X", time.Now())
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return sender.Len() == 4 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, eng.Stop())
}

func TestSeenSetCapacity(t *testing.T) {
	s := newSeenSet(3)
	for _, k := range []string{"a", "b", "c"} {
		assert.True(t, s.Add(k))
	}
	assert.False(t, s.Add("a"))
	assert.True(t, s.Add("d"))
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Has("a"), "oldest key evicted")
	assert.True(t, s.Has("d"))
}
