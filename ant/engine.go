package ant

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/tendermint/tendermint/libs/log"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	"github.com/tendermint/tendermint/libs/service"

	"antcolony_demo/config"
	"antcolony_demo/pheromone"
	"antcolony_demo/types"
)

const intensityTolerance = 1e-12

// PeerView 选择下一跳需要的邻居信息，由NodeState实现
type PeerView interface {
	LivePeers(now time.Time) []types.NodeID
	PeerIntensity(peer types.NodeID, value types.ValueID) float64
}

// HopSender 把agent发送给目标节点
type HopSender interface {
	SendHop(to types.NodeID, agent *types.AntAgent) error
}

// Engine 负责agent的产生、移动和到达后的增强
// agent的移动就是一串AntHop消息，agent的状态全部在消息里
type Engine struct {
	service.BaseService

	config *config.AntConfig
	self   types.NodeID

	store  *pheromone.Store
	view   PeerView
	sender HopSender

	pool *AgentPool
	seen *seenSet

	// 随机游走使用的随机源，测试时固定种子
	rng *tmrand.Rand
	seq uint64

	// 跳转消息在单独的协程里发送
	syncSend  bool
	sendQueue chan hopMsg

	metrics *Metrics
}

type hopMsg struct {
	to    types.NodeID
	agent *types.AntAgent
}

type EngineOption func(*Engine)

// WithSyncSend 在调用者的协程里直接发送，用于确定性测试
func WithSyncSend() EngineOption {
	return func(eng *Engine) {
		eng.syncSend = true
	}
}

func WithMetrics(metrics *Metrics) EngineOption {
	return func(eng *Engine) {
		eng.metrics = metrics
	}
}

func NewEngine(
	cfg *config.AntConfig,
	self types.NodeID,
	store *pheromone.Store,
	view PeerView,
	options ...EngineOption,
) *Engine {
	eng := &Engine{
		config:    cfg,
		self:      self,
		store:     store,
		view:      view,
		pool:      NewAgentPool(cfg.MaxLiveAgents, cfg.AgentTTL),
		seen:      newSeenSet(cfg.DedupCapacity),
		rng:       tmrand.NewRand(),
		sendQueue: make(chan hopMsg, cfg.SendQueueSize),
		metrics:   NopMetrics(),
	}
	if cfg.Seed != 0 {
		eng.rng.Seed(cfg.Seed)
	}
	eng.BaseService = *service.NewBaseService(nil, "AntEngine", eng)

	for _, opt := range options {
		opt(eng)
	}
	return eng
}

func (eng *Engine) SetLogger(logger log.Logger) {
	eng.Logger = logger
	eng.pool.SetLogger(logger)
}

func (eng *Engine) SetSender(sender HopSender) {
	eng.sender = sender
}

func (eng *Engine) OnStart() error {
	if !eng.syncSend {
		go eng.sendRoutine()
	}
	return nil
}

func (eng *Engine) Pool() *AgentPool {
	return eng.pool
}

// Spawn 为value发出FanOut个agent，每个agent立即走出第一跳
// 存活的agent达到上限时返回ErrTooManyAgents
func (eng *Engine) Spawn(round types.RoundID, value types.ValueID, now time.Time) ([]*types.AntAgent, error) {
	eng.pool.Reap(now)

	spawned := make([]*types.AntAgent, 0, eng.config.FanOut)
	for i := 0; i < eng.config.FanOut; i++ {
		id := types.AgentID{Origin: eng.self, Seq: atomic.AddUint64(&eng.seq, 1)}
		agent := types.NewAntAgent(id, round, value, eng.config.InitialEnergy)

		if err := eng.pool.Add(agent, now); err != nil {
			if len(spawned) == 0 {
				eng.metrics.Rejected.Add(1)
				eng.Logger.Info("spawn rejected", "round", round, "value", value, "err", err)
				return nil, err
			}
			break
		}
		eng.metrics.Spawned.Add(1)
		eng.Forward(agent, now)
		spawned = append(spawned, agent)
	}

	eng.metrics.LiveAgents.Set(float64(eng.pool.Size()))
	eng.Logger.Debug("spawned agents", "round", round, "value", value, "count", len(spawned))
	return spawned, nil
}

// Receive agent到达本节点，按(agent id, 跳数)去重后增强信息素
// 返回增强的量，重复的跳返回false
func (eng *Engine) Receive(agent *types.AntAgent, sender types.NodeID, now time.Time) (float64, bool) {
	if err := agent.ValidateBasic(); err != nil {
		eng.Logger.Debug("drop invalid agent", "agent", agent, "err", err)
		return 0, false
	}
	if !eng.seen.Add(agent.ID.HopKey(agent.Hops)) {
		eng.metrics.Duplicates.Add(1)
		return 0, false
	}

	amount := eng.reinforcement(agent)
	eng.store.Deposit(agent.Value, amount, sender, now)
	eng.metrics.Reinforcement.Observe(amount)
	return amount, true
}

// reinforcement 增强量与剩余能量成正比，已有的增强次数带来有上限的加成
func (eng *Engine) reinforcement(agent *types.AntAgent) float64 {
	ratio := types.Clamp01(agent.Energy / eng.config.InitialEnergy)

	deposits := 1
	if p, ok := eng.store.Get(agent.Value); ok {
		deposits = p.Deposits + 1
	}
	if deposits > eng.config.PopularityCap {
		deposits = eng.config.PopularityCap
	}
	if deposits < 1 {
		deposits = 1
	}
	boost := 1 + eng.config.PopularityBoost*float64(deposits-1)
	return eng.config.ReinforcementFactor * ratio * boost
}

// Forward 把agent发往下一跳；agent过期或者回到发起节点时返回false
func (eng *Engine) Forward(agent *types.AntAgent, now time.Time) bool {
	if agent.State == types.AgentReturning && agent.ID.Origin == eng.self {
		agent.State = types.AgentExpired
		eng.complete(agent, true)
		return false
	}

	to, ok := eng.Advance(agent, now)
	if !ok {
		eng.complete(agent, false)
		return false
	}
	eng.send(to, agent.Copy())
	return true
}

// Advance 扣除能量并选择下一跳，更新agent的history和跳数
// 没有可选的邻居、能量耗尽或者跳数达到上限时agent过期
func (eng *Engine) Advance(agent *types.AntAgent, now time.Time) (types.NodeID, bool) {
	if agent.IsExpired() {
		return "", false
	}
	if agent.Hops >= eng.config.MaxHops {
		agent.State = types.AgentExpired
		return "", false
	}

	agent.Energy -= eng.config.EnergyDecay
	if agent.Energy <= intensityTolerance {
		agent.Energy = 0
		agent.State = types.AgentExpired
		return "", false
	}

	live := eng.livePeers(now)

	if agent.State == types.AgentExploring &&
		agent.ID.Origin != eng.self &&
		agent.Energy <= eng.config.ReturnEnergy {
		agent.State = types.AgentReturning
	}

	var (
		to types.NodeID
		ok bool
	)
	if agent.State == types.AgentReturning {
		to, ok = agent.ID.Origin, containsNode(live, agent.ID.Origin)
	} else {
		to, ok = eng.chooseNext(agent, live)
	}
	if !ok {
		agent.State = types.AgentExpired
		return "", false
	}

	agent.Visit(eng.self, eng.config.HistorySize)
	agent.Hops++
	return to, true
}

func (eng *Engine) livePeers(now time.Time) []types.NodeID {
	peers := eng.view.LivePeers(now)
	live := make([]types.NodeID, 0, len(peers))
	for _, p := range peers {
		if p != eng.self {
			live = append(live, p)
		}
	}
	return live
}

// chooseNext 以概率Exploration随机选择，否则选择邻居报告的强度最高的节点
func (eng *Engine) chooseNext(agent *types.AntAgent, live []types.NodeID) (types.NodeID, bool) {
	eligible := eligiblePeers(agent, live, eng.config.HistorySize)
	if len(eligible) == 0 {
		return "", false
	}

	if eng.rng.Float64() < eng.config.Exploration {
		return eligible[eng.rng.Intn(len(eligible))], true
	}

	best := math.Inf(-1)
	candidates := []types.NodeID{}
	for _, peer := range eligible {
		intensity := eng.view.PeerIntensity(peer, agent.Value)
		switch {
		case intensity > best+intensityTolerance:
			best = intensity
			candidates = append(candidates[:0], peer)
		case math.Abs(intensity-best) <= intensityTolerance:
			candidates = append(candidates, peer)
		}
	}
	return candidates[eng.rng.Intn(len(candidates))], true
}

// eligiblePeers live里排除最近访问过的节点
// 排除的数量最多为len(live)-1，所以只要还有存活的邻居就有可选的下一跳
func eligiblePeers(agent *types.AntAgent, live []types.NodeID, historySize int) []types.NodeID {
	n := historySize
	if n > len(live)-1 {
		n = len(live) - 1
	}
	recent := agent.RecentlyVisited(n)

	eligible := make([]types.NodeID, 0, len(live))
	for _, peer := range live {
		if !containsNode(recent, peer) {
			eligible = append(eligible, peer)
		}
	}
	return eligible
}

func containsNode(list []types.NodeID, id types.NodeID) bool {
	for _, n := range list {
		if n == id {
			return true
		}
	}
	return false
}

func (eng *Engine) complete(agent *types.AntAgent, returned bool) {
	if returned {
		eng.metrics.Returned.Add(1)
	} else {
		eng.metrics.Expired.Add(1)
	}
	if agent.ID.Origin == eng.self && eng.pool.Remove(agent.ID) {
		eng.metrics.LiveAgents.Set(float64(eng.pool.Size()))
	}
	eng.Logger.Debug("agent finished", "agent", agent, "returned", returned)
}

// EndRound 一轮结束后不再统计该轮的agent
func (eng *Engine) EndRound(round types.RoundID) {
	if n := eng.pool.RemoveRound(round); n > 0 {
		eng.Logger.Debug("released agents of finished round", "round", round, "count", n)
	}
	eng.metrics.LiveAgents.Set(float64(eng.pool.Size()))
}

// Reap 清理超过TTL的agent
func (eng *Engine) Reap(now time.Time) int {
	n := eng.pool.Reap(now)
	eng.metrics.LiveAgents.Set(float64(eng.pool.Size()))
	return n
}

func (eng *Engine) send(to types.NodeID, agent *types.AntAgent) {
	eng.metrics.Hops.Add(1)
	msg := hopMsg{to: to, agent: agent}
	if eng.syncSend || !eng.IsRunning() {
		eng.sendHop(msg)
		return
	}

	select {
	case eng.sendQueue <- msg:
	default:
		eng.metrics.SendFailures.Add(1)
		eng.Logger.Error("drop hop", "to", to, "agent", agent, "err", ErrSendQueueFull)
	}
}

func (eng *Engine) sendRoutine() {
	for {
		select {
		case <-eng.Quit():
			return
		case msg := <-eng.sendQueue:
			eng.sendHop(msg)
		}
	}
}

func (eng *Engine) sendHop(msg hopMsg) {
	if eng.sender == nil {
		eng.metrics.SendFailures.Add(1)
		eng.Logger.Error("no hop sender", "to", msg.to, "agent", msg.agent)
		return
	}
	if err := eng.sender.SendHop(msg.to, msg.agent); err != nil {
		// 不重试
		eng.metrics.SendFailures.Add(1)
		eng.Logger.Error("send hop failed", "to", msg.to, "agent", msg.agent.ID, "err", err)
	}
}
