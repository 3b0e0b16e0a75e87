package consensus

import (
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	tmsync "github.com/tendermint/tendermint/libs/sync"
	tmtime "github.com/tendermint/tendermint/types/time"

	"antcolony_demo/ant"
	"antcolony_demo/config"
	cstypes "antcolony_demo/consensus/types"
	"antcolony_demo/gossip"
	"antcolony_demo/libs/metric"
	"antcolony_demo/pheromone"
	"antcolony_demo/state"
	"antcolony_demo/store"
	"antcolony_demo/types"
)

// 浮点累加的误差，0.3+5*0.1需要被认为达到0.8
const thresholdTolerance = 1e-9

// ------ Event ------
// reactor监听的consensus广播事件，数据都是*gossip.Packet
const (
	EventNewProposal   = "NewProposal"
	EventPheromoneSync = "PheromoneSync"
	EventDecision      = "Decision"
	EventRoundCancel   = "RoundCancel"

	// 数据是types.RoundOutcome
	EventRoundOutcome = "RoundOutcome"
)

// 共识状态机实现
// 所有状态的修改都持有mtx，收到的数据包在reactor的接收协程里同步处理
type ConsensusState struct {
	service.BaseService

	config *config.ConsensusConfig
	self   types.NodeID

	// 信息素表和agent
	store  *pheromone.Store
	engine *ant.Engine

	// 邻居和round
	nodeState *state.NodeState

	// 每一轮的结果
	decisions *store.DecisionStore

	// round超时
	roundClock *RoundClock

	// 共识内部状态
	mtx tmsync.Mutex
	cstypes.RoundState

	// 每个落后节点上一次触发重发决定的时间，每个round清空
	rebroadcasts map[types.NodeID]time.Time

	// consensus和reactor之间通信的组件 - 事件模型
	eventSwitch events.EventSwitch

	metrics *Metrics
	metric  *consensusMetric
	stats   *metric.Stats

	now func() time.Time
}

var _ service.Service = (*ConsensusState)(nil)

type ConsensusOption func(*ConsensusState)

func WithConsensusMetrics(metrics *Metrics) ConsensusOption {
	return func(cs *ConsensusState) {
		cs.metrics = metrics
	}
}

// WithStats 与reactor共用的计数器
func WithStats(stats *metric.Stats) ConsensusOption {
	return func(cs *ConsensusState) {
		cs.stats = stats
	}
}

// WithTimeSource 测试时替换时钟
func WithTimeSource(now func() time.Time) ConsensusOption {
	return func(cs *ConsensusState) {
		cs.now = now
	}
}

func NewConsensusState(
	cfg *config.ConsensusConfig,
	self types.NodeID,
	pheromones *pheromone.Store,
	engine *ant.Engine,
	nodeState *state.NodeState,
	decisions *store.DecisionStore,
	options ...ConsensusOption,
) *ConsensusState {
	cs := &ConsensusState{
		config:      cfg,
		self:        self,
		store:       pheromones,
		engine:      engine,
		nodeState:   nodeState,
		decisions:   decisions,
		roundClock:  NewRoundClock(),
		RoundState:  cstypes.NewRoundState(),
		eventSwitch: events.NewEventSwitch(),
		metrics:     NopMetrics(),
		metric:      newConsensusMetric(),
		stats:       metric.NewStats(),
		now:         tmtime.Now,

		rebroadcasts: make(map[types.NodeID]time.Time),
	}
	cs.BaseService = *service.NewBaseService(nil, "CONSENSUS", cs)

	for _, opt := range options {
		opt(cs)
	}
	cs.metric.MarkRoundStatus(cs.Step.String())
	cs.metrics.Step.Set(float64(cs.Step))
	return cs
}

func (cs *ConsensusState) SetLogger(logger log.Logger) {
	cs.Logger = logger
	cs.roundClock.SetLogger(logger.With("module", "clock"))
	cs.eventSwitch.SetLogger(logger.With("module", "events"))
}

func (cs *ConsensusState) OnStart() error {
	if err := cs.eventSwitch.Start(); err != nil {
		return err
	}
	if err := cs.roundClock.Start(); err != nil {
		return err
	}
	go cs.receiveRoutine()
	cs.Logger.Info("consensus receive routine started.", "self", cs.self)
	return nil
}

func (cs *ConsensusState) OnStop() {
	if err := cs.eventSwitch.Stop(); err != nil {
		cs.Logger.Error("failed trying to stop eventSwitch", "error", err)
	}
	if err := cs.roundClock.Stop(); err != nil {
		cs.Logger.Error("failed trying to stop roundClock", "error", err)
	}
	cs.Logger.Info("consensus server stopped.")
}

// receiveRoutine 处理超时事件和周期性的增强
// 数据包不经过这里，由reactor直接调用HandlePacket
func (cs *ConsensusState) receiveRoutine() {
	ticker := time.NewTicker(cs.config.ReinforceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cs.Quit():
			cs.Logger.Debug("receiveRoutine quit.")
			return

		case ti := <-cs.roundClock.Chan():
			cs.Logger.Debug("received timeout event", "timeout", &ti)
			cs.handleTimeout(ti)

		case <-ticker.C:
			cs.Reinforce(cs.now())
		}
	}
}

// Subscribe 每一轮的结果通过回调交给调用者
// 回调在持有状态锁的情况下同步执行，不能再调用ConsensusState的方法
func (cs *ConsensusState) Subscribe(subscriber string, cb func(types.RoundOutcome)) error {
	return cs.eventSwitch.AddListenerForEvent(subscriber, EventRoundOutcome, func(data events.EventData) {
		cb(data.(types.RoundOutcome))
	})
}

func (cs *ConsensusState) Unsubscribe(subscriber string) {
	cs.eventSwitch.RemoveListener(subscriber)
}

// GetRoundState 当前状态的拷贝
func (cs *ConsensusState) GetRoundState() cstypes.RoundState {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return cs.RoundState.Copy()
}

func (cs *ConsensusState) Self() types.NodeID {
	return cs.self
}

func (cs *ConsensusState) Store() *pheromone.Store {
	return cs.store
}

func (cs *ConsensusState) NodeState() *state.NodeState {
	return cs.nodeState
}

func (cs *ConsensusState) Decisions() *store.DecisionStore {
	return cs.decisions
}

func (cs *ConsensusState) MetricItem() metric.MetricItem {
	return cs.metric
}

//-----------------------------------------------------------------------------
// 本地操作

// Propose 本节点为value发起新的一轮
// round为见过的最大round+1，进行中的round没有结束时返回ErrRoundActive
func (cs *ConsensusState) Propose(value types.ValueID) (types.RoundID, error) {
	if value == "" {
		return types.LtimeZero, types.ErrEmptyValue
	}

	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if cs.Step.IsActive() {
		return cs.Round, errors.Wrapf(types.ErrRoundActive, "round %v is %v", cs.Round, cs.Step)
	}

	now := cs.now()
	round := cs.nodeState.NextRound()
	cs.enterNewRound(round, now)

	cs.Value = value
	cs.nodeState.SetProposal(value)
	cs.AddProposer(cs.self, value)
	cs.metric.MarkProposal(value)
	cs.updateStep(cstypes.RoundStepProposed)

	intensity := cs.store.Deposit(value, cs.config.InitialIntensity, cs.self, now)
	cs.Logger.Info("propose", "round", round, "value", value, "intensity", intensity)

	cs.eventSwitch.FireEvent(EventNewProposal, &gossip.Packet{
		Type:      gossip.PacketProposalAnnounce,
		Round:     round,
		Timestamp: now,
		Value:     value,
		Intensity: intensity,
	})

	cs.updateStep(cstypes.RoundStepExploring)
	cs.scheduleRoundTimeout()
	cs.spawn(now)

	// InitialIntensity本身可能已经达到阈值
	cs.checkThreshold(now)
	return round, nil
}

// Cancel 取消本节点进行中的round，并通知其他节点
func (cs *ConsensusState) Cancel() error {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if !cs.Step.IsActive() {
		return types.ErrNoActiveRound
	}

	now := cs.now()
	round := cs.Round
	cs.enterCancelled(now, nil)
	cs.eventSwitch.FireEvent(EventRoundCancel, &gossip.Packet{
		Type:      gossip.PacketRoundCancel,
		Round:     round,
		Timestamp: now,
	})
	return nil
}

// Reinforce 提案节点补充一批agent，所有参与的节点广播候选值的强度
func (cs *ConsensusState) Reinforce(now time.Time) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if !cs.Step.IsActive() {
		return
	}
	if cs.Value != "" {
		cs.spawn(now)
	}

	entries := make([]gossip.SyncEntry, 0, len(cs.Candidates))
	// 强度为0的候选也同步，已经决定的节点据此重发决定
	for _, value := range cs.Candidates {
		intensity := cs.store.IntensityOf(value)
		entries = append(entries, gossip.SyncEntry{Value: value, Intensity: intensity, Timestamp: now})
	}
	if len(entries) > 0 {
		cs.eventSwitch.FireEvent(EventPheromoneSync, &gossip.Packet{
			Type:      gossip.PacketPheromoneSync,
			Round:     cs.Round,
			Timestamp: now,
			Entries:   entries,
		})
	}
	cs.checkThreshold(now)
}

func (cs *ConsensusState) spawn(now time.Time) {
	agents, err := cs.engine.Spawn(cs.Round, cs.Value, now)
	if err != nil {
		cs.Logger.Error("spawn agents failed", "round", cs.Round, "value", cs.Value, "err", err)
		return
	}
	cs.stats.Inc("ants_spawned", int64(len(agents)))
}

//-----------------------------------------------------------------------------
// 收到的数据包

// ----- MsgInfo -----
// 与reactor之间通信的消息格式
type msgInfo struct {
	Packet *gossip.Packet
	PeerID types.NodeID
}

// HandlePacket reactor收到的数据包，返回时该数据包对信息素表的修改已经完成
func (cs *ConsensusState) HandlePacket(p *gossip.Packet) {
	cs.handleMsg(msgInfo{Packet: p, PeerID: p.Sender})
}

// handleMsg 根据不同的消息类型进行操作
func (cs *ConsensusState) handleMsg(mi msgInfo) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	p, peerID := mi.Packet, mi.PeerID
	now := cs.now()

	switch p.Type {
	case gossip.PacketProposalAnnounce:
		cs.handleAnnounce(p, peerID, now)
	case gossip.PacketAntHop:
		cs.handleHop(p, peerID, now)
	case gossip.PacketPheromoneSync:
		cs.handleSync(p, peerID, now)
	case gossip.PacketConsensusDecision:
		cs.handleDecision(p, peerID, now)
	case gossip.PacketRoundCancel:
		cs.handleCancel(p, peerID, now)
	case gossip.PacketHeartbeat:
		cs.handleHeartbeat(p, peerID, now)
	default:
		cs.Logger.Debug("unhandled packet", "packet", p)
	}
}

func (cs *ConsensusState) handleAnnounce(p *gossip.Packet, peerID types.NodeID, now time.Time) {
	switch {
	case p.Round.Equal(cs.Round) && cs.Step.IsActive():
		// 同一轮的其他提案
		cs.AddProposer(peerID, p.Value)
	case p.Round.Greater(cs.Round) && !cs.Step.IsActive():
		cs.joinRound(p.Round, now)
		cs.AddProposer(peerID, p.Value)
	default:
		cs.stale(p, "announce")
		return
	}
	cs.nodeState.ObserveIntensity(peerID, p.Value, p.Intensity)
	cs.Logger.Info("receive proposal", "round", p.Round, "proposer", peerID, "value", p.Value)
	cs.checkThreshold(now)
}

func (cs *ConsensusState) handleHop(p *gossip.Packet, peerID types.NodeID, now time.Time) {
	agent := p.Agent

	switch {
	case p.Round.Equal(cs.Round) && cs.Step.IsActive():
	case p.Round.Equal(cs.Round) && cs.Round != types.LtimeZero:
		// 已经结束的round，只记录不转发
		if _, applied := cs.engine.Receive(agent, peerID, now); applied {
			cs.stats.Inc("hops_received", 1)
		}
		cs.rebroadcastDecision(peerID, now)
		return
	case p.Round.Greater(cs.Round) && !cs.Step.IsActive():
		cs.joinRound(p.Round, now)
	default:
		cs.stale(p, "hop")
		return
	}

	amount, applied := cs.engine.Receive(agent, peerID, now)
	if !applied {
		cs.stats.Inc("duplicate_hops", 1)
		return
	}
	cs.stats.Inc("hops_received", 1)
	cs.stats.Observe("hop_count", int64(agent.Hops))
	cs.AddCandidate(agent.Value)
	cs.Logger.Debug("reinforce", "value", agent.Value, "amount", amount, "agent", agent.ID, "hops", agent.Hops)

	cs.checkThreshold(now)
	if cs.Step.IsActive() {
		cs.engine.Forward(agent, now)
	}
}

func (cs *ConsensusState) handleSync(p *gossip.Packet, peerID types.NodeID, now time.Time) {
	if !p.Round.Equal(cs.Round) || !cs.Step.IsActive() {
		if p.Round.Equal(cs.Round) {
			cs.rebroadcastDecision(peerID, now)
		}
		cs.stale(p, "sync")
		return
	}
	cs.stats.Inc("pheromone_syncs", 1)
	for _, e := range p.Entries {
		cs.nodeState.ObserveIntensity(peerID, e.Value, e.Intensity)
		if !cs.store.MergeRemote(e.Value, e.Intensity, e.Timestamp, now) {
			cs.Logger.Debug("drop stale sync entry", "peer", peerID, "value", e.Value, "timestamp", e.Timestamp)
			continue
		}
		cs.AddCandidate(e.Value)
	}
	cs.checkThreshold(now)
}

func (cs *ConsensusState) handleDecision(p *gossip.Packet, peerID types.NodeID, now time.Time) {
	switch {
	case p.Round.Equal(cs.Round) && cs.Step.IsActive():
	case p.Round.Greater(cs.Round) && !cs.Step.IsActive():
		cs.enterNewRound(p.Round, now)
	case p.Round.Equal(cs.Round) && cs.Step == cstypes.RoundStepDecided:
		if cs.Record != nil && cs.Record.Value != p.Record.Value {
			cs.metrics.Conflicts.Add(1)
			cs.Logger.Error("conflicting decision", "round", p.Round, "local", cs.Record.Value,
				"remote", p.Record.Value, "peer", peerID)
		}
		return
	default:
		cs.stale(p, "decision")
		return
	}

	record := *p.Record
	record.Adopted = true
	record.Contributors = append([]types.NodeID{}, p.Record.Contributors...)
	cs.Logger.Info("adopt decision", "record", &record, "peer", peerID)

	cs.metrics.Adoptions.Add(1)
	cs.stats.Inc("adoptions", 1)
	cs.enterDecided(&record, now)
}

func (cs *ConsensusState) handleCancel(p *gossip.Packet, peerID types.NodeID, now time.Time) {
	if !p.Round.Equal(cs.Round) || !cs.Step.IsActive() {
		if p.Round.Equal(cs.Round) {
			cs.rebroadcastDecision(peerID, now)
		}
		cs.stale(p, "cancel")
		return
	}
	if cs.config.CancelPolicy != config.CancelPolicyAny && !cs.IsProposer(peerID) {
		cs.Logger.Info("ignore round cancel", "round", p.Round, "peer", peerID, "err", types.ErrUnauthorizedCancel)
		return
	}
	cs.Logger.Info("round cancelled by peer", "round", p.Round, "peer", peerID)
	cs.enterCancelled(now, nil)
}

// handleHeartbeat 对方还停留在更早的round，说明错过了本轮的决定
func (cs *ConsensusState) handleHeartbeat(p *gossip.Packet, peerID types.NodeID, now time.Time) {
	if cs.Round.Greater(p.Round) {
		cs.rebroadcastDecision(peerID, now)
	}
}

// rebroadcastDecision 已经决定的节点还收到落后节点的数据包时重发决定
// 同一个节点每个ReinforceInterval最多触发一次
func (cs *ConsensusState) rebroadcastDecision(peerID types.NodeID, now time.Time) {
	if cs.Step != cstypes.RoundStepDecided || cs.Record == nil {
		return
	}
	if last, ok := cs.rebroadcasts[peerID]; ok && now.Sub(last) < cs.config.ReinforceInterval {
		return
	}
	cs.rebroadcasts[peerID] = now
	cs.stats.Inc("decision_rebroadcasts", 1)
	cs.Logger.Info("rebroadcast decision", "round", cs.Round, "value", cs.Record.Value, "peer", peerID)
	cs.broadcastDecision(cs.Record, now)
}

func (cs *ConsensusState) stale(p *gossip.Packet, what string) {
	cs.metrics.StalePackets.Add(1)
	cs.stats.Inc("stale_packets", 1)
	cs.Logger.Debug("ignore "+what, "packet", p, "round", cs.Round, "step", cs.Step, "err", types.ErrStaleRound)
}

// handleTimeout 过期的超时事件根据round和step忽略
func (cs *ConsensusState) handleTimeout(ti timeoutInfo) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if !ti.Round.Equal(cs.Round) || !cs.Step.IsActive() {
		cs.Logger.Debug("ignore expired timeout", "timeout", &ti, "round", cs.Round, "step", cs.Step)
		return
	}

	now := cs.now()
	round := cs.Round
	cs.Logger.Info("round timed out", "round", round, "candidates", cs.Candidates)

	cs.metrics.Timeouts.Add(1)
	cs.updateStep(cstypes.RoundStepTimedOut)
	cs.finishRound(types.OutcomeTimedOut, nil, types.ErrConsensusTimeout, now)
	cs.eventSwitch.FireEvent(EventRoundCancel, &gossip.Packet{
		Type:      gossip.PacketRoundCancel,
		Round:     round,
		Timestamp: now,
	})
	cs.updateStep(cstypes.RoundStepIdle)
}

//-----------------------------------------------------------------------------
// 状态转移

// enterNewRound 切换到新的round，上一轮的信息素和邻居报告的强度全部清空
func (cs *ConsensusState) enterNewRound(round types.RoundID, now time.Time) {
	if cs.Round != types.LtimeZero {
		cs.engine.EndRound(cs.Round)
	}
	cs.store.Reset()
	cs.nodeState.ResetIntensities()
	cs.nodeState.SetRound(round)
	cs.nodeState.SetProposal("")

	cs.RoundState.ResetRound(round, now)
	cs.rebroadcasts = make(map[types.NodeID]time.Time)
	cs.metric.MarkRound(round, now)
	cs.metric.MarkProposal("")
	cs.metrics.Rounds.Add(1)
	cs.metrics.Round.Set(float64(round.Int64()))
	cs.Logger.Info("enter new round", "round", round)
}

// joinRound 收到其他节点的新round，不提案直接进入Exploring
func (cs *ConsensusState) joinRound(round types.RoundID, now time.Time) {
	cs.enterNewRound(round, now)
	cs.updateStep(cstypes.RoundStepExploring)
	cs.scheduleRoundTimeout()
}

// checkThreshold 候选值中强度达到阈值且最高的值胜出，强度相同时id小的胜出
func (cs *ConsensusState) checkThreshold(now time.Time) {
	if !cs.Step.IsActive() {
		return
	}

	var (
		winner           types.ValueID
		winnerIntensity  = -1.0
		leading          types.ValueID
		leadingIntensity = -1.0
	)
	// Candidates有序，只有严格更大才替换
	for _, value := range cs.Candidates {
		intensity := cs.store.IntensityOf(value)
		if intensity > leadingIntensity {
			leading, leadingIntensity = value, intensity
		}
		if intensity >= cs.config.Threshold-thresholdTolerance && intensity > winnerIntensity {
			winner, winnerIntensity = value, intensity
		}
	}
	if leading != "" {
		cs.metrics.LeadingIntensity.Set(leadingIntensity)
		cs.metric.MarkLeading(leading, leadingIntensity, len(cs.Candidates))
	}
	if winner == "" {
		return
	}

	var contributors []types.NodeID
	if p, ok := cs.store.Get(winner); ok {
		contributors = p.ContributorIDs()
	}
	record := &types.ConsensusRecord{
		Value:        winner,
		Round:        cs.Round,
		Intensity:    winnerIntensity,
		DecidedAt:    now,
		DecidedBy:    cs.self,
		Contributors: contributors,
	}
	cs.Logger.Info("threshold reached", "record", record)

	cs.metrics.Decisions.Add(1)
	cs.stats.Inc("decisions", 1)
	cs.enterDecided(record, now)
}

// enterDecided 保存结果并广播，本地产生的和采纳的结果都只广播这一次
func (cs *ConsensusState) enterDecided(record *types.ConsensusRecord, now time.Time) {
	if existing, err := cs.decisions.Save(record); err != nil {
		if errors.Cause(err) != store.ErrRecordExists {
			cs.Logger.Error("save decision failed", "record", record, "err", err)
		} else {
			cs.Logger.Info("decision already stored", "existing", existing)
			record = existing
		}
	}

	cs.Record = record
	cs.updateStep(cstypes.RoundStepDecided)
	cs.finishRound(types.OutcomeDecided, record, nil, now)
	cs.broadcastDecision(record, now)
}

func (cs *ConsensusState) broadcastDecision(record *types.ConsensusRecord, now time.Time) {
	cs.eventSwitch.FireEvent(EventDecision, &gossip.Packet{
		Type:      gossip.PacketConsensusDecision,
		Round:     record.Round,
		Timestamp: now,
		Value:     record.Value,
		Intensity: record.Intensity,
		Record:    record,
	})
}

func (cs *ConsensusState) enterCancelled(now time.Time, err error) {
	cs.metrics.Cancels.Add(1)
	cs.updateStep(cstypes.RoundStepCancelled)
	cs.finishRound(types.OutcomeCancelled, nil, err, now)
}

// finishRound 停止定时器和这一轮的agent，通知订阅者
func (cs *ConsensusState) finishRound(result string, record *types.ConsensusRecord, err error, now time.Time) {
	if cs.roundClock.IsRunning() {
		cs.roundClock.StopClock()
	}
	cs.engine.EndRound(cs.Round)
	cs.nodeState.SetProposal("")

	cs.LastOutcome = result
	duration := now.Sub(cs.StartTime)
	cs.metrics.RoundDuration.Observe(duration.Seconds())
	cs.stats.Observe("round_duration_ms", int64(duration/time.Millisecond))
	cs.metric.MarkOutcome(result)

	cs.Logger.Info("round finished", "round", cs.Round, "result", result, "duration", duration)
	cs.eventSwitch.FireEvent(EventRoundOutcome, types.RoundOutcome{
		Round:  cs.Round,
		Result: result,
		Record: record,
		Err:    err,
	})
}

func (cs *ConsensusState) scheduleRoundTimeout() {
	if !cs.roundClock.IsRunning() {
		return
	}
	cs.roundClock.ScheduleTimeout(timeoutInfo{
		Duration: cs.config.RoundTimeout,
		Round:    cs.Round,
		Step:     cs.Step,
	})
}

func (cs *ConsensusState) updateStep(step cstypes.RoundStepType) {
	cs.Step = step
	cs.metrics.Step.Set(float64(step))
	cs.metric.MarkRoundStatus(step.String())
}
