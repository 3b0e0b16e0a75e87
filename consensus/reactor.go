package consensus

import (
	"time"

	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	tmtime "github.com/tendermint/tendermint/types/time"

	"antcolony_demo/ant"
	"antcolony_demo/config"
	"antcolony_demo/gossip"
	"antcolony_demo/libs/metric"
	"antcolony_demo/state"
	"antcolony_demo/types"
)

// ------- Reactor ------
// Reactor 连接ConsensusState和组播传输
// 收到的数据包交给consensus处理，consensus产生的事件广播出去，同时负责心跳和邻居的存活
type Reactor struct {
	service.BaseService

	config *config.GossipConfig
	self   types.NodeID

	conS      *ConsensusState
	transport gossip.Transport
	nodeState *state.NodeState

	stats *metric.Stats
}

var _ ant.HopSender = (*Reactor)(nil)

type ReactorOption func(*Reactor)

func WithReactorStats(stats *metric.Stats) ReactorOption {
	return func(conR *Reactor) {
		conR.stats = stats
	}
}

func NewReactor(
	cfg *config.GossipConfig,
	consensusState *ConsensusState,
	transport gossip.Transport,
	options ...ReactorOption,
) *Reactor {
	conR := &Reactor{
		config:    cfg,
		self:      consensusState.Self(),
		conS:      consensusState,
		transport: transport,
		nodeState: consensusState.NodeState(),
		stats:     consensusState.stats,
	}
	conR.BaseService = *service.NewBaseService(nil, "Consensus", conR)

	for _, option := range options {
		option(conR)
	}

	consensusState.engine.SetSender(conR)
	transport.SetHandler(conR.Receive)
	conR.subscribeToBroadcastEvents()
	return conR
}

func (conR *Reactor) SetLogger(logger log.Logger) {
	conR.Logger = logger
}

func (conR *Reactor) OnStart() error {
	conR.Logger.Info("Consensus Reactor started.", "self", conR.self)
	// 启动时立即发一次心跳，让邻居尽快发现本节点
	conR.heartbeat(tmtime.Now())
	go conR.heartbeatRoutine()
	return nil
}

func (conR *Reactor) OnStop() {
	conR.conS.eventSwitch.RemoveListener(reactorSubscriber)
}

// Receive 传输层收到的数据包
func (conR *Reactor) Receive(p *gossip.Packet) {
	if !conR.IsRunning() {
		conR.Logger.Debug("Receive while not running", "packet", p)
		return
	}
	now := tmtime.Now()

	conR.stats.Inc("packets_received", 1)
	if conR.nodeState.Touch(p.Sender, now) {
		conR.Logger.Info("peer is up", "peer", p.Sender)
	}
	if p.Round != types.LtimeZero {
		conR.nodeState.ObserveRound(p.Round)
	}

	switch p.Type {
	case gossip.PacketHeartbeat:
		// 落后的节点只会发心跳
		if p.Round != types.LtimeZero {
			conR.conS.HandlePacket(p)
		}
		return
	case gossip.PacketAntHop:
		// 发给其他节点的agent只用来更新发送者的存活时间
		if p.To != conR.self {
			return
		}
	}

	conR.Logger.Debug("Receive packet", "packet", p)
	conR.conS.HandlePacket(p)
}

// SendHop 把agent发给to，组播网络上的其他节点也会收到
func (conR *Reactor) SendHop(to types.NodeID, agent *types.AntAgent) error {
	return conR.broadcast(&gossip.Packet{
		Type:      gossip.PacketAntHop,
		Round:     agent.Round,
		Timestamp: tmtime.Now(),
		To:        to,
		Value:     agent.Value,
		Agent:     agent,
	})
}

const reactorSubscriber = "consensus-reactor"

// subscribeToBroadcastEvents订阅consensus需要广播的消息
func (conR *Reactor) subscribeToBroadcastEvents() {
	broadcast := func(data events.EventData) {
		// consensus已经完成状态转移，这里只要简单的广播即可
		p := data.(*gossip.Packet)
		if err := conR.broadcast(p); err != nil {
			conR.Logger.Error("broadcast failed", "packet", p, "err", err)
		}
	}

	for _, event := range []string{EventNewProposal, EventPheromoneSync, EventDecision, EventRoundCancel} {
		if err := conR.conS.eventSwitch.AddListenerForEvent(reactorSubscriber, event, broadcast); err != nil {
			conR.Logger.Error("subscribe failed", "event", event, "err", err)
		}
	}
}

func (conR *Reactor) broadcast(p *gossip.Packet) error {
	if err := conR.transport.Broadcast(p); err != nil {
		conR.stats.Inc("send_errors", 1)
		return err
	}
	conR.stats.Inc("packets_sent", 1)
	return nil
}

func (conR *Reactor) heartbeatRoutine() {
	ticker := time.NewTicker(conR.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conR.Quit():
			return
		case <-ticker.C:
			now := tmtime.Now()
			conR.heartbeat(now)

			for _, id := range conR.nodeState.Reap(now) {
				conR.Logger.Info("peer is down", "peer", id)
			}
			conR.conS.metrics.Peers.Set(float64(len(conR.nodeState.LivePeers(now))))
			if n := conR.conS.engine.Reap(now); n > 0 {
				conR.Logger.Debug("reaped agents", "count", n)
			}
		}
	}
}

func (conR *Reactor) heartbeat(now time.Time) {
	err := conR.broadcast(&gossip.Packet{
		Type:      gossip.PacketHeartbeat,
		Round:     conR.nodeState.Round(),
		Timestamp: now,
	})
	if err != nil {
		conR.Logger.Debug("heartbeat failed", "err", err)
	}
}
