package state

import (
	"sort"
	"time"

	tmsync "github.com/tendermint/tendermint/libs/sync"

	"antcolony_demo/types"
)

// PeerInfo 邻居的快照
type PeerInfo struct {
	ID          types.NodeID              `json:"id"`
	LastSeen    time.Time                 `json:"last_seen"`
	Alive       bool                      `json:"alive"`
	Intensities map[types.ValueID]float64 `json:"intensities"`
}

type peer struct {
	lastSeen    time.Time
	alive       bool
	intensities map[types.ValueID]float64
}

// NodeState 本节点对集群的认识：邻居表和round信息
// 超过PeerTimeout没有消息的邻居被认为已经掉线，不会被选为下一跳，重新收到消息后恢复
type NodeState struct {
	mtx tmsync.RWMutex

	self        types.NodeID
	peerTimeout time.Duration
	peers       map[types.NodeID]*peer

	round    types.RoundID
	maxSeen  types.RoundID
	proposal types.ValueID
}

func NewNodeState(self types.NodeID, peerTimeout time.Duration) *NodeState {
	return &NodeState{
		self:        self,
		peerTimeout: peerTimeout,
		peers:       make(map[types.NodeID]*peer),
	}
}

func (ns *NodeState) Self() types.NodeID {
	return ns.self
}

// Touch 收到peer的任何消息都会刷新它的存活时间
// peer是新出现的或者之前已经掉线时返回true
func (ns *NodeState) Touch(id types.NodeID, now time.Time) bool {
	if id == ns.self || id == "" {
		return false
	}
	ns.mtx.Lock()
	defer ns.mtx.Unlock()

	p, ok := ns.peers[id]
	if !ok {
		ns.peers[id] = &peer{
			lastSeen:    now,
			alive:       true,
			intensities: make(map[types.ValueID]float64),
		}
		return true
	}
	revived := !p.alive
	if now.After(p.lastSeen) {
		p.lastSeen = now
	}
	p.alive = true
	return revived
}

// ObserveIntensity 记录peer最近一次报告的强度
func (ns *NodeState) ObserveIntensity(id types.NodeID, value types.ValueID, intensity float64) {
	if id == ns.self {
		return
	}
	ns.mtx.Lock()
	defer ns.mtx.Unlock()

	p, ok := ns.peers[id]
	if !ok {
		return
	}
	p.intensities[value] = intensity
}

func (ns *NodeState) PeerIntensity(id types.NodeID, value types.ValueID) float64 {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()

	p, ok := ns.peers[id]
	if !ok {
		return 0
	}
	return p.intensities[value]
}

func (ns *NodeState) isLive(p *peer, now time.Time) bool {
	return p.alive && now.Sub(p.lastSeen) <= ns.peerTimeout
}

// LivePeers 按id排序的存活邻居
func (ns *NodeState) LivePeers(now time.Time) []types.NodeID {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()

	live := make([]types.NodeID, 0, len(ns.peers))
	for id, p := range ns.peers {
		if ns.isLive(p, now) {
			live = append(live, id)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i] < live[j] })
	return live
}

func (ns *NodeState) IsLive(id types.NodeID, now time.Time) bool {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()
	p, ok := ns.peers[id]
	return ok && ns.isLive(p, now)
}

// Reap 把超时的邻居标记为掉线，返回这次新掉线的邻居
func (ns *NodeState) Reap(now time.Time) []types.NodeID {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()

	dead := []types.NodeID{}
	for id, p := range ns.peers {
		if p.alive && now.Sub(p.lastSeen) > ns.peerTimeout {
			p.alive = false
			dead = append(dead, id)
		}
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i] < dead[j] })
	return dead
}

// Peers 所有邻居的快照
func (ns *NodeState) Peers(now time.Time) []PeerInfo {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()

	res := make([]PeerInfo, 0, len(ns.peers))
	for id, p := range ns.peers {
		info := PeerInfo{
			ID:          id,
			LastSeen:    p.lastSeen,
			Alive:       ns.isLive(p, now),
			Intensities: make(map[types.ValueID]float64, len(p.intensities)),
		}
		for v, i := range p.intensities {
			info.Intensities[v] = i
		}
		res = append(res, info)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// ResetIntensities 新的一轮开始时清空邻居报告的强度
func (ns *NodeState) ResetIntensities() {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	for _, p := range ns.peers {
		p.intensities = make(map[types.ValueID]float64)
	}
}

//-----------------------------------------------------------------------------
// round

func (ns *NodeState) Round() types.RoundID {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()
	return ns.round
}

func (ns *NodeState) SetRound(round types.RoundID) {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	ns.round = round
	if round.Greater(ns.maxSeen) {
		ns.maxSeen = round
	}
}

// ObserveRound 记录见过的最大round
func (ns *NodeState) ObserveRound(round types.RoundID) {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	if round.Greater(ns.maxSeen) {
		ns.maxSeen = round
	}
}

func (ns *NodeState) MaxSeenRound() types.RoundID {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()
	return ns.maxSeen
}

// NextRound 新提案使用的round：见过的最大round + 1
func (ns *NodeState) NextRound() types.RoundID {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()
	return ns.maxSeen.Update(1)
}

func (ns *NodeState) IsCurrentRound(round types.RoundID) bool {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()
	return ns.round != types.LtimeZero && ns.round.Equal(round)
}

func (ns *NodeState) Proposal() types.ValueID {
	ns.mtx.RLock()
	defer ns.mtx.RUnlock()
	return ns.proposal
}

func (ns *NodeState) SetProposal(value types.ValueID) {
	ns.mtx.Lock()
	defer ns.mtx.Unlock()
	ns.proposal = value
}
