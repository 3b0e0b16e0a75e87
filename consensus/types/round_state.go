package types

import (
	"fmt"
	"sort"
	"time"

	"antcolony_demo/types"
)

//-----------------------------------------------------------------------------
// RoundStepType enum type

// RoundStepType enumerates the state of the consensus state machine
type RoundStepType uint8

// RoundStepType
const (
	RoundStepIdle      = RoundStepType(0x01) // 没有进行中的round
	RoundStepProposed  = RoundStepType(0x02) // 本节点提出提案，尚未广播
	RoundStepExploring = RoundStepType(0x03) // agent在集群中游走
	RoundStepDecided   = RoundStepType(0x04) // 达到阈值或者采纳了其他节点的结果
	RoundStepCancelled = RoundStepType(0x05) // 本地取消或者收到有效的RoundCancel
	RoundStepTimedOut  = RoundStepType(0x06) // 超时，状态机立即回到Idle
)

func (rs RoundStepType) String() string {
	switch rs {
	case RoundStepIdle:
		return "Idle"
	case RoundStepProposed:
		return "Proposed"
	case RoundStepExploring:
		return "Exploring"
	case RoundStepDecided:
		return "Decided"
	case RoundStepCancelled:
		return "Cancelled"
	case RoundStepTimedOut:
		return "TimedOut"
	default:
		return "RoundStepUnknown"
	}
}

// IsActive round进行中，不能发起新的提案
func (rs RoundStepType) IsActive() bool {
	return rs == RoundStepProposed || rs == RoundStepExploring
}

// RoundState 当前round的状态
type RoundState struct {
	Round     types.RoundID `json:"round"`
	Step      RoundStepType `json:"step"`
	StartTime time.Time     `json:"start_time"`

	// 本节点的提案，没有提案时为空
	Value types.ValueID `json:"value"`

	// 提案节点 -> 提案值，来自ProposalAnnounce
	Proposers map[types.NodeID]types.ValueID `json:"proposers"`

	// 这一轮参与竞争的值，有序
	Candidates []types.ValueID `json:"candidates"`

	Record      *types.ConsensusRecord `json:"record"`
	LastOutcome string                 `json:"last_outcome"`
}

func NewRoundState() RoundState {
	return RoundState{
		Step:      RoundStepIdle,
		Proposers: make(map[types.NodeID]types.ValueID),
	}
}

// ResetRound 进入新的round
func (rs *RoundState) ResetRound(round types.RoundID, now time.Time) {
	rs.Round = round
	rs.StartTime = now
	rs.Value = ""
	rs.Proposers = make(map[types.NodeID]types.ValueID)
	rs.Candidates = nil
	rs.Record = nil
}

// AddCandidate 新的值返回true
func (rs *RoundState) AddCandidate(value types.ValueID) bool {
	i := sort.Search(len(rs.Candidates), func(i int) bool { return !rs.Candidates[i].Less(value) })
	if i < len(rs.Candidates) && rs.Candidates[i] == value {
		return false
	}
	rs.Candidates = append(rs.Candidates, "")
	copy(rs.Candidates[i+1:], rs.Candidates[i:])
	rs.Candidates[i] = value
	return true
}

func (rs *RoundState) IsCandidate(value types.ValueID) bool {
	i := sort.Search(len(rs.Candidates), func(i int) bool { return !rs.Candidates[i].Less(value) })
	return i < len(rs.Candidates) && rs.Candidates[i] == value
}

func (rs *RoundState) AddProposer(id types.NodeID, value types.ValueID) {
	if rs.Proposers == nil {
		rs.Proposers = make(map[types.NodeID]types.ValueID)
	}
	rs.Proposers[id] = value
	rs.AddCandidate(value)
}

func (rs *RoundState) IsProposer(id types.NodeID) bool {
	_, ok := rs.Proposers[id]
	return ok
}

// Copy deepcopy，给rpc等外部调用者使用
func (rs *RoundState) Copy() RoundState {
	cp := *rs
	cp.Proposers = make(map[types.NodeID]types.ValueID, len(rs.Proposers))
	for id, v := range rs.Proposers {
		cp.Proposers[id] = v
	}
	cp.Candidates = append([]types.ValueID{}, rs.Candidates...)
	if rs.Record != nil {
		record := *rs.Record
		record.Contributors = append([]types.NodeID{}, rs.Record.Contributors...)
		cp.Record = &record
	}
	return cp
}

// StringShort 日志用的简短描述
func (rs RoundState) StringShort() string {
	return fmt.Sprintf("RoundState{round=%v step=%v value=%v candidates=%v}",
		rs.Round, rs.Step, rs.Value, rs.Candidates)
}
