package types

import (
	"errors"
	"fmt"
)

type AgentState uint8

const (
	AgentExploring = AgentState(0x01)
	AgentReturning = AgentState(0x02)
	AgentExpired   = AgentState(0x03)
)

func (s AgentState) String() string {
	switch s {
	case AgentExploring:
		return "Exploring"
	case AgentReturning:
		return "Returning"
	case AgentExpired:
		return "Expired"
	default:
		return "UnknownAgentState"
	}
}

// AgentID 全局唯一：发起节点 + 序号
type AgentID struct {
	Origin NodeID `json:"origin"`
	Seq    uint64 `json:"seq"`
}

func (id AgentID) String() string {
	return fmt.Sprintf("%v#%d", id.Origin, id.Seq)
}

// HopKey 去重用的键，同一个agent的同一跳只能增强一次
func (id AgentID) HopKey(hops int) string {
	return fmt.Sprintf("%v#%d/%d", id.Origin, id.Seq, hops)
}

// AntAgent 蚂蚁的全部状态都序列化在AntHop数据包里，随消息在节点间移动
type AntAgent struct {
	ID      AgentID    `json:"id"`
	Round   RoundID    `json:"round"`
	Value   ValueID    `json:"value"`
	Energy  float64    `json:"energy"`
	Hops    int        `json:"hops"`
	History []NodeID   `json:"history"`
	State   AgentState `json:"state"`
}

func NewAntAgent(id AgentID, round RoundID, value ValueID, energy float64) *AntAgent {
	return &AntAgent{
		ID:      id,
		Round:   round,
		Value:   value,
		Energy:  energy,
		Hops:    0,
		History: []NodeID{},
		State:   AgentExploring,
	}
}

func (a *AntAgent) IsExpired() bool {
	return a.State == AgentExpired
}

// Visit 记录离开的节点，history超过size时丢弃最旧的记录
func (a *AntAgent) Visit(node NodeID, size int) {
	if size <= 0 {
		return
	}
	a.History = append(a.History, node)
	if len(a.History) > size {
		a.History = append([]NodeID{}, a.History[len(a.History)-size:]...)
	}
}

// RecentlyVisited 返回最近n个访问过的节点
func (a *AntAgent) RecentlyVisited(n int) []NodeID {
	if n <= 0 || len(a.History) == 0 {
		return nil
	}
	if n > len(a.History) {
		n = len(a.History)
	}
	return a.History[len(a.History)-n:]
}

func (a *AntAgent) Copy() *AntAgent {
	cp := *a
	cp.History = append([]NodeID{}, a.History...)
	return &cp
}

func (a *AntAgent) ValidateBasic() error {
	if a.ID.Origin == "" {
		return errors.New("agent origin is empty")
	}
	if a.Value == "" {
		return errors.New("agent carries no value")
	}
	if a.Energy < 0 {
		return fmt.Errorf("negative agent energy: %v", a.Energy)
	}
	if a.Hops < 0 {
		return fmt.Errorf("negative hop count: %v", a.Hops)
	}
	return nil
}

func (a *AntAgent) String() string {
	return fmt.Sprintf("Agent{%v round=%v value=%v energy=%.2f hops=%d %v}",
		a.ID, a.Round, a.Value, a.Energy, a.Hops, a.State)
}
