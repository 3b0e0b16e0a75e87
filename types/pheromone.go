package types

import (
	"fmt"
	"sort"
	"time"
)

// Pheromone 某个提案值在本节点累计的支持度
type Pheromone struct {
	Value     ValueID   `json:"value"`
	Intensity float64   `json:"intensity"`
	UpdatedAt time.Time `json:"updated_at"`
	Deposits  int       `json:"deposits"`

	// 贡献者 -> 最近一次增强的时间
	Contributors map[NodeID]time.Time `json:"-"`
}

// ContributorIDs 返回排序后的贡献者列表
func (p Pheromone) ContributorIDs() []NodeID {
	ids := make([]NodeID, 0, len(p.Contributors))
	for id := range p.Contributors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LastActivity 最近一次有贡献者增强的时间
func (p Pheromone) LastActivity() time.Time {
	var last time.Time
	for _, t := range p.Contributors {
		if t.After(last) {
			last = t
		}
	}
	return last
}

func (p Pheromone) String() string {
	return fmt.Sprintf("Pheromone{%v %.4f deposits=%d contributors=%d}",
		p.Value, p.Intensity, p.Deposits, len(p.Contributors))
}
