package ant

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"

	"antcolony_demo/types"
)

// AgentPool 记录本节点发出且仍然存活的agent
// agent离开本节点后无法得知它何时过期，所以每个agent都有一个TTL
type AgentPool struct {
	// Atomic integers
	live int64

	maxLive int
	ttl     time.Duration

	addMtx sync.Mutex

	agents    *clist.CList
	agentsMap sync.Map

	logger log.Logger
}

func NewAgentPool(maxLive int, ttl time.Duration) *AgentPool {
	return &AgentPool{
		maxLive: maxLive,
		ttl:     ttl,
		agents:  clist.New(),
		logger:  log.NewNopLogger(),
	}
}

func (pool *AgentPool) SetLogger(logger log.Logger) {
	pool.logger = logger
}

// Add 加入一个新的agent，超过上限时返回ErrTooManyAgents
func (pool *AgentPool) Add(agent *types.AntAgent, now time.Time) error {
	pool.addMtx.Lock()
	defer pool.addMtx.Unlock()

	if pool.Size() >= pool.maxLive {
		return types.ErrTooManyAgents
	}
	key := agent.ID.String()
	if _, ok := pool.agentsMap.Load(key); ok {
		return ErrAgentInPool
	}

	pa := &poolAgent{
		id:        agent.ID,
		round:     agent.Round,
		spawnedAt: now,
	}
	e := pool.agents.PushBack(pa)
	pool.agentsMap.Store(key, e)
	atomic.AddInt64(&pool.live, 1)
	return nil
}

// Remove agent过期或者返回了发起节点
func (pool *AgentPool) Remove(id types.AgentID) bool {
	v, ok := pool.agentsMap.LoadAndDelete(id.String())
	if !ok {
		return false
	}
	e := v.(*clist.CElement)
	pool.agents.Remove(e)
	e.DetachPrev()
	atomic.AddInt64(&pool.live, -1)
	return true
}

func (pool *AgentPool) Has(id types.AgentID) bool {
	_, ok := pool.agentsMap.Load(id.String())
	return ok
}

// Reap 删除超过TTL的agent，返回删除的数量
// 链表按加入时间排序，遇到第一个未过期的即可停止
func (pool *AgentPool) Reap(now time.Time) int {
	reaped := 0
	for e := pool.agents.Front(); e != nil; {
		pa := e.Value.(*poolAgent)
		if now.Sub(pa.spawnedAt) < pool.ttl {
			break
		}
		next := e.Next()
		if pool.Remove(pa.id) {
			reaped++
		}
		e = next
	}
	if reaped > 0 {
		pool.logger.Debug("reaped agents past ttl", "count", reaped, "live", pool.Size())
	}
	return reaped
}

// RemoveRound 结束一轮时清理该轮的全部agent
func (pool *AgentPool) RemoveRound(round types.RoundID) int {
	removed := 0
	for e := pool.agents.Front(); e != nil; {
		pa := e.Value.(*poolAgent)
		next := e.Next()
		if pa.round == round && pool.Remove(pa.id) {
			removed++
		}
		e = next
	}
	return removed
}

func (pool *AgentPool) Size() int {
	return int(atomic.LoadInt64(&pool.live))
}

// Flush 清空
func (pool *AgentPool) Flush() {
	for e := pool.agents.Front(); e != nil; {
		next := e.Next()
		pool.Remove(e.Value.(*poolAgent).id)
		e = next
	}
}

type poolAgent struct {
	id        types.AgentID
	round     types.RoundID
	spawnedAt time.Time
}
