package pheromone

import (
	"math"
	"sort"
	"time"

	tmsync "github.com/tendermint/tendermint/libs/sync"

	"antcolony_demo/config"
	"antcolony_demo/types"
)

// entry 单个提案值的信息素，不同的值之间互不阻塞
type entry struct {
	mtx tmsync.Mutex
	types.Pheromone
}

func (e *entry) snapshot() types.Pheromone {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	p := e.Pheromone
	p.Contributors = make(map[types.NodeID]time.Time, len(e.Contributors))
	for id, t := range e.Contributors {
		p.Contributors[id] = t
	}
	return p
}

// Store 本节点的信息素表
// 读和增强持有读锁，蒸发持有写锁，所以一次蒸发对读者来说是原子的
type Store struct {
	config *config.PheromoneConfig

	mtx tmsync.RWMutex

	// 保护entries的增删
	entriesMtx tmsync.Mutex
	entries    map[types.ValueID]*entry
}

func NewStore(cfg *config.PheromoneConfig) *Store {
	return &Store{
		config:  cfg,
		entries: make(map[types.ValueID]*entry),
	}
}

func (s *Store) getOrCreate(value types.ValueID) *entry {
	s.entriesMtx.Lock()
	defer s.entriesMtx.Unlock()

	e, ok := s.entries[value]
	if !ok {
		e = &entry{Pheromone: types.Pheromone{
			Value:        value,
			Contributors: make(map[types.NodeID]time.Time),
		}}
		s.entries[value] = e
	}
	return e
}

func (s *Store) lookup(value types.ValueID) (*entry, bool) {
	s.entriesMtx.Lock()
	defer s.entriesMtx.Unlock()
	e, ok := s.entries[value]
	return e, ok
}

// Deposit 增强value的信息素，结果截断到1，返回增强后的强度
func (s *Store) Deposit(value types.ValueID, amount float64, contributor types.NodeID, now time.Time) float64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	e := s.getOrCreate(value)
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if amount > 0 {
		e.Intensity = types.Clamp01(e.Intensity + amount)
	}
	e.UpdatedAt = now
	e.Deposits++
	if contributor != "" {
		e.Contributors[contributor] = now
	}
	return e.Intensity
}

// Evaporate 所有强度乘以(1-rate)，并清理已经没有活跃贡献者的微弱条目
// 返回被清理的值
func (s *Store) Evaporate(now time.Time) []types.ValueID {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	factor := 1 - s.config.EvaporationRate
	purged := []types.ValueID{}

	// 持有写锁，不会有并发的增强
	for value, e := range s.entries {
		e.Intensity = types.Clamp01(e.Intensity * factor)
		if e.Intensity >= s.config.Epsilon {
			continue
		}
		if last := e.LastActivity(); !last.IsZero() && now.Sub(last) <= s.config.StalenessWindow {
			continue
		}
		s.entriesMtx.Lock()
		delete(s.entries, value)
		s.entriesMtx.Unlock()
		purged = append(purged, value)
	}

	sort.Slice(purged, func(i, j int) bool { return purged[i].Less(purged[j]) })
	return purged
}

// MergeRemote 合并其他节点同步过来的强度，取较大值
// 时间戳与本地时间相差超过StalenessWindow的数据被丢弃
func (s *Store) MergeRemote(value types.ValueID, remote float64, remoteTime, now time.Time) bool {
	if math.Abs(float64(now.Sub(remoteTime))) > float64(s.config.StalenessWindow) {
		return false
	}
	if math.IsNaN(remote) {
		return false
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	e := s.getOrCreate(value)
	e.mtx.Lock()
	defer e.mtx.Unlock()

	remote = types.Clamp01(remote)
	if remote > e.Intensity {
		e.Intensity = remote
		e.UpdatedAt = now
	}
	return true
}

func (s *Store) IntensityOf(value types.ValueID) float64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	e, ok := s.lookup(value)
	if !ok {
		return 0
	}
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Intensity
}

func (s *Store) Get(value types.ValueID) (types.Pheromone, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	e, ok := s.lookup(value)
	if !ok {
		return types.Pheromone{}, false
	}
	return e.snapshot(), true
}

// Snapshot 按值排序的全部条目
func (s *Store) Snapshot() []types.Pheromone {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	s.entriesMtx.Lock()
	list := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	s.entriesMtx.Unlock()

	res := make([]types.Pheromone, 0, len(list))
	for _, e := range list {
		res = append(res, e.snapshot())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Value.Less(res[j].Value) })
	return res
}

func (s *Store) Len() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	s.entriesMtx.Lock()
	defer s.entriesMtx.Unlock()
	return len(s.entries)
}

// Reset 清空信息素表，进入新的round时调用
func (s *Store) Reset() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.entriesMtx.Lock()
	s.entries = make(map[types.ValueID]*entry)
	s.entriesMtx.Unlock()
}
