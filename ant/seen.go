package ant

import (
	"github.com/tendermint/tendermint/libs/clist"
	tmsync "github.com/tendermint/tendermint/libs/sync"
)

// seenSet 有界的FIFO去重窗口，超出容量时淘汰最早的记录
type seenSet struct {
	mtx      tmsync.Mutex
	capacity int
	list     *clist.CList
	keys     map[string]*clist.CElement
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		capacity: capacity,
		list:     clist.New(),
		keys:     make(map[string]*clist.CElement),
	}
}

// Add 第一次出现返回true，重复返回false
func (s *seenSet) Add(key string) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = s.list.PushBack(key)

	for s.list.Len() > s.capacity {
		front := s.list.Front()
		s.list.Remove(front)
		front.DetachPrev()
		delete(s.keys, front.Value.(string))
	}
	return true
}

func (s *seenSet) Has(key string) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	_, ok := s.keys[key]
	return ok
}

func (s *seenSet) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.keys)
}
