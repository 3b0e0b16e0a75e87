package pheromone

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"antcolony_demo/config"
	"antcolony_demo/types"
)

func newTestStore() *Store {
	return NewStore(config.TestPheromoneConfig())
}

func TestDepositClamp(t *testing.T) {
	s := newTestStore()
	now := time.Now()

	assert.InDelta(t, 0.3, s.Deposit("A", 0.3, "n1", now), 1e-9)
	assert.InDelta(t, 0.8, s.Deposit("A", 0.5, "n2", now), 1e-9)
	assert.Equal(t, 1.0, s.Deposit("A", 0.7, "n3", now), "强度不应该超过1")

	p, ok := s.Get("A")
	require.True(t, ok)
	assert.Equal(t, 3, p.Deposits)
	assert.Equal(t, []types.NodeID{"n1", "n2", "n3"}, p.ContributorIDs())

	assert.Equal(t, 0.0, s.IntensityOf("B"), "不存在的值强度为0")
}

func TestDepositDifferentValues(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	s.Deposit("A", 0.2, "n1", now)
	s.Deposit("B", 0.4, "n1", now)

	assert.InDelta(t, 0.2, s.IntensityOf("A"), 1e-9)
	assert.InDelta(t, 0.4, s.IntensityOf("B"), 1e-9)
	assert.Equal(t, 2, s.Len())

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, types.ValueID("A"), snap[0].Value)
	assert.Equal(t, types.ValueID("B"), snap[1].Value)
}

// 没有增强时，强度单调下降
func TestEvaporateMonotone(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	s.Deposit("A", 0.9, "n1", now)

	last := s.IntensityOf("A")
	for i := 0; i < 50; i++ {
		s.Evaporate(now)
		cur := s.IntensityOf("A")
		assert.True(t, cur < last, "round %d: %v should be below %v", i, cur, last)
		assert.True(t, cur >= 0)
		last = cur
	}
	assert.InDelta(t, 0.9*pow(0.99, 50), last, 1e-9)
}

func TestEvaporatePurge(t *testing.T) {
	cfg := config.TestPheromoneConfig()
	cfg.EvaporationRate = 0.5
	cfg.StalenessWindow = time.Second
	s := NewStore(cfg)

	start := time.Now()
	s.Deposit("A", 0.002, "n1", start)
	s.Deposit("B", 0.9, "n1", start)

	// 低于epsilon但贡献者仍然活跃，不清理
	purged := s.Evaporate(start.Add(500 * time.Millisecond))
	assert.Empty(t, purged)
	assert.Equal(t, 2, s.Len())

	purged = s.Evaporate(start.Add(2 * time.Second))
	assert.Equal(t, []types.ValueID{"A"}, purged)
	_, ok := s.Get("A")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestMergeRemote(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	s.Deposit("A", 0.4, "n1", now)

	assert.True(t, s.MergeRemote("A", 0.2, now, now))
	assert.InDelta(t, 0.4, s.IntensityOf("A"), 1e-9, "取较大值")

	assert.True(t, s.MergeRemote("A", 0.7, now.Add(-time.Second), now))
	assert.InDelta(t, 0.7, s.IntensityOf("A"), 1e-9)

	assert.False(t, s.MergeRemote("A", 0.95, now.Add(-2*time.Minute), now), "过期的同步数据")
	assert.InDelta(t, 0.7, s.IntensityOf("A"), 1e-9)

	assert.True(t, s.MergeRemote("C", 3, now, now))
	assert.Equal(t, 1.0, s.IntensityOf("C"))
}

func TestReset(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	s.Deposit("A", 0.5, "n1", now)
	s.Deposit("B", 0.5, "n1", now)
	require.Equal(t, 2, s.Len())

	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0.0, s.IntensityOf("A"))

	// reset之后重新累积
	assert.InDelta(t, 0.1, s.Deposit("A", 0.1, "n2", now), 1e-9)
}

func TestConcurrentDeposits(t *testing.T) {
	s := newTestStore()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Deposit(types.ValueID(fmt.Sprintf("v%d", i%4)), 0.001, types.NodeID(fmt.Sprintf("n%d", i)), now)
				if j%10 == 0 {
					s.Evaporate(now)
				}
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, p := range s.Snapshot() {
		assert.True(t, p.Intensity >= 0 && p.Intensity <= 1)
		total += p.Deposits
	}
	assert.Equal(t, 20*50, total)
}

// 蒸发清理条目的同时读取条目数，用-race运行
func TestConcurrentEvaporateAndLen(t *testing.T) {
	s := newTestStore()
	later := time.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.MergeRemote(types.ValueID(fmt.Sprintf("v%d-%d", i, j)), 0.001, later, later)
				s.Evaporate(later)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n := s.Len()
				assert.True(t, n >= 0)
			}
		}()
	}
	wg.Wait()

	// 没有贡献者的微弱条目全部被清理
	s.Evaporate(later)
	assert.Equal(t, 0, s.Len())
}

func TestEvaporatorService(t *testing.T) {
	defer leaktest.Check(t)()

	cfg := config.TestPheromoneConfig()
	cfg.EvaporationInterval = 10 * time.Millisecond
	s := NewStore(cfg)
	s.Deposit("A", 0.5, "n1", time.Now())

	swept := make(chan int, 16)
	ev := NewEvaporator(s, WithSweepCallback(func(_ []types.ValueID, remaining int) {
		select {
		case swept <- remaining:
		default:
		}
	}))
	ev.SetLogger(log.TestingLogger())
	require.NoError(t, ev.Start())

	select {
	case remaining := <-swept:
		assert.Equal(t, 1, remaining)
	case <-time.After(2 * time.Second):
		t.Fatal("evaporator never swept")
	}
	require.NoError(t, ev.Stop())
	assert.True(t, s.IntensityOf("A") < 0.5)
}

func pow(x float64, n int) float64 {
	r := 1.0
	for i := 0; i < n; i++ {
		r *= x
	}
	return r
}
