package consensus

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	cstypes "antcolony_demo/consensus/types"
)

func getTestLogWithDebug() log.Logger {
	return log.NewFilter(log.TestingLogger(), log.AllowDebug())
}

func getTestLog() log.Logger {
	return log.TestingLogger()
}

// 启动后没有设置定时器时不会有任何事件
func TestRoundClockIdle(t *testing.T) {
	defer leaktest.Check(t)()

	rc := NewRoundClock()
	rc.SetLogger(getTestLogWithDebug())
	require.NoError(t, rc.Start())
	defer rc.Stop()

	select {
	case <-rc.Chan():
		t.Error("有额外的超时事件")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRoundClockTimeout(t *testing.T) {
	defer leaktest.Check(t)()

	rc := NewRoundClock()
	rc.SetLogger(getTestLog())
	require.NoError(t, rc.Start())
	defer rc.Stop()

	after := 50 * time.Millisecond
	start := time.Now()
	rc.ScheduleTimeout(timeoutInfo{Duration: after, Round: 7, Step: cstypes.RoundStepExploring})

	select {
	case ti := <-rc.Chan():
		assert.EqualValues(t, 7, ti.Round)
		assert.Equal(t, cstypes.RoundStepExploring, ti.Step)
		assert.True(t, rc.GetLastUpdateTime().Sub(start) >= after, "超时事件没有按照预设时间触发")
		assert.Equal(t, after, rc.GetLastDuration())
	case <-time.After(time.Second):
		t.Error("超时事件没有正确触发")
	}
}

// 先设置一个长的超时，再用短的超时覆盖
func TestRoundClockReset(t *testing.T) {
	defer leaktest.Check(t)()

	rc := NewRoundClock()
	rc.SetLogger(getTestLog())
	require.NoError(t, rc.Start())
	defer rc.Stop()

	rc.ScheduleTimeout(timeoutInfo{Duration: 10 * time.Second, Round: 1})
	rc.ScheduleTimeout(timeoutInfo{Duration: 20 * time.Millisecond, Round: 2})

	select {
	case ti := <-rc.Chan():
		assert.EqualValues(t, 2, ti.Round)
	case <-time.After(time.Second):
		t.Error("超时事件一直没有触发")
	}
}

func TestRoundClockStop(t *testing.T) {
	defer leaktest.Check(t)()

	rc := NewRoundClock()
	rc.SetLogger(getTestLog())
	require.NoError(t, rc.Start())
	defer rc.Stop()

	rc.ScheduleTimeout(timeoutInfo{Duration: 30 * time.Millisecond, Round: 1})
	rc.StopClock()

	select {
	case <-rc.Chan():
		t.Error("取消的定时器不应该触发")
	case <-time.After(100 * time.Millisecond):
	}
}
