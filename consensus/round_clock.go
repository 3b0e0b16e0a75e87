package consensus

import (
	"fmt"
	"time"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	tmsync "github.com/tendermint/tendermint/libs/sync"
	tmtime "github.com/tendermint/tendermint/types/time"

	cstypes "antcolony_demo/consensus/types"
	"antcolony_demo/types"
)

const tickBufferSize = 10

// internally generated messages which may update the state
type timeoutInfo struct {
	Duration time.Duration         `json:"duration"`
	Round    types.RoundID         `json:"round"`
	Step     cstypes.RoundStepType `json:"step"`
}

func (ti *timeoutInfo) String() string {
	return fmt.Sprintf("%v ; %v/%v", ti.Duration, ti.Round, ti.Step)
}

// RoundClock 每个round的超时定时器
// 新的ScheduleTimeout会覆盖旧的定时器，过期的超时由状态机根据round和step忽略
type RoundClock struct {
	service.BaseService

	timer    *time.Timer
	tickChan chan timeoutInfo // 设置新的定时器
	tockChan chan timeoutInfo // 超时事件

	mtx          tmsync.RWMutex
	lastDuration time.Duration
	lastUpdate   time.Time
}

func NewRoundClock() *RoundClock {
	rc := &RoundClock{
		timer:    time.NewTimer(0),
		tickChan: make(chan timeoutInfo, tickBufferSize),
		tockChan: make(chan timeoutInfo, tickBufferSize),
	}
	rc.BaseService = *service.NewBaseService(nil, "RoundClock", rc)
	rc.stopTimer()
	return rc
}

func (rc *RoundClock) SetLogger(logger log.Logger) {
	rc.Logger = logger
}

func (rc *RoundClock) OnStart() error {
	go rc.timeoutRoutine()
	return nil
}

func (rc *RoundClock) OnStop() {
	rc.stopTimer()
}

// Chan 超时事件
func (rc *RoundClock) Chan() <-chan timeoutInfo {
	return rc.tockChan
}

// ScheduleTimeout 重置定时器
func (rc *RoundClock) ScheduleTimeout(ti timeoutInfo) {
	select {
	case rc.tickChan <- ti:
	case <-rc.Quit():
	}
}

// StopClock 取消当前的定时器
func (rc *RoundClock) StopClock() {
	rc.ScheduleTimeout(timeoutInfo{Duration: -1})
}

func (rc *RoundClock) GetLastDuration() time.Duration {
	rc.mtx.RLock()
	defer rc.mtx.RUnlock()
	return rc.lastDuration
}

// GetLastUpdateTime 最近一次超时事件发生的时间
func (rc *RoundClock) GetLastUpdateTime() time.Time {
	rc.mtx.RLock()
	defer rc.mtx.RUnlock()
	return rc.lastUpdate
}

func (rc *RoundClock) stopTimer() {
	if !rc.timer.Stop() {
		select {
		case <-rc.timer.C:
		default:
		}
	}
}

func (rc *RoundClock) timeoutRoutine() {
	var ti timeoutInfo
	for {
		select {
		case newti := <-rc.tickChan:
			rc.stopTimer()
			ti = newti
			if ti.Duration < 0 {
				continue
			}
			rc.mtx.Lock()
			rc.lastDuration = ti.Duration
			rc.mtx.Unlock()
			rc.timer.Reset(ti.Duration)
			rc.Logger.Debug("scheduled timeout", "timeout", &ti)

		case <-rc.timer.C:
			rc.mtx.Lock()
			rc.lastUpdate = tmtime.Now()
			rc.mtx.Unlock()
			rc.Logger.Info("timed out", "timeout", &ti)
			select {
			case rc.tockChan <- ti:
			case <-rc.Quit():
				return
			}

		case <-rc.Quit():
			return
		}
	}
}
