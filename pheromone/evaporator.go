package pheromone

import (
	"time"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	tmtime "github.com/tendermint/tendermint/types/time"

	"antcolony_demo/types"
)

// Evaporator 定时对Store执行一次蒸发
type Evaporator struct {
	service.BaseService

	store    *Store
	interval time.Duration

	// 每次蒸发后回调，主要用于统计
	onSweep func(purged []types.ValueID, remaining int)
}

type EvaporatorOption func(*Evaporator)

func WithSweepCallback(cb func(purged []types.ValueID, remaining int)) EvaporatorOption {
	return func(ev *Evaporator) {
		ev.onSweep = cb
	}
}

func NewEvaporator(store *Store, options ...EvaporatorOption) *Evaporator {
	ev := &Evaporator{
		store:    store,
		interval: store.config.EvaporationInterval,
	}
	ev.BaseService = *service.NewBaseService(nil, "Evaporator", ev)

	for _, opt := range options {
		opt(ev)
	}
	return ev
}

func (ev *Evaporator) SetLogger(logger log.Logger) {
	ev.Logger = logger
}

func (ev *Evaporator) OnStart() error {
	go ev.sweepRoutine()
	return nil
}

func (ev *Evaporator) sweepRoutine() {
	ticker := time.NewTicker(ev.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ev.Quit():
			return
		case <-ticker.C:
			ev.Sweep(tmtime.Now())
		}
	}
}

// Sweep 立即执行一次蒸发
func (ev *Evaporator) Sweep(now time.Time) {
	purged := ev.store.Evaporate(now)
	remaining := ev.store.Len()
	if len(purged) > 0 {
		ev.Logger.Debug("purged faded pheromones", "values", purged, "remaining", remaining)
	}
	if ev.onSweep != nil {
		ev.onSweep(purged, remaining)
	}
}
