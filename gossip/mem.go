package gossip

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	"github.com/tendermint/tendermint/libs/service"

	"antcolony_demo/types"
)

const memInboxSize = 4096

type memDelivery struct {
	to *MemTransport
	bz []byte
}

// MemNetwork 进程内的组播网络，用于测试和模拟
// 手动模式下数据包排队，调用Drain时按发送顺序投递
type MemNetwork struct {
	mtx        sync.Mutex
	transports map[types.NodeID]*MemTransport
	detached   map[types.NodeID]bool

	manual  bool
	pending []memDelivery

	lossRate float64
	rng      *tmrand.Rand
}

type MemNetworkOption func(*MemNetwork)

// WithManualDelivery 数据包只在Drain时投递
func WithManualDelivery() MemNetworkOption {
	return func(n *MemNetwork) {
		n.manual = true
	}
}

// WithLoss 按rate随机丢包，seed固定时丢包序列可重现
func WithLoss(rate float64, seed int64) MemNetworkOption {
	return func(n *MemNetwork) {
		n.lossRate = rate
		n.rng.Seed(seed)
	}
}

func NewMemNetwork(options ...MemNetworkOption) *MemNetwork {
	n := &MemNetwork{
		transports: make(map[types.NodeID]*MemTransport),
		detached:   make(map[types.NodeID]bool),
		rng:        tmrand.NewRand(),
	}
	for _, opt := range options {
		opt(n)
	}
	return n
}

// NewTransport 在网络上创建一个节点的传输
func (n *MemNetwork) NewTransport(self types.NodeID, options ...TransportOption) *MemTransport {
	t := &MemTransport{
		network: n,
		inbox:   make(chan []byte, memInboxSize),
		wire:    newWire(self, options...),
	}
	t.BaseService = *service.NewBaseService(nil, "MemTransport", t)

	n.mtx.Lock()
	n.transports[self] = t
	n.mtx.Unlock()
	return t
}

// Detach 模拟节点掉线，双向的数据包都被丢弃
func (n *MemNetwork) Detach(id types.NodeID) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.detached[id] = true
}

func (n *MemNetwork) Attach(id types.NodeID) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	delete(n.detached, id)
}

func (n *MemNetwork) broadcast(from types.NodeID, bz []byte) {
	n.mtx.Lock()
	if n.detached[from] {
		n.mtx.Unlock()
		return
	}

	ids := make([]string, 0, len(n.transports))
	for id := range n.transports {
		if id != from && !n.detached[id] {
			ids = append(ids, string(id))
		}
	}
	sort.Strings(ids)

	deliveries := make([]memDelivery, 0, len(ids))
	for _, id := range ids {
		if n.lossRate > 0 && n.rng.Float64() < n.lossRate {
			continue
		}
		deliveries = append(deliveries, memDelivery{to: n.transports[types.NodeID(id)], bz: bz})
	}

	if n.manual {
		n.pending = append(n.pending, deliveries...)
		n.mtx.Unlock()
		return
	}
	n.mtx.Unlock()

	for _, d := range deliveries {
		d.to.enqueue(d.bz)
	}
}

// Drain 投递所有排队的数据包，包括投递过程中新产生的数据包
// 返回投递的数量
func (n *MemNetwork) Drain() int {
	return n.DrainN(-1)
}

// DrainN 最多投递max个数据包，max<0表示不限
func (n *MemNetwork) DrainN(max int) int {
	delivered := 0
	for max < 0 || delivered < max {
		n.mtx.Lock()
		if len(n.pending) == 0 {
			n.mtx.Unlock()
			break
		}
		d := n.pending[0]
		n.pending = n.pending[1:]
		n.mtx.Unlock()

		d.to.deliver(d.bz)
		delivered++
	}
	return delivered
}

func (n *MemNetwork) Pending() int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return len(n.pending)
}

//-----------------------------------------------------------------------------

// MemTransport MemNetwork上的一个节点
type MemTransport struct {
	service.BaseService

	network *MemNetwork
	inbox   chan []byte

	handlerMtx sync.RWMutex
	handler    Handler

	*wire
}

var _ Transport = (*MemTransport)(nil)

func (t *MemTransport) SetLogger(logger log.Logger) {
	t.Logger = logger
	t.wire.logger = logger
}

func (t *MemTransport) SetHandler(h Handler) {
	t.handlerMtx.Lock()
	defer t.handlerMtx.Unlock()
	t.handler = h
}

func (t *MemTransport) OnStart() error {
	if !t.network.manual {
		go t.recvRoutine()
	}
	return nil
}

func (t *MemTransport) Broadcast(p *Packet) error {
	if !t.IsRunning() {
		return errors.Wrap(types.ErrNetwork, "transport is not running")
	}
	bz, err := t.encode(p)
	if err != nil {
		return t.sendFailed(p, err)
	}
	t.network.broadcast(t.self, bz)
	t.sent(p, len(bz))
	return nil
}

func (t *MemTransport) enqueue(bz []byte) {
	select {
	case t.inbox <- bz:
	default:
		t.Logger.Error("inbox full, drop packet", "size", len(bz))
	}
}

func (t *MemTransport) recvRoutine() {
	for {
		select {
		case <-t.Quit():
			return
		case bz := <-t.inbox:
			t.deliver(bz)
		}
	}
}

func (t *MemTransport) deliver(bz []byte) {
	if !t.IsRunning() {
		return
	}
	p := t.decode(bz)
	if p == nil {
		return
	}
	t.handlerMtx.RLock()
	h := t.handler
	t.handlerMtx.RUnlock()
	if h != nil {
		h(p)
	}
}
