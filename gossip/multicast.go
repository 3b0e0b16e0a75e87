package gossip

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"golang.org/x/net/ipv4"

	"antcolony_demo/config"
	"antcolony_demo/types"
)

// MulticastTransport 基于UDP组播的传输
// 接收socket加入组播组，发送socket绑定本地端口
type MulticastTransport struct {
	service.BaseService

	config    *config.GossipConfig
	groupAddr string
	port      int

	group    *net.UDPAddr
	recvConn *net.UDPConn
	sendConn *net.UDPConn
	sendMtx  sync.Mutex

	handlerMtx sync.RWMutex
	handler    Handler

	*wire
}

var _ Transport = (*MulticastTransport)(nil)

func NewMulticastTransport(
	cfg *config.GossipConfig,
	self types.NodeID,
	groupAddr string,
	port int,
	options ...TransportOption,
) *MulticastTransport {
	t := &MulticastTransport{
		config:    cfg,
		groupAddr: groupAddr,
		port:      port,
		wire:      newWire(self, options...),
	}
	t.BaseService = *service.NewBaseService(nil, "MulticastTransport", t)
	return t
}

func (t *MulticastTransport) SetLogger(logger log.Logger) {
	t.Logger = logger
	t.wire.logger = logger
}

func (t *MulticastTransport) SetHandler(h Handler) {
	t.handlerMtx.Lock()
	defer t.handlerMtx.Unlock()
	t.handler = h
}

func (t *MulticastTransport) OnStart() error {
	group, err := net.ResolveUDPAddr("udp4", t.groupAddr)
	if err != nil {
		return errors.Wrapf(err, "resolve multicast group %v", t.groupAddr)
	}
	if !group.IP.IsMulticast() {
		return errors.Errorf("%v is not a multicast address", group.IP)
	}
	t.group = group

	var ifi *net.Interface
	if t.config.Interface != "" {
		if ifi, err = net.InterfaceByName(t.config.Interface); err != nil {
			return errors.Wrapf(err, "interface %v", t.config.Interface)
		}
	}

	recvConn, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		return errors.Wrap(err, "join multicast group")
	}
	if err := recvConn.SetReadBuffer(t.config.MaxPacketSize * 64); err != nil {
		t.Logger.Debug("set read buffer failed", "err", err)
	}

	sendConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: t.port})
	if err != nil {
		recvConn.Close()
		return errors.Wrapf(err, "bind local port %d", t.port)
	}

	pc := ipv4.NewPacketConn(sendConn)
	if err := pc.SetMulticastTTL(t.config.MulticastTTL); err != nil {
		t.Logger.Error("set multicast ttl failed", "err", err)
	}
	// 同一台机器上的其他节点也要能收到
	if err := pc.SetMulticastLoopback(true); err != nil {
		t.Logger.Error("enable multicast loopback failed", "err", err)
	}
	if ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			t.Logger.Error("set multicast interface failed", "err", err)
		}
	}

	t.recvConn = recvConn
	t.sendConn = sendConn

	go t.readRoutine()
	t.Logger.Info("joined multicast group", "group", group, "local", sendConn.LocalAddr())
	return nil
}

func (t *MulticastTransport) OnStop() {
	if t.recvConn != nil {
		t.recvConn.Close()
	}
	if t.sendConn != nil {
		t.sendConn.Close()
	}
}

// LocalAddr 发送socket的地址
func (t *MulticastTransport) LocalAddr() net.Addr {
	if t.sendConn == nil {
		return nil
	}
	return t.sendConn.LocalAddr()
}

func (t *MulticastTransport) readRoutine() {
	buf := make([]byte, MaxPacketSize+1)
	for {
		n, src, err := t.recvConn.ReadFromUDP(buf)
		if err != nil {
			if !t.IsRunning() {
				return
			}
			t.Logger.Error("read multicast failed", "err", err)
			continue
		}
		if n > t.config.MaxPacketSize {
			t.metrics.Malformed.Add(1)
			t.Logger.Debug("drop oversized datagram", "src", src, "size", n)
			continue
		}

		p := t.decode(append([]byte{}, buf[:n]...))
		if p == nil {
			continue
		}

		t.handlerMtx.RLock()
		h := t.handler
		t.handlerMtx.RUnlock()
		if h != nil {
			h(p)
		}
	}
}

// Broadcast 发送到组播组，失败时返回ErrNetwork，不重试
func (t *MulticastTransport) Broadcast(p *Packet) error {
	if !t.IsRunning() {
		return errors.Wrap(types.ErrNetwork, "transport is not running")
	}
	bz, err := t.encode(p)
	if err != nil {
		return t.sendFailed(p, err)
	}
	if len(bz) > t.config.MaxPacketSize {
		return t.sendFailed(p, errors.Errorf("packet of %d bytes exceeds limit", len(bz)))
	}

	t.sendMtx.Lock()
	_, err = t.sendConn.WriteToUDP(bz, t.group)
	t.sendMtx.Unlock()
	if err != nil {
		return t.sendFailed(p, err)
	}
	t.sent(p, len(bz))
	return nil
}
