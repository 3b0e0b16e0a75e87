package gossip

import (
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	"antcolony_demo/types"
)

// Handler 处理收到的数据包，在传输层的接收协程中调用
type Handler func(p *Packet)

// Transport 把数据包发送给所有节点，不保证送达，也不保证顺序
type Transport interface {
	service.Service

	Broadcast(p *Packet) error
	SetHandler(h Handler)
}

type TransportOption func(*wire)

// WithSigner 发送的数据包都带签名
func WithSigner(signer Signer) TransportOption {
	return func(w *wire) {
		w.signer = signer
	}
}

// WithAuthenticator 接收时校验签名
func WithAuthenticator(auth *Authenticator) TransportOption {
	return func(w *wire) {
		w.auth = auth
	}
}

func WithTransportMetrics(metrics *Metrics) TransportOption {
	return func(w *wire) {
		w.metrics = metrics
	}
}

// wire 两种传输方式共用的编解码流程：签名、编码、解码、验签
type wire struct {
	self    types.NodeID
	signer  Signer
	auth    *Authenticator
	metrics *Metrics
	logger  log.Logger
}

func newWire(self types.NodeID, options ...TransportOption) *wire {
	w := &wire{
		self:    self,
		metrics: NopMetrics(),
		logger:  log.NewNopLogger(),
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

func (w *wire) encode(p *Packet) ([]byte, error) {
	p.Version = ProtocolVersion
	if p.Sender == "" {
		p.Sender = w.self
	}
	if w.signer != nil {
		if err := SignPacket(w.signer, p); err != nil {
			return nil, errors.Wrap(err, "sign packet")
		}
	}
	bz, err := Encode(p)
	if err != nil {
		return nil, err
	}
	return bz, nil
}

func (w *wire) sent(p *Packet, size int) {
	w.metrics.PacketsSent.With("type", p.Type.String()).Add(1)
	w.metrics.BytesSent.Add(float64(size))
}

func (w *wire) sendFailed(p *Packet, err error) error {
	w.metrics.SendErrors.Add(1)
	w.logger.Error("send packet failed", "packet", p, "err", err)
	return errors.Wrap(types.ErrNetwork, err.Error())
}

// decode 返回nil表示丢弃该数据包
func (w *wire) decode(bz []byte) *Packet {
	p, err := Decode(bz)
	if err != nil {
		w.metrics.Malformed.Add(1)
		w.logger.Debug("drop malformed packet", "err", err, "size", len(bz))
		return nil
	}
	if p.Sender == w.self {
		return nil
	}
	if w.auth != nil {
		if err := w.auth.Verify(p); err != nil {
			w.metrics.RejectedSignatures.Add(1)
			w.logger.Info("drop packet", "sender", p.Sender, "type", p.Type, "err", err)
			return nil
		}
	}
	w.metrics.PacketsReceived.With("type", p.Type.String()).Add(1)
	return p
}
