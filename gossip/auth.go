package gossip

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/cmap"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/sign/eddsa"

	"antcolony_demo/types"
)

// Signer 对发送的数据包签名，由privval.FilePV实现
type Signer interface {
	PubKeyBytes() []byte
	Sign(msg []byte) ([]byte, error)
}

// SignPacket 填充PubKey和Signature
func SignPacket(signer Signer, p *Packet) error {
	p.PubKey = signer.PubKeyBytes()
	p.Signature = nil
	sb, err := p.SignBytes()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(sb)
	if err != nil {
		return err
	}
	p.Signature = sig
	return nil
}

// VerifyPacketSignature 只检查签名本身
func VerifyPacketSignature(p *Packet) error {
	if len(p.PubKey) == 0 || len(p.Signature) == 0 {
		return errors.Wrap(types.ErrBadSignature, "unsigned packet")
	}
	pub := edwards25519.NewBlakeSHA256Ed25519().Point()
	if err := pub.UnmarshalBinary(p.PubKey); err != nil {
		return errors.Wrap(types.ErrBadSignature, err.Error())
	}
	sb, err := p.SignBytes()
	if err != nil {
		return errors.Wrap(types.ErrBadSignature, err.Error())
	}
	if err := eddsa.Verify(pub, sb, p.Signature); err != nil {
		return errors.Wrap(types.ErrBadSignature, err.Error())
	}
	return nil
}

// Authenticator 校验签名，每个sender第一次出现的公钥会被记住
// 之后换了公钥的数据包一律拒绝
type Authenticator struct {
	require bool
	pinned  *cmap.CMap
}

func NewAuthenticator(requireSignatures bool) *Authenticator {
	return &Authenticator{
		require: requireSignatures,
		pinned:  cmap.NewCMap(),
	}
}

func (a *Authenticator) Verify(p *Packet) error {
	if len(p.Signature) == 0 {
		if a.require {
			return errors.Wrap(types.ErrBadSignature, "signature required")
		}
		return nil
	}
	if err := VerifyPacketSignature(p); err != nil {
		return err
	}

	sender := string(p.Sender)
	if known := a.pinned.Get(sender); known != nil {
		if !bytes.Equal(known.([]byte), p.PubKey) {
			return errors.Wrapf(types.ErrBadSignature, "public key of %v changed", p.Sender)
		}
		return nil
	}
	a.pinned.Set(sender, append([]byte{}, p.PubKey...))
	return nil
}

// PinnedKey 返回sender已经记住的公钥
func (a *Authenticator) PinnedKey(sender types.NodeID) ([]byte, bool) {
	v := a.pinned.Get(string(sender))
	if v == nil {
		return nil, false
	}
	return v.([]byte), true
}
