package gossip

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"

	"antcolony_demo/types"
)

const (
	ProtocolVersion = uint8(1)

	// MaxPacketSize UDP数据报的上限
	MaxPacketSize = 65507
)

type PacketType uint8

const (
	PacketProposalAnnounce  = PacketType(0x01)
	PacketAntHop            = PacketType(0x02)
	PacketPheromoneSync     = PacketType(0x03)
	PacketConsensusDecision = PacketType(0x04)
	PacketRoundCancel       = PacketType(0x05)
	PacketHeartbeat         = PacketType(0x06)
)

func (t PacketType) String() string {
	switch t {
	case PacketProposalAnnounce:
		return "ProposalAnnounce"
	case PacketAntHop:
		return "AntHop"
	case PacketPheromoneSync:
		return "PheromoneSync"
	case PacketConsensusDecision:
		return "ConsensusDecision"
	case PacketRoundCancel:
		return "RoundCancel"
	case PacketHeartbeat:
		return "Heartbeat"
	default:
		return "Unknown"
	}
}

// SyncEntry PheromoneSync中的一条强度
type SyncEntry struct {
	Value     types.ValueID `json:"value"`
	Intensity float64       `json:"intensity"`
	Timestamp time.Time     `json:"timestamp"`
}

// Packet 节点之间唯一的消息格式，所有类型共用一个包头
type Packet struct {
	Version   uint8         `json:"version"`
	Type      PacketType    `json:"type"`
	Round     types.RoundID `json:"round"`
	Sender    types.NodeID  `json:"sender"`
	Timestamp time.Time     `json:"timestamp"`

	// AntHop的目标节点，其他节点只用它来更新邻居的存活时间
	To types.NodeID `json:"to,omitempty"`

	Value     types.ValueID `json:"value,omitempty"`
	Intensity float64       `json:"intensity,omitempty"`

	Agent   *types.AntAgent        `json:"agent,omitempty"`
	Entries []SyncEntry            `json:"entries,omitempty"`
	Record  *types.ConsensusRecord `json:"record,omitempty"`

	PubKey    []byte `json:"pub_key,omitempty"`
	Signature []byte `json:"signature,omitempty"`
}

func (p *Packet) ValidateBasic() error {
	if p.Sender == "" {
		return errors.New("empty sender")
	}
	switch p.Type {
	case PacketProposalAnnounce:
		if p.Value == "" {
			return errors.New("announce without value")
		}
		if p.Round <= types.LtimeZero {
			return fmt.Errorf("invalid round %v", p.Round)
		}
	case PacketAntHop:
		if p.To == "" {
			return errors.New("hop without destination")
		}
		if p.Agent == nil {
			return errors.New("hop without agent")
		}
		if err := p.Agent.ValidateBasic(); err != nil {
			return err
		}
		if !p.Agent.Round.Equal(p.Round) {
			return fmt.Errorf("agent round %v does not match packet round %v", p.Agent.Round, p.Round)
		}
	case PacketPheromoneSync:
		if len(p.Entries) == 0 {
			return errors.New("sync without entries")
		}
		for _, e := range p.Entries {
			if e.Value == "" {
				return errors.New("sync entry without value")
			}
		}
	case PacketConsensusDecision:
		if p.Record == nil {
			return errors.New("decision without record")
		}
		if err := p.Record.ValidateBasic(); err != nil {
			return err
		}
		if !p.Record.Round.Equal(p.Round) {
			return fmt.Errorf("record round %v does not match packet round %v", p.Record.Round, p.Round)
		}
	case PacketRoundCancel:
		if p.Round <= types.LtimeZero {
			return fmt.Errorf("invalid round %v", p.Round)
		}
	case PacketHeartbeat:
	default:
		return fmt.Errorf("unknown packet type 0x%02x", uint8(p.Type))
	}
	return nil
}

// SignBytes 不带签名的编码
func (p *Packet) SignBytes() ([]byte, error) {
	cp := *p
	cp.Signature = nil
	return tmjson.Marshal(&cp)
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet{%v round=%v from=%v to=%v value=%v}", p.Type, p.Round, p.Sender, p.To, p.Value)
}

// Encode 编码，超过MaxPacketSize返回错误
func Encode(p *Packet) ([]byte, error) {
	bz, err := tmjson.Marshal(p)
	if err != nil {
		return nil, err
	}
	if len(bz) > MaxPacketSize {
		return nil, fmt.Errorf("packet too large: %d bytes", len(bz))
	}
	return bz, nil
}

// Decode 解码并做基本检查
// 返回的错误可以用errors.Cause与ErrMalformedPacket、ErrBadVersion比较
func Decode(bz []byte) (*Packet, error) {
	if len(bz) == 0 || len(bz) > MaxPacketSize {
		return nil, errors.Wrapf(types.ErrMalformedPacket, "bad packet size %d", len(bz))
	}
	p := new(Packet)
	if err := tmjson.Unmarshal(bz, p); err != nil {
		return nil, errors.Wrap(types.ErrMalformedPacket, err.Error())
	}
	if p.Version != ProtocolVersion {
		return nil, errors.Wrapf(types.ErrBadVersion, "version %d", p.Version)
	}
	if err := p.ValidateBasic(); err != nil {
		return nil, errors.Wrap(types.ErrMalformedPacket, err.Error())
	}
	return p, nil
}
