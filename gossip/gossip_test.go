package gossip

import (
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	"go.dedis.ch/kyber/v3/sign/eddsa"
	"go.dedis.ch/kyber/v3/util/random"

	"antcolony_demo/config"
	"antcolony_demo/types"
)

// ----- utility -----

type testSigner struct {
	key *eddsa.EdDSA
}

func newTestSigner() *testSigner {
	return &testSigner{key: eddsa.NewEdDSA(random.New())}
}

func (s *testSigner) PubKeyBytes() []byte {
	bz, err := s.key.Public.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return bz
}

func (s *testSigner) Sign(msg []byte) ([]byte, error) {
	return s.key.Sign(msg)
}

type collector struct {
	mtx     sync.Mutex
	packets []*Packet
}

func (c *collector) handle(p *Packet) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.packets = append(c.packets, p)
}

func (c *collector) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.packets)
}

func hopPacket(sender, to types.NodeID) *Packet {
	agent := types.NewAntAgent(types.AgentID{Origin: sender, Seq: 3}, 2, "X", 0.9)
	agent.Hops = 1
	agent.History = []types.NodeID{sender}
	return &Packet{
		Type:      PacketAntHop,
		Round:     2,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
		To:        to,
		Value:     "X",
		Agent:     agent,
	}
}

func startMem(t *testing.T, net *MemNetwork, id types.NodeID, options ...TransportOption) (*MemTransport, *collector) {
	tr := net.NewTransport(id, options...)
	tr.SetLogger(log.TestingLogger())
	c := &collector{}
	tr.SetHandler(c.handle)
	require.NoError(t, tr.Start())
	return tr, c
}

// ----- codec -----

func TestEncodeDecodeHop(t *testing.T) {
	p := hopPacket("A", "B")
	p.Version = ProtocolVersion

	bz, err := Encode(p)
	require.NoError(t, err)

	got, err := Decode(bz)
	require.NoError(t, err)
	assert.Equal(t, PacketAntHop, got.Type)
	assert.Equal(t, types.NodeID("B"), got.To)
	require.NotNil(t, got.Agent)
	assert.Equal(t, p.Agent.ID, got.Agent.ID)
	assert.Equal(t, 0.9, got.Agent.Energy)
	assert.Equal(t, []types.NodeID{"A"}, got.Agent.History)
	assert.True(t, p.Timestamp.Equal(got.Timestamp))
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Equal(t, types.ErrMalformedPacket, errors.Cause(err))

	_, err = Decode(nil)
	assert.Equal(t, types.ErrMalformedPacket, errors.Cause(err))

	_, err = Decode(make([]byte, MaxPacketSize+1))
	assert.Equal(t, types.ErrMalformedPacket, errors.Cause(err))

	p := hopPacket("A", "B")
	p.Version = ProtocolVersion + 1
	bz, err := Encode(p)
	require.NoError(t, err)
	_, err = Decode(bz)
	assert.Equal(t, types.ErrBadVersion, errors.Cause(err))

	// 字段不完整
	p = &Packet{Version: ProtocolVersion, Type: PacketAntHop, Round: 1, Sender: "A"}
	bz, err = Encode(p)
	require.NoError(t, err)
	_, err = Decode(bz)
	assert.Equal(t, types.ErrMalformedPacket, errors.Cause(err))
}

func TestPacketValidateBasic(t *testing.T) {
	testCases := []struct {
		name    string
		packet  *Packet
		wantErr bool
	}{
		{"announce", &Packet{Type: PacketProposalAnnounce, Sender: "A", Round: 1, Value: "X"}, false},
		{"announce without value", &Packet{Type: PacketProposalAnnounce, Sender: "A", Round: 1}, true},
		{"announce round zero", &Packet{Type: PacketProposalAnnounce, Sender: "A", Value: "X"}, true},
		{"no sender", &Packet{Type: PacketHeartbeat}, true},
		{"heartbeat", &Packet{Type: PacketHeartbeat, Sender: "A"}, false},
		{"empty sync", &Packet{Type: PacketPheromoneSync, Sender: "A", Round: 1}, true},
		{"sync", &Packet{Type: PacketPheromoneSync, Sender: "A", Round: 1,
			Entries: []SyncEntry{{Value: "X", Intensity: 0.4}}}, false},
		{"decision without record", &Packet{Type: PacketConsensusDecision, Sender: "A", Round: 1}, true},
		{"decision round mismatch", &Packet{Type: PacketConsensusDecision, Sender: "A", Round: 1,
			Record: &types.ConsensusRecord{Value: "X", Round: 2}}, true},
		{"decision", &Packet{Type: PacketConsensusDecision, Sender: "A", Round: 2,
			Record: &types.ConsensusRecord{Value: "X", Round: 2}}, false},
		{"cancel", &Packet{Type: PacketRoundCancel, Sender: "A", Round: 2}, false},
		{"unknown type", &Packet{Type: PacketType(0x7f), Sender: "A"}, true},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.packet.ValidateBasic()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ----- signatures -----

func TestSignedPacket(t *testing.T) {
	signer := newTestSigner()
	p := hopPacket("A", "B")
	require.NoError(t, SignPacket(signer, p))
	assert.NoError(t, VerifyPacketSignature(p))

	p.Agent.Energy = 1.0
	assert.Equal(t, types.ErrBadSignature, errors.Cause(VerifyPacketSignature(p)), "tampered packet")
}

func TestAuthenticatorPinsKeys(t *testing.T) {
	auth := NewAuthenticator(false)

	first := newTestSigner()
	p := hopPacket("A", "B")
	require.NoError(t, SignPacket(first, p))
	require.NoError(t, auth.Verify(p))

	pinned, ok := auth.PinnedKey("A")
	require.True(t, ok)
	assert.Equal(t, first.PubKeyBytes(), pinned)

	// A换了一个公钥
	other := newTestSigner()
	p = hopPacket("A", "B")
	require.NoError(t, SignPacket(other, p))
	assert.Equal(t, types.ErrBadSignature, errors.Cause(auth.Verify(p)))

	// 不要求签名时放行未签名的数据包
	assert.NoError(t, auth.Verify(hopPacket("C", "B")))
	assert.Error(t, NewAuthenticator(true).Verify(hopPacket("C", "B")))
}

// ----- MemNetwork -----

func TestMemNetworkManualDrain(t *testing.T) {
	net := NewMemNetwork(WithManualDelivery())
	a, ca := startMem(t, net, "A")
	_, cb := startMem(t, net, "B")
	_, cc := startMem(t, net, "C")

	for i := 1; i <= 3; i++ {
		require.NoError(t, a.Broadcast(&Packet{Type: PacketRoundCancel, Round: types.RoundID(i)}))
	}
	assert.Equal(t, 6, net.Pending())
	assert.Equal(t, 0, cb.Len(), "nothing delivered before Drain")

	assert.Equal(t, 6, net.Drain())
	assert.Equal(t, 0, ca.Len(), "own packets are not delivered")
	require.Equal(t, 3, cb.Len())
	require.Equal(t, 3, cc.Len())
	for i, p := range cb.packets {
		assert.Equal(t, types.RoundID(i+1), p.Round, "delivery keeps send order")
		assert.Equal(t, types.NodeID("A"), p.Sender)
		assert.Equal(t, ProtocolVersion, p.Version)
	}
}

func TestMemNetworkDetach(t *testing.T) {
	net := NewMemNetwork(WithManualDelivery())
	a, _ := startMem(t, net, "A")
	_, cb := startMem(t, net, "B")

	net.Detach("B")
	require.NoError(t, a.Broadcast(&Packet{Type: PacketHeartbeat}))
	net.Drain()
	assert.Equal(t, 0, cb.Len())

	net.Attach("B")
	require.NoError(t, a.Broadcast(&Packet{Type: PacketHeartbeat}))
	net.Drain()
	assert.Equal(t, 1, cb.Len())
}

func TestMemNetworkLossDeterministic(t *testing.T) {
	run := func() int {
		net := NewMemNetwork(WithManualDelivery(), WithLoss(0.3, 7))
		a, _ := startMem(t, net, "A")
		_, cb := startMem(t, net, "B")
		for i := 0; i < 100; i++ {
			require.NoError(t, a.Broadcast(&Packet{Type: PacketHeartbeat}))
		}
		net.Drain()
		return cb.Len()
	}
	first := run()
	assert.True(t, first > 40 && first < 95, "delivered %d", first)
	assert.Equal(t, first, run())
}

func TestMemNetworkAsyncSigned(t *testing.T) {
	defer leaktest.Check(t)()

	net := NewMemNetwork()
	a, _ := startMem(t, net, "A", WithSigner(newTestSigner()))
	b, cb := startMem(t, net, "B", WithAuthenticator(NewAuthenticator(true)))
	unsigned, _ := startMem(t, net, "C")

	require.NoError(t, a.Broadcast(hopPacket("A", "B")))
	require.NoError(t, unsigned.Broadcast(&Packet{Type: PacketHeartbeat}))

	assert.Eventually(t, func() bool { return cb.Len() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, cb.Len(), "unsigned packet dropped")
	assert.Equal(t, types.NodeID("A"), cb.packets[0].Sender)

	for _, tr := range []*MemTransport{a, b, unsigned} {
		require.NoError(t, tr.Stop())
	}
}

func TestBroadcastNotRunning(t *testing.T) {
	net := NewMemNetwork()
	tr := net.NewTransport("A")
	err := tr.Broadcast(&Packet{Type: PacketHeartbeat})
	assert.Equal(t, types.ErrNetwork, errors.Cause(err))
}

// ----- multicast -----

func TestMulticastLoopback(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	cfg := config.DefaultGossipConfig()
	group := "239.255.0.1:15123"

	a := NewMulticastTransport(cfg, "A", group, 0)
	a.SetLogger(log.TestingLogger())
	b := NewMulticastTransport(cfg, "B", group, 0)
	b.SetLogger(log.TestingLogger())
	cb := &collector{}
	b.SetHandler(cb.handle)

	if err := a.Start(); err != nil {
		t.Skipf("multicast not available: %v", err)
	}
	defer a.Stop()
	if err := b.Start(); err != nil {
		t.Skipf("multicast not available: %v", err)
	}
	defer b.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for cb.Len() == 0 && time.Now().Before(deadline) {
		if err := a.Broadcast(&Packet{Type: PacketHeartbeat}); err != nil {
			t.Skipf("multicast send failed: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if cb.Len() == 0 {
		t.Skip("no multicast route in this environment")
	}
	assert.Equal(t, types.NodeID("A"), cb.packets[0].Sender)
}
