package rpc

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
	tmtime "github.com/tendermint/tendermint/types/time"

	"antcolony_demo/state"
	"antcolony_demo/types"
)

const maxDecisionsLimit = 100

type ResultStatus struct {
	NodeInfo     types.NodeInfo `json:"node_info"`
	Round        types.RoundID  `json:"round"`
	Step         string         `json:"step"`
	Value        types.ValueID  `json:"value"`
	MaxSeenRound types.RoundID  `json:"max_seen_round"`
	LivePeers    int            `json:"live_peers"`
	LastOutcome  string         `json:"last_outcome"`
}

type ResultPropose struct {
	Round types.RoundID `json:"round"`
	Value types.ValueID `json:"value"`
}

type ResultCancel struct {
	Round types.RoundID `json:"round"`
}

// map的key是自定义的string类型时tmjson无法解码，rpc结果里统一用排序的列表
type ResultRound struct {
	Round       types.RoundID          `json:"round"`
	Step        string                 `json:"step"`
	Value       types.ValueID          `json:"value"`
	Proposers   []ResultProposer       `json:"proposers"`
	Candidates  []ResultCandidate      `json:"candidates"`
	Record      *types.ConsensusRecord `json:"record,omitempty"`
	LastOutcome string                 `json:"last_outcome"`
}

type ResultProposer struct {
	Proposer types.NodeID  `json:"proposer"`
	Value    types.ValueID `json:"value"`
}

type ResultCandidate struct {
	Value     types.ValueID `json:"value"`
	Intensity float64       `json:"intensity"`
}

type ResultDecisions struct {
	Decisions []*types.ConsensusRecord `json:"decisions"`
}

type ResultPheromones struct {
	Pheromones []types.Pheromone `json:"pheromones"`
}

type ResultPeers struct {
	Peers []ResultPeer `json:"peers"`
}

type ResultPeer struct {
	ID          types.NodeID      `json:"id"`
	LastSeen    time.Time         `json:"last_seen"`
	Alive       bool              `json:"alive"`
	Intensities []ResultCandidate `json:"intensities"`
}

func Status(ctx *rpctypes.Context) (*ResultStatus, error) {
	cs := env.Consensus
	rs := cs.GetRoundState()
	ns := cs.NodeState()

	return &ResultStatus{
		NodeInfo:     env.NodeInfo,
		Round:        rs.Round,
		Step:         rs.Step.String(),
		Value:        rs.Value,
		MaxSeenRound: ns.MaxSeenRound(),
		LivePeers:    len(ns.LivePeers(tmtime.Now())),
		LastOutcome:  rs.LastOutcome,
	}, nil
}

// Propose 过长的值用hash作为标识
func Propose(ctx *rpctypes.Context, value string) (*ResultPropose, error) {
	id := types.MakeValueID(value)
	round, err := env.Consensus.Propose(id)
	if err != nil {
		return nil, err
	}
	env.Logger.Info("propose from rpc", "round", round, "value", id)
	return &ResultPropose{Round: round, Value: id}, nil
}

func Cancel(ctx *rpctypes.Context) (*ResultCancel, error) {
	round := env.Consensus.GetRoundState().Round
	if err := env.Consensus.Cancel(); err != nil {
		return nil, err
	}
	return &ResultCancel{Round: round}, nil
}

func Round(ctx *rpctypes.Context) (*ResultRound, error) {
	cs := env.Consensus
	rs := cs.GetRoundState()

	candidates := make([]ResultCandidate, 0, len(rs.Candidates))
	for _, v := range rs.Candidates {
		candidates = append(candidates, ResultCandidate{
			Value:     v,
			Intensity: cs.Store().IntensityOf(v),
		})
	}

	proposers := make([]ResultProposer, 0, len(rs.Proposers))
	for id, v := range rs.Proposers {
		proposers = append(proposers, ResultProposer{Proposer: id, Value: v})
	}
	sort.Slice(proposers, func(i, j int) bool { return proposers[i].Proposer < proposers[j].Proposer })

	return &ResultRound{
		Round:       rs.Round,
		Step:        rs.Step.String(),
		Value:       rs.Value,
		Proposers:   proposers,
		Candidates:  candidates,
		Record:      rs.Record,
		LastOutcome: rs.LastOutcome,
	}, nil
}

// Decisions 最近的limit个结果，新的在前
func Decisions(ctx *rpctypes.Context, limit int) (*ResultDecisions, error) {
	if limit < 0 {
		return nil, errors.Errorf("limit can't be negative, got %d", limit)
	}
	if limit == 0 || limit > maxDecisionsLimit {
		limit = maxDecisionsLimit
	}

	records, err := env.Consensus.Decisions().List(limit)
	if err != nil {
		return nil, errors.Wrap(err, "list decisions")
	}
	return &ResultDecisions{Decisions: records}, nil
}

func Pheromones(ctx *rpctypes.Context) (*ResultPheromones, error) {
	return &ResultPheromones{Pheromones: env.Consensus.Store().Snapshot()}, nil
}

func Peers(ctx *rpctypes.Context) (*ResultPeers, error) {
	infos := env.Consensus.NodeState().Peers(tmtime.Now())
	peers := make([]ResultPeer, 0, len(infos))
	for _, info := range infos {
		peers = append(peers, makeResultPeer(info))
	}
	return &ResultPeers{Peers: peers}, nil
}

func makeResultPeer(info state.PeerInfo) ResultPeer {
	intensities := make([]ResultCandidate, 0, len(info.Intensities))
	for v, i := range info.Intensities {
		intensities = append(intensities, ResultCandidate{Value: v, Intensity: i})
	}
	sort.Slice(intensities, func(i, j int) bool { return intensities[i].Value.Less(intensities[j].Value) })

	return ResultPeer{
		ID:          info.ID,
		LastSeen:    info.LastSeen,
		Alive:       info.Alive,
		Intensities: intensities,
	}
}
