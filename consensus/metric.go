package consensus

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"antcolony_demo/types"
)

func newConsensusMetric() *consensusMetric {
	return &consensusMetric{
		Round:          0,
		RoundStartTime: time.Time{},
		RoundStatus:    "",
		IsProposer:     false,
	}
}

// consensusMetric 通过rpc的metrics接口输出的共识状态
type consensusMetric struct {
	mtx sync.RWMutex

	Round          int64     `json:"current_round"`
	RoundStartTime time.Time `json:"round_start_time"`
	RoundStatus    string    `json:"current_round_status"`

	IsProposer       bool    `json:"is_proposer"`
	Proposal         string  `json:"proposal"`
	Candidates       int     `json:"candidates"`
	LeadingValue     string  `json:"leading_value"`
	LeadingIntensity float64 `json:"leading_intensity"`

	DecidedRounds   int64 `json:"decided_rounds"`
	TimedOutRounds  int64 `json:"timed_out_rounds"`
	CancelledRounds int64 `json:"cancelled_rounds"`
}

func (cm *consensusMetric) JSONString() string {
	cm.mtx.RLock()
	defer cm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(cm)
	return s
}

func (cm *consensusMetric) MarkRound(round types.RoundID, start time.Time) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Round = round.Int64()
	cm.RoundStartTime = start
	cm.LeadingValue = ""
	cm.LeadingIntensity = 0
	cm.Candidates = 0
}

func (cm *consensusMetric) MarkRoundStatus(v string) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.RoundStatus = v
}

func (cm *consensusMetric) MarkProposal(value types.ValueID) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.IsProposer = value != ""
	cm.Proposal = string(value)
}

func (cm *consensusMetric) MarkLeading(value types.ValueID, intensity float64, candidates int) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.LeadingValue = string(value)
	cm.LeadingIntensity = intensity
	cm.Candidates = candidates
}

func (cm *consensusMetric) MarkOutcome(result string) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	switch result {
	case types.OutcomeDecided:
		cm.DecidedRounds++
	case types.OutcomeTimedOut:
		cm.TimedOutRounds++
	case types.OutcomeCancelled:
		cm.CancelledRounds++
	}
}
