package types

import (
	"errors"
	"fmt"
	"time"
)

// ConsensusRecord 一轮共识的结果，每轮只生成一次，生成后不可修改
type ConsensusRecord struct {
	Value        ValueID   `json:"value"`
	Round        RoundID   `json:"round"`
	Intensity    float64   `json:"intensity"`
	DecidedAt    time.Time `json:"decided_at"`
	DecidedBy    NodeID    `json:"decided_by"`
	Contributors []NodeID  `json:"contributors"`

	// Adopted 为true表示该结果来自其他节点的ConsensusDecision
	Adopted bool `json:"adopted"`
}

func (r *ConsensusRecord) ValidateBasic() error {
	if r.Value == "" {
		return errors.New("record value is empty")
	}
	if r.Round <= LtimeZero {
		return fmt.Errorf("invalid record round: %v", r.Round)
	}
	return nil
}

func (r *ConsensusRecord) String() string {
	return fmt.Sprintf("Record{round=%v value=%v intensity=%.4f by=%v adopted=%v}",
		r.Round, r.Value, r.Intensity, r.DecidedBy, r.Adopted)
}

// RoundOutcome 交给外部调用者的一轮结果
type RoundOutcome struct {
	Round  RoundID          `json:"round"`
	Result string           `json:"result"`
	Record *ConsensusRecord `json:"record,omitempty"`
	Err    error            `json:"-"`
}

const (
	OutcomeDecided   = "Decided"
	OutcomeCancelled = "Cancelled"
	OutcomeTimedOut  = "TimedOut"
)
