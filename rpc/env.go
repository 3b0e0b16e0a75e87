package rpc

import (
	"github.com/tendermint/tendermint/libs/log"

	"antcolony_demo/consensus"
	"antcolony_demo/libs/metric"
	"antcolony_demo/types"
)

var (
	env *Environment
)

func SetEnvironment(e *Environment) {
	env = e
}

// Environment rpc接口需要访问的节点组件
type Environment struct {
	NodeInfo  types.NodeInfo
	Consensus *consensus.ConsensusState

	MetricSet *metric.MetricSet

	Logger log.Logger
}
