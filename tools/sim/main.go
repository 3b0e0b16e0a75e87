package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/tendermint/tendermint/libs/log"

	"antcolony_demo/config"
	"antcolony_demo/gossip"
	"antcolony_demo/libs/utils"
	nm "antcolony_demo/node"
	"antcolony_demo/types"
)

const pollPeriod = 10 * time.Millisecond

// 在一个进程内运行多个节点，节点之间通过MemNetwork通信
func main() {
	var (
		nodes   int
		rounds  int
		loss    float64
		seed    int64
		timeout time.Duration
		verbose bool
	)

	flagSet := flag.NewFlagSet("sim", flag.ExitOnError)
	flagSet.IntVar(&nodes, "n", 5, "节点数")
	flagSet.IntVar(&rounds, "r", 10, "round数，节点轮流提案")
	flagSet.Float64Var(&loss, "loss", 0, "丢包率")
	flagSet.Int64Var(&seed, "seed", 1, "随机种子")
	flagSet.DurationVar(&timeout, "T", 10*time.Second, "round超时时间")
	flagSet.BoolVar(&verbose, "v", false, "输出debug日志")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout))
	if verbose {
		logger = log.NewFilter(logger, log.AllowDebug())
	} else {
		logger = log.NewFilter(logger, log.AllowError())
	}

	var options []gossip.MemNetworkOption
	if loss > 0 {
		options = append(options, gossip.WithLoss(loss, seed))
	}
	network := gossip.NewMemNetwork(options...)

	swarm := make([]*nm.Node, nodes)
	for i := range swarm {
		n, err := nm.NewNode(simConfig(i, seed, timeout), logger.With("node", i), nm.WithTransportProvider(
			func(cfg *config.Config, self types.NodeID, options ...gossip.TransportOption) gossip.Transport {
				return network.NewTransport(self, options...)
			}))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		swarm[i] = n
	}
	for _, n := range swarm {
		if err := n.Start(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	defer func() {
		for _, n := range swarm {
			n.Stop() // nolint: errcheck
		}
	}()

	// 等待心跳让所有节点互相发现
	time.Sleep(300 * time.Millisecond)

	outcomes := map[string]int{}
	latencies := []float64{}
	for r := 0; r < rounds; r++ {
		proposer := swarm[r%nodes]
		start := time.Now()
		round, err := proposer.ConsensusState().Propose(types.ValueID(fmt.Sprintf("value-%d", r)))
		if err != nil {
			outcomes["Rejected"]++
			time.Sleep(timeout)
			continue
		}

		outcome := waitRound(swarm, round, timeout+time.Second)
		outcomes[outcome]++
		if outcome == types.OutcomeDecided {
			latencies = append(latencies, time.Since(start).Seconds())
		}
	}

	printStatistics(swarm, outcomes, utils.Summarize(latencies...))
}

func simConfig(i int, seed int64, timeout time.Duration) *config.Config {
	cfg := config.DefaultConfig()
	cfg.NodeID = fmt.Sprintf("node%d", i)
	cfg.Ant.Seed = seed + int64(i)
	cfg.Consensus.RoundTimeout = timeout
	cfg.Consensus.ReinforceInterval = 100 * time.Millisecond
	cfg.Gossip.HeartbeatInterval = 100 * time.Millisecond
	cfg.Gossip.PeerTimeout = time.Second
	cfg.RPC.ListenAddress = ""
	return cfg
}

// waitRound 所有节点都结束这一轮后返回提案节点的结果
func waitRound(swarm []*nm.Node, round types.RoundID, timeout time.Duration) string {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		done := true
		for _, n := range swarm {
			rs := n.ConsensusState().GetRoundState()
			if rs.Round < round || rs.Step.IsActive() {
				done = false
				break
			}
		}
		if done {
			return swarm[0].ConsensusState().GetRoundState().LastOutcome
		}
		time.Sleep(pollPeriod)
	}
	return "Unfinished"
}

func printStatistics(swarm []*nm.Node, outcomes map[string]int, s utils.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 5, ' ', 0)
	fmt.Fprintf(w, "Stats\tAvg\tMedian\tMin\tMax\n")
	fmt.Fprintf(w, "Time to decide (s)\t%.3f\t%.3f\t%.3f\t%.3f\n", s.Avg, s.Median, s.Min, s.Max)
	fmt.Fprintln(w)
	for outcome, n := range outcomes {
		fmt.Fprintf(w, "%s\t%d\n", outcome, n)
	}
	fmt.Fprintln(w)
	for _, n := range swarm {
		fmt.Fprintf(w, "%v\t%s\n", n.NodeInfo().ID, n.MetricSet().GetMetrics("stats").JSONString())
	}
	w.Flush()
}
