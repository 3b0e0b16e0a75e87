package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	nm "antcolony_demo/node"
)

// AddNodeFlags exposes some common configuration options on the command-line
// These are exposed for convenience of commands embedding a node
func AddNodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("node_id", config.NodeID, "节点标识")
	cmd.Flags().String("multicast_addr", config.MulticastAddr, "UDP组播地址")
	cmd.Flags().Int("port", config.Port, "本节点的端口")
	cmd.Flags().String("initial_proposal", config.InitialProposal, "启动后立即发起的提案")

	cmd.Flags().Float64("consensus.threshold", config.Consensus.Threshold, "达成共识的信息素强度")
	cmd.Flags().Duration("consensus.round_timeout", config.Consensus.RoundTimeout, "round超时时间")
	cmd.Flags().String("consensus.cancel_policy", config.Consensus.CancelPolicy, "proposer | any")

	cmd.Flags().Bool("gossip.sign_packets", config.Gossip.SignPackets, "给发送的数据包签名")
	cmd.Flags().Bool("gossip.require_signatures", config.Gossip.RequireSignatures, "丢弃没有签名的数据包")

	cmd.Flags().String("rpc.laddr", config.RPC.ListenAddress, "RPC listen address. Port required")
	cmd.Flags().Bool("instrumentation.prometheus", config.Instrumentation.Prometheus, "开启Prometheus")
}

// NewRunNodeCmd returns the command that allows the CLI to start a node.
// It can be used with a custom PrivValidator and in-process ABCI application.
func NewRunNodeCmd(nodeProvider nm.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the ant colony node",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := nodeProvider(config, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			if err := n.Start(); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}

			logger.Info("Started node", "nodeInfo", n.NodeInfo())

			// Stop upon receiving SIGTERM or CTRL-C.
			tmos.TrapSignal(logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "error", err)
					}
				}
			})

			// Run forever.
			select {}
		},
	}

	AddNodeFlags(cmd)
	return cmd
}
