package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"antcolony_demo/rpc/client"
	"antcolony_demo/types"
)

var (
	proposeWait     time.Duration
	proposeInterval = 200 * time.Millisecond
)

// ProposeCmd 通过rpc让运行中的节点发起提案
var ProposeCmd = &cobra.Command{
	Use:   "propose [value]",
	Short: "Ask a running node to propose a value",
	Args:  cobra.ExactArgs(1),
	RunE:  propose,
}

func init() {
	ProposeCmd.Flags().String("rpc.laddr", config.RPC.ListenAddress, "节点的RPC地址")
	ProposeCmd.Flags().DurationVar(&proposeWait, "wait", 0, "等待这一轮结束的时间，0表示不等待")
}

func propose(cmd *cobra.Command, args []string) error {
	c, err := client.Dial(config.RPC.ListenAddress)
	if err != nil {
		return err
	}
	defer c.Close()
	c.SetLogger(logger.With("module", "rpc-client"))

	res, err := c.Propose(args[0])
	if err != nil {
		return errors.Wrap(err, "propose")
	}
	logger.Info("proposed", "round", res.Round, "value", res.Value)
	if proposeWait <= 0 {
		return nil
	}

	deadline := time.Now().Add(proposeWait)
	for time.Now().Before(deadline) {
		rs, err := c.Round()
		if err != nil {
			return err
		}
		if rs.Round != res.Round {
			return fmt.Errorf("node moved on to round %v", rs.Round)
		}
		if rs.Step != "Exploring" && rs.Step != "Proposed" {
			return printJSON(rs)
		}
		time.Sleep(proposeInterval)
	}
	return errors.Wrapf(types.ErrConsensusTimeout, "round %v not finished after %v", res.Round, proposeWait)
}

func printJSON(v interface{}) error {
	bz, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(bz))
	return nil
}
