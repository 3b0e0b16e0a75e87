package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	"antcolony_demo/privval"
	"antcolony_demo/types"
)

// GenNodeKeyCmd 生成节点用来给数据包签名的公私钥，打印公钥
var GenNodeKeyCmd = &cobra.Command{
	Use:     "gen-node-key",
	Aliases: []string{"gen_node_key"},
	Short:   "Generate a node key for this node and print its public key",
	PreRun:  deprecateSnakeCase,
	RunE:    genNodeKey,
}

func genNodeKey(cmd *cobra.Command, args []string) error {
	nodeKeyFile := config.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		return fmt.Errorf("node key at %s already exists", nodeKeyFile)
	}

	pv, err := privval.LoadOrGenFilePV(types.NodeID(config.NodeID), nodeKeyFile)
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(pv.PubKeyBytes()))
	return nil
}
