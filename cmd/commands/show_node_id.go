package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	"antcolony_demo/privval"
)

// ShowNodeIDCmd dumps node's ID to the standard output.
var ShowNodeIDCmd = &cobra.Command{
	Use:     "show-node-id",
	Aliases: []string{"show_node_id"},
	Short:   "Show this node's ID",
	RunE:    showNodeID,
	PreRun:  deprecateSnakeCase,
}

// showNodeID 有密钥文件时同时打印公钥
func showNodeID(cmd *cobra.Command, args []string) error {
	nodeKeyFile := config.NodeKeyFile()
	if !tmos.FileExists(nodeKeyFile) {
		fmt.Println(config.NodeID)
		return nil
	}

	pv, err := privval.LoadFilePV(nodeKeyFile)
	if err != nil {
		return err
	}
	fmt.Println(pv.Key.NodeID, hex.EncodeToString(pv.PubKeyBytes()))
	return nil
}
