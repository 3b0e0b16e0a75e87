package main

import (
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "antcolony_demo/cmd/commands"
	cfg "antcolony_demo/config"
	nm "antcolony_demo/node"
)

func main() {
	rootCmd := cmd.RootCmd

	// NOTE:
	// Users wishing to:
	//	* Use a different transport
	//	* Export metrics to another registry
	// can copy this file and use something other than the
	// DefaultNewNode function
	nodeFunc := nm.DefaultNewNode

	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.GenNodeKeyCmd,
		cmd.ShowNodeIDCmd,
		cmd.ProposeCmd,
		cmd.VersionCmd,
		cmd.NewRunNodeCmd(nodeFunc),
		cli.NewCompletionCmd(rootCmd, true),
	)

	executor := cmd.PrepareRootCmd(os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultDirName)))
	if err := executor.Execute(); err != nil {
		panic(err)
	}
}
