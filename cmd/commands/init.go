package commands

import (
	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	cfg "antcolony_demo/config"
	"antcolony_demo/privval"
	"antcolony_demo/types"
)

// InitFilesCmd initialises a fresh node home directory.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the config file and node key",
	RunE:  initFiles,
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	cfg.EnsureRoot(config.RootDir)
	cfg.WriteConfigFile(config.ConfigFile(), config)
	logger.Info("Wrote config file", "path", config.ConfigFile())

	nodeKeyFile := config.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		logger.Info("Found node key", "path", nodeKeyFile)
		return nil
	}
	if _, err := privval.LoadOrGenFilePV(types.NodeID(config.NodeID), nodeKeyFile); err != nil {
		return err
	}
	logger.Info("Generated node key", "path", nodeKeyFile)
	return nil
}
