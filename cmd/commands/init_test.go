package commands

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "antcolony_demo/config"
	"antcolony_demo/privval"
	"antcolony_demo/types"
)

func TestInitFiles(t *testing.T) {
	root, err := ioutil.TempDir("", "antcolony-init")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	conf := cfg.DefaultConfig().SetRoot(root)
	conf.NodeID = "A"
	require.NoError(t, initFilesWithConfig(conf))
	assert.FileExists(t, conf.ConfigFile())

	pv, err := privval.LoadFilePV(conf.NodeKeyFile())
	require.NoError(t, err)
	assert.Equal(t, types.NodeID("A"), pv.Key.NodeID)

	// 再次初始化不会覆盖已有的密钥
	require.NoError(t, initFilesWithConfig(conf))
	again, err := privval.LoadFilePV(conf.NodeKeyFile())
	require.NoError(t, err)
	assert.Equal(t, pv.PubKeyBytes(), again.PubKeyBytes())
}
