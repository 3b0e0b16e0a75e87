package privval

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempKeyFile(t *testing.T) (string, func()) {
	dir, err := ioutil.TempDir("", "privval_test")
	require.NoError(t, err)
	return filepath.Join(dir, "node_key.json"), func() { os.RemoveAll(dir) }
}

func TestGenSaveLoad(t *testing.T) {
	keyFilePath, cleanup := tempKeyFile(t)
	defer cleanup()

	pv, err := LoadOrGenFilePV("node1", keyFilePath)
	require.NoError(t, err)
	assert.FileExists(t, keyFilePath)

	loaded, err := LoadOrGenFilePV("ignored", keyFilePath)
	require.NoError(t, err)
	assert.Equal(t, pv.Key.NodeID, loaded.Key.NodeID)
	assert.Equal(t, pv.PubKeyBytes(), loaded.PubKeyBytes())

	msg := []byte("pheromone")
	sig, err := pv.Sign(msg)
	require.NoError(t, err)
	assert.NoError(t, loaded.Verify(msg, sig), "loaded key verifies signatures of the original")
	assert.Error(t, loaded.Verify([]byte("other"), sig))
}

func TestSaveWithoutPath(t *testing.T) {
	pv, err := GenFilePV("node1", "")
	require.NoError(t, err)
	assert.Error(t, pv.Save())
}

func TestLoadCorrupted(t *testing.T) {
	keyFilePath, cleanup := tempKeyFile(t)
	defer cleanup()

	require.NoError(t, ioutil.WriteFile(keyFilePath, []byte(`{"node_id":"x","priv_key":"AAAA"}`), 0600))
	_, err := LoadFilePV(keyFilePath)
	assert.Error(t, err)
}
