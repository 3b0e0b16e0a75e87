package privval

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"
	"go.dedis.ch/kyber/v3/sign/eddsa"
	"go.dedis.ch/kyber/v3/util/random"

	"antcolony_demo/types"
)

//-------------------------------------------------------------------------------

// FilePVKey 节点的签名密钥，PrivKey为eddsa的seed和公钥
type FilePVKey struct {
	NodeID  types.NodeID `json:"node_id"`
	PubKey  []byte       `json:"pub_key"`
	PrivKey []byte       `json:"priv_key"`

	filePath string
}

// Save persists the FilePVKey to its filePath.
func (pvKey FilePVKey) Save() error {
	outFile := pvKey.filePath
	if outFile == "" {
		return errors.New("cannot save node key: filePath not set")
	}

	if err := tmos.EnsureDir(filepath.Dir(outFile), 0700); err != nil {
		return err
	}
	jsonBytes, err := tmjson.MarshalIndent(pvKey, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(outFile, jsonBytes, 0600)
}

//-------------------------------------------------------------------------------

// FilePV 保存在磁盘上的节点密钥，用于给gossip数据包签名
type FilePV struct {
	Key FilePVKey

	signer *eddsa.EdDSA
}

func newFilePV(nodeID types.NodeID, signer *eddsa.EdDSA, keyFilePath string) (*FilePV, error) {
	priv, err := signer.MarshalBinary()
	if err != nil {
		return nil, err
	}
	pub, err := signer.Public.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &FilePV{
		Key: FilePVKey{
			NodeID:   nodeID,
			PubKey:   pub,
			PrivKey:  priv,
			filePath: keyFilePath,
		},
		signer: signer,
	}, nil
}

// GenFilePV 生成新的随机密钥，不会调用Save()
func GenFilePV(nodeID types.NodeID, keyFilePath string) (*FilePV, error) {
	return newFilePV(nodeID, eddsa.NewEdDSA(random.New()), keyFilePath)
}

// LoadFilePV 从keyFilePath读取密钥
func LoadFilePV(keyFilePath string) (*FilePV, error) {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		return nil, err
	}
	pvKey := FilePVKey{}
	if err := tmjson.Unmarshal(keyJSONBytes, &pvKey); err != nil {
		return nil, errors.Wrapf(err, "error reading node key from %v", keyFilePath)
	}

	signer := new(eddsa.EdDSA)
	if err := signer.UnmarshalBinary(pvKey.PrivKey); err != nil {
		return nil, errors.Wrapf(err, "invalid private key in %v", keyFilePath)
	}
	// 公钥总是由私钥推导
	return newFilePV(pvKey.NodeID, signer, keyFilePath)
}

// LoadOrGenFilePV 文件存在时读取，否则生成新的密钥并保存
func LoadOrGenFilePV(nodeID types.NodeID, keyFilePath string) (*FilePV, error) {
	if tmos.FileExists(keyFilePath) {
		return LoadFilePV(keyFilePath)
	}
	pv, err := GenFilePV(nodeID, keyFilePath)
	if err != nil {
		return nil, err
	}
	if err := pv.Save(); err != nil {
		return nil, err
	}
	return pv, nil
}

// PubKeyBytes implements gossip.Signer.
func (pv *FilePV) PubKeyBytes() []byte {
	return pv.Key.PubKey
}

// Sign implements gossip.Signer.
func (pv *FilePV) Sign(msg []byte) ([]byte, error) {
	sig, err := pv.signer.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("error signing packet: %v", err)
	}
	return sig, nil
}

func (pv *FilePV) Verify(msg, sig []byte) error {
	return eddsa.Verify(pv.signer.Public, msg, sig)
}

func (pv *FilePV) Save() error {
	return pv.Key.Save()
}

// String returns a string representation of the FilePV.
func (pv *FilePV) String() string {
	return fmt.Sprintf("NodeKey{%v %X}", pv.Key.NodeID, pv.Key.PubKey)
}
