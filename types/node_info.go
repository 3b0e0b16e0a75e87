package types

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

const NodeInfoVersion = "1.0"

// NodeInfo 节点对外公布的基本信息，rpc的status接口返回
type NodeInfo struct {
	ID            NodeID `json:"id"`
	MulticastAddr string `json:"multicast_addr"`
	RPCAddress    string `json:"rpc_address"`
	Version       string `json:"version"`

	// 开启签名时为节点的公钥
	PubKey []byte `json:"pub_key,omitempty"`
}

func NewNodeInfo(id NodeID, multicastAddr, rpcAddr string) NodeInfo {
	return NodeInfo{
		ID:            id,
		MulticastAddr: multicastAddr,
		RPCAddress:    RemoveProtocolIfDefined(rpcAddr),
		Version:       NodeInfoVersion,
	}
}

func (info NodeInfo) Validate() error {
	if info.ID == "" {
		return errors.New("node id is empty")
	}
	if _, _, err := net.SplitHostPort(info.MulticastAddr); err != nil {
		return fmt.Errorf("invalid multicast address %q: %v", info.MulticastAddr, err)
	}
	if len(info.Version) > 0 && strings.Trim(info.Version, "\t ") == "" {
		return fmt.Errorf("info.Version must be valid ASCII text without tabs, but got %v", info.Version)
	}
	return nil
}

// CompatibleWith 只检查版本
func (info NodeInfo) CompatibleWith(other NodeInfo) error {
	if other.Version != info.Version {
		return fmt.Errorf("wrong NodeInfo Version. Expected %v, but got %v", info.Version, other.Version)
	}
	return nil
}

func RemoveProtocolIfDefined(addr string) string {
	if strings.Contains(addr, "://") {
		return strings.Split(addr, "://")[1]
	}
	return addr
}
