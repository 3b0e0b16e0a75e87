package types

import (
	"encoding/hex"
	"strings"

	"github.com/tendermint/tendermint/crypto/tmhash"
)

// MaxValueIDLength 超过该长度的提案值用hash作为标识，保证数据包大小可控
const MaxValueIDLength = 64

type NodeID string

type ValueID string

func (id NodeID) String() string {
	return string(id)
}

func (v ValueID) String() string {
	return string(v)
}

// Less 值标识的全序，用于平局时的确定性裁决
func (v ValueID) Less(other ValueID) bool {
	return strings.Compare(string(v), string(other)) < 0
}

// ValueIDFromBytes 完整的sha256摘要的hex编码，长度为MaxValueIDLength
func ValueIDFromBytes(data []byte) ValueID {
	return ValueID(hex.EncodeToString(tmhash.Sum(data)))
}

// MakeValueID 短的提案值直接作为标识，过长的提案值取hash
func MakeValueID(value string) ValueID {
	if len(value) > MaxValueIDLength {
		return ValueIDFromBytes([]byte(value))
	}
	return ValueID(value)
}

// Clamp01 将x限制在[0,1]
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
