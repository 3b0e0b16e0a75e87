package types

import "strconv"

// LTime 逻辑时钟，集群共享的round编号
type LTime int64

const (
	LtimeZero = LTime(0)
)

// RoundID 每一轮共识的标识
type RoundID = LTime

func (t LTime) Update(delta int) LTime {
	cur := int64(t)
	return LTime(cur + int64(delta))
}

func (t LTime) Equal(other LTime) bool {
	return t == other
}

func (t LTime) Greater(other LTime) bool {
	return t > other
}

func (t LTime) Sub(other LTime) int {
	return int(t - other)
}

func (t LTime) Int64() int64 {
	return int64(t)
}

func (t LTime) String() string {
	return strconv.FormatInt(int64(t), 10)
}
