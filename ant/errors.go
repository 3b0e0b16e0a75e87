package ant

import "errors"

var (
	// ErrAgentInPool agent id重复
	ErrAgentInPool = errors.New("agent already exists in pool")

	// ErrSendQueueFull 发送队列满，本次跳转被丢弃
	ErrSendQueueFull = errors.New("hop send queue is full")
)
