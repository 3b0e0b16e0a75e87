package types

import "github.com/pkg/errors"

// 共识核心里的错误都不会让进程退出，节点继续参与后续的round
var (
	// ErrNetwork 发送或接收失败，调用者记录日志，不重试
	ErrNetwork = errors.New("network error")

	// ErrMalformedPacket 无法解码的数据包，直接丢弃
	ErrMalformedPacket = errors.New("malformed packet")
	ErrBadVersion      = errors.New("unsupported protocol version")
	ErrBadSignature    = errors.New("packet signature rejected")

	// ErrStaleRound 数据包的round与当前round不一致
	ErrStaleRound = errors.New("stale or unknown round")

	// ErrTooManyAgents 存活的agent过多，拒绝新的spawn
	ErrTooManyAgents = errors.New("too many live agents")

	ErrConsensusTimeout   = errors.New("consensus round timed out")
	ErrRoundActive        = errors.New("a round is already active")
	ErrNoActiveRound      = errors.New("no active round")
	ErrUnauthorizedCancel = errors.New("round cancel from non-authoritative peer")
	ErrEmptyValue         = errors.New("proposal value is empty")
)
