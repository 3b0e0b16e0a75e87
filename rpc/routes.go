package rpc

import rpc "github.com/tendermint/tendermint/rpc/jsonrpc/server"

// Routes HTTP和websocket共用
var Routes = map[string]*rpc.RPCFunc{
	"status":     rpc.NewRPCFunc(Status, ""),
	"propose":    rpc.NewRPCFunc(Propose, "value"),
	"cancel":     rpc.NewRPCFunc(Cancel, ""),
	"round":      rpc.NewRPCFunc(Round, ""),
	"decisions":  rpc.NewRPCFunc(Decisions, "limit"),
	"pheromones": rpc.NewRPCFunc(Pheromones, ""),
	"peers":      rpc.NewRPCFunc(Peers, ""),
	"metrics":    rpc.NewRPCFunc(JSONMetrics, "label"),
}
