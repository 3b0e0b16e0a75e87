package client

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"antcolony_demo/rpc"
	"antcolony_demo/types"
)

const (
	sendTimeout = 10 * time.Second
	readTimeout = 30 * time.Second
)

// WSClient 通过websocket调用节点的rpc，调用是串行的
type WSClient struct {
	Address string

	mtx    sync.Mutex
	conn   *websocket.Conn
	nextID int

	logger log.Logger
}

func connect(host string) (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return c, err
}

// Dial addr可以带tcp://前缀
func Dial(addr string) (*WSClient, error) {
	host := types.RemoveProtocolIfDefined(addr)
	conn, err := connect(host)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %v", host)
	}
	return &WSClient{
		Address: host,
		conn:    conn,
		logger:  log.NewNopLogger(),
	}, nil
}

// SetLogger lets you set your own logger
func (c *WSClient) SetLogger(l log.Logger) {
	c.logger = l
}

// Call 发送一个请求并等待对应id的响应，result用tmjson解码
func (c *WSClient) Call(method string, params map[string]interface{}, result interface{}) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.nextID++
	id := rpctypes.JSONRPCIntID(c.nextID)
	req, err := rpctypes.MapToRequest(id, method, params)
	if err != nil {
		return errors.Wrapf(err, "failed to encode params of %v", method)
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return errors.Wrapf(err, "send %v", method)
	}
	c.logger.Debug("sent request", "method", method, "id", id)

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		var resp rpctypes.RPCResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			return errors.Wrapf(err, "read response of %v", method)
		}
		// 忽略其他请求的响应
		if resp.ID != id {
			c.logger.Debug("skip response", "id", resp.ID)
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil {
			return nil
		}
		return tmjson.Unmarshal(resp.Result, result)
	}
}

// Close To cleanly close a connection, a client should send a close
// frame and wait for the server to close the connection.
func (c *WSClient) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(sendTimeout))
	if err != nil && err != websocket.ErrCloseSent {
		c.logger.Error("failed to write close message", "err", err)
	}
	return c.conn.Close()
}

func (c *WSClient) Status() (*rpc.ResultStatus, error) {
	res := new(rpc.ResultStatus)
	return res, c.Call("status", nil, res)
}

func (c *WSClient) Propose(value string) (*rpc.ResultPropose, error) {
	res := new(rpc.ResultPropose)
	return res, c.Call("propose", map[string]interface{}{"value": value}, res)
}

func (c *WSClient) Cancel() (*rpc.ResultCancel, error) {
	res := new(rpc.ResultCancel)
	return res, c.Call("cancel", nil, res)
}

func (c *WSClient) Round() (*rpc.ResultRound, error) {
	res := new(rpc.ResultRound)
	return res, c.Call("round", nil, res)
}

func (c *WSClient) Decisions(limit int) (*rpc.ResultDecisions, error) {
	res := new(rpc.ResultDecisions)
	return res, c.Call("decisions", map[string]interface{}{"limit": limit}, res)
}

func (c *WSClient) Peers() (*rpc.ResultPeers, error) {
	res := new(rpc.ResultPeers)
	return res, c.Call("peers", nil, res)
}

func (c *WSClient) Metrics(label string) (*rpc.ResultMetrics, error) {
	res := new(rpc.ResultMetrics)
	return res, c.Call("metrics", map[string]interface{}{"label": label}, res)
}

func (c *WSClient) String() string {
	return fmt.Sprintf("WSClient{%v}", c.Address)
}
