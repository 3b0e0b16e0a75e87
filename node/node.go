package node

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"

	"antcolony_demo/ant"
	"antcolony_demo/config"
	"antcolony_demo/consensus"
	"antcolony_demo/gossip"
	"antcolony_demo/libs/metric"
	"antcolony_demo/pheromone"
	"antcolony_demo/privval"
	"antcolony_demo/rpc"
	"antcolony_demo/state"
	"antcolony_demo/store"
	"antcolony_demo/types"
)

type Provider func(*config.Config, log.Logger) (*Node, error)

// TransportProvider 创建本节点的传输层，默认为UDP组播
type TransportProvider func(cfg *config.Config, self types.NodeID, options ...gossip.TransportOption) gossip.Transport

// MetricsProvider returns consensus, ant and gossip Metrics.
type MetricsProvider func(nodeID types.NodeID) (*consensus.Metrics, *ant.Metrics, *gossip.Metrics)

// DefaultMetricsProvider instrumentation.prometheus关闭时返回NopMetrics
func DefaultMetricsProvider(cfg *config.InstrumentationConfig) MetricsProvider {
	return func(nodeID types.NodeID) (*consensus.Metrics, *ant.Metrics, *gossip.Metrics) {
		if cfg.Prometheus {
			return consensus.PrometheusMetrics(cfg.Namespace, "node_id", string(nodeID)),
				ant.PrometheusMetrics(cfg.Namespace, "node_id", string(nodeID)),
				gossip.PrometheusMetrics(cfg.Namespace, "node_id", string(nodeID))
		}
		return consensus.NopMetrics(), ant.NopMetrics(), gossip.NopMetrics()
	}
}

func DefaultTransportProvider(cfg *config.Config, self types.NodeID, options ...gossip.TransportOption) gossip.Transport {
	return gossip.NewMulticastTransport(cfg.Gossip, self, cfg.MulticastAddr, cfg.Port, options...)
}

type Node struct {
	service.BaseService

	// config
	config   *config.Config
	nodeInfo types.NodeInfo
	privVal  *privval.FilePV // 没有开启签名时为nil

	// network
	transport gossip.Transport

	// services
	pheromones     *pheromone.Store
	evaporator     *pheromone.Evaporator
	nodeState      *state.NodeState
	engine         *ant.Engine
	decisions      *store.DecisionStore
	consensusState *consensus.ConsensusState
	conR           *consensus.Reactor

	metricSet *metric.MetricSet
	stats     *metric.Stats

	rpcListeners  []net.Listener
	prometheusSrv *http.Server
}

type Option func(*nodeOptions)

type nodeOptions struct {
	transportProvider TransportProvider
	metricsProvider   MetricsProvider
}

// WithTransportProvider 替换传输层，测试中使用MemNetwork
func WithTransportProvider(p TransportProvider) Option {
	return func(o *nodeOptions) {
		o.transportProvider = p
	}
}

func WithMetricsProvider(p MetricsProvider) Option {
	return func(o *nodeOptions) {
		o.metricsProvider = p
	}
}

func DefaultNewNode(cfg *config.Config, logger log.Logger) (*Node, error) {
	return NewNode(cfg, logger)
}

func NewNode(cfg *config.Config, logger log.Logger, options ...Option) (*Node, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	opts := &nodeOptions{
		transportProvider: DefaultTransportProvider,
		metricsProvider:   DefaultMetricsProvider(cfg.Instrumentation),
	}
	for _, option := range options {
		option(opts)
	}

	self := types.NodeID(cfg.NodeID)
	nodeInfo := types.NewNodeInfo(self, cfg.MulticastAddr, cfg.RPC.ListenAddress)
	csMetrics, antMetrics, gossipMetrics := opts.metricsProvider(self)
	stats := metric.NewStats()

	// setup node identity
	transportOptions := []gossip.TransportOption{gossip.WithTransportMetrics(gossipMetrics)}
	var pv *privval.FilePV
	if cfg.Gossip.SignPackets {
		var err error
		pv, err = privval.LoadOrGenFilePV(self, cfg.NodeKeyFile())
		if err != nil {
			return nil, errors.Wrap(err, "load node key")
		}
		nodeInfo.PubKey = pv.PubKeyBytes()
		transportOptions = append(transportOptions,
			gossip.WithSigner(pv),
			gossip.WithAuthenticator(gossip.NewAuthenticator(cfg.Gossip.RequireSignatures)),
		)
		logger.Info("Node key", "file", cfg.NodeKeyFile())
	}
	if err := nodeInfo.Validate(); err != nil {
		return nil, err
	}

	// pheromone
	pheromones := pheromone.NewStore(cfg.Pheromone)
	evaporator := pheromone.NewEvaporator(pheromones, pheromone.WithSweepCallback(
		func(purged []types.ValueID, remaining int) {
			stats.Inc("evaporations", 1)
			stats.Inc("purged_values", int64(len(purged)))
		}))
	evaporator.SetLogger(logger.With("module", "pheromone"))

	nodeState := state.NewNodeState(self, cfg.Gossip.PeerTimeout)

	engine := ant.NewEngine(cfg.Ant, self, pheromones, nodeState, ant.WithMetrics(antMetrics))
	engine.SetLogger(logger.With("module", "ant"))

	decisions := store.NewMemDecisionStore(logger.With("module", "store"))

	consensusState := consensus.NewConsensusState(cfg.Consensus, self, pheromones, engine, nodeState, decisions,
		consensus.WithConsensusMetrics(csMetrics),
		consensus.WithStats(stats),
	)
	consensusState.SetLogger(logger.With("module", "consensus"))

	// Setup Transport.
	transport := opts.transportProvider(cfg, self, transportOptions...)
	transport.SetLogger(logger.With("module", "gossip"))

	conR := consensus.NewReactor(cfg.Gossip, consensusState, transport)
	conR.SetLogger(logger.With("module", "reactor"))

	metricSet := metric.NewMetricSet()
	if err := metricSet.SetMetrics("consensus", consensusState.MetricItem()); err != nil {
		return nil, err
	}
	if err := metricSet.SetMetrics("stats", stats); err != nil {
		return nil, err
	}

	node := &Node{
		config:         cfg,
		nodeInfo:       nodeInfo,
		privVal:        pv,
		transport:      transport,
		pheromones:     pheromones,
		evaporator:     evaporator,
		nodeState:      nodeState,
		engine:         engine,
		decisions:      decisions,
		consensusState: consensusState,
		conR:           conR,
		metricSet:      metricSet,
		stats:          stats,
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)
	return node, nil
}

func (n *Node) OnStart() error {
	rpc.SetEnvironment(&rpc.Environment{
		NodeInfo:  n.nodeInfo,
		Consensus: n.consensusState,
		MetricSet: n.metricSet,
		Logger:    n.Logger.With("module", "rpc"),
	})

	if n.config.RPC.ListenAddress != "" {
		listeners, err := n.startRPC()
		if err != nil {
			return err
		}
		n.rpcListeners = listeners
	}

	if n.config.Instrumentation.Prometheus && n.config.Instrumentation.PrometheusListenAddr != "" {
		n.prometheusSrv = n.startPrometheusServer(n.config.Instrumentation.PrometheusListenAddr)
	}

	// 先启动传输层，再启动依赖它的服务
	if err := n.transport.Start(); err != nil {
		return errors.Wrap(err, "start transport")
	}
	if err := n.evaporator.Start(); err != nil {
		return err
	}
	if err := n.engine.Start(); err != nil {
		return err
	}
	if err := n.consensusState.Start(); err != nil {
		return err
	}
	if err := n.conR.Start(); err != nil {
		return err
	}

	if n.config.InitialProposal != "" {
		value := types.MakeValueID(n.config.InitialProposal)
		round, err := n.consensusState.Propose(value)
		if err != nil {
			return errors.Wrap(err, "initial proposal")
		}
		n.Logger.Info("initial proposal", "round", round, "value", value)
	}
	return nil
}

func (n *Node) OnStop() {
	n.Logger.Info("Stopping Node")

	for _, s := range []service.Service{n.conR, n.consensusState, n.engine, n.evaporator, n.transport} {
		if err := s.Stop(); err != nil {
			n.Logger.Error("Error stopping service", "service", s.String(), "err", err)
		}
	}

	for _, l := range n.rpcListeners {
		n.Logger.Info("Closing rpc listener", "listener", l)
		if err := l.Close(); err != nil {
			n.Logger.Error("Error closing listener", "listener", l, "err", err)
		}
	}

	if n.prometheusSrv != nil {
		if err := n.prometheusSrv.Shutdown(context.Background()); err != nil {
			n.Logger.Error("Prometheus HTTP server Shutdown", "err", err)
		}
	}
}

// startRPC 每个地址上同时提供HTTP和websocket
func (n *Node) startRPC() ([]net.Listener, error) {
	listenAddrs := splitAndTrimEmpty(n.config.RPC.ListenAddress, ",", " ")
	rpcConfig := rpcserver.DefaultConfig()
	rpcConfig.MaxOpenConnections = n.config.RPC.MaxOpenConnections

	listeners := make([]net.Listener, 0, len(listenAddrs))
	for _, listenAddr := range listenAddrs {
		mux := http.NewServeMux()
		rpcLogger := n.Logger.With("module", "rpc-server")
		wm := rpcserver.NewWebsocketManager(rpc.Routes)
		wm.SetLogger(rpcLogger.With("protocol", "websocket"))
		mux.HandleFunc("/websocket", wm.WebsocketHandler)
		rpcserver.RegisterRPCFuncs(mux, rpc.Routes, rpcLogger)

		listener, err := rpcserver.Listen(listenAddr, rpcConfig)
		if err != nil {
			return nil, err
		}

		go func() {
			if err := rpcserver.Serve(listener, mux, rpcLogger, rpcConfig); err != nil {
				n.Logger.Error("Error serving server", "err", err)
			}
		}()
		listeners = append(listeners, listener)
	}
	return listeners, nil
}

func (n *Node) startPrometheusServer(addr string) *http.Server {
	srv := &http.Server{
		Addr: addr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: n.config.RPC.MaxOpenConnections},
			),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			n.Logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}

func (n *Node) NodeInfo() types.NodeInfo {
	return n.nodeInfo
}

func (n *Node) ConsensusState() *consensus.ConsensusState {
	return n.consensusState
}

func (n *Node) ConsensusReactor() *consensus.Reactor {
	return n.conR
}

func (n *Node) Transport() gossip.Transport {
	return n.transport
}

func (n *Node) MetricSet() *metric.MetricSet {
	return n.metricSet
}

// splitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. If sep is empty, SplitAndTrim splits after each
// UTF-8 sequence. First part is equivalent to strings.SplitN with a count of
// -1.  also filter out empty strings, only return non-empty strings.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}
