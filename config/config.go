package config

import (
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultDirName       = ".antcolony"
	defaultConfigDir     = "config"
	defaultConfigName    = "config.toml"
	defaultNodeKeyName   = "node_key.json"
	DefaultMulticastAddr = "239.255.0.1:5000"

	CancelPolicyProposer = "proposer"
	CancelPolicyAny      = "any"
)

// Config 节点的全部配置，由viper从配置文件、环境变量和命令行参数加载
type Config struct {
	BaseConfig `mapstructure:",squash"`

	Pheromone       *PheromoneConfig       `mapstructure:"pheromone"`
	Ant             *AntConfig             `mapstructure:"ant"`
	Gossip          *GossipConfig          `mapstructure:"gossip"`
	Consensus       *ConsensusConfig       `mapstructure:"consensus"`
	RPC             *RPCConfig             `mapstructure:"rpc"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Pheromone:       DefaultPheromoneConfig(),
		Ant:             DefaultAntConfig(),
		Gossip:          DefaultGossipConfig(),
		Consensus:       DefaultConsensusConfig(),
		RPC:             DefaultRPCConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig 测试用配置，定时器足够长，避免干扰测试中手动推进的流程
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Pheromone:       TestPheromoneConfig(),
		Ant:             TestAntConfig(),
		Gossip:          DefaultGossipConfig(),
		Consensus:       TestConsensusConfig(),
		RPC:             TestRPCConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Pheromone.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [pheromone] section")
	}
	if err := cfg.Ant.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [ant] section")
	}
	if err := cfg.Gossip.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [gossip] section")
	}
	if err := cfg.Consensus.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [consensus] section")
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig 外部协作者提供的启动参数
type BaseConfig struct {
	RootDir string `mapstructure:"home"`

	NodeID          string `mapstructure:"node_id"`
	MulticastAddr   string `mapstructure:"multicast_addr"`
	Port            int    `mapstructure:"port"`
	InitialProposal string `mapstructure:"initial_proposal"`
	Verbose         bool   `mapstructure:"verbose"`

	NodeKey string `mapstructure:"node_key_file"`
}

func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		NodeID:        "node0",
		MulticastAddr: DefaultMulticastAddr,
		Port:          5001,
		NodeKey:       filepath.Join(defaultConfigDir, defaultNodeKeyName),
	}
}

func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.NodeID = "test-node"
	cfg.Verbose = true
	return cfg
}

func (cfg BaseConfig) NodeKeyFile() string {
	return rootify(cfg.NodeKey, cfg.RootDir)
}

func (cfg BaseConfig) ConfigFile() string {
	return rootify(filepath.Join(defaultConfigDir, defaultConfigName), cfg.RootDir)
}

func (cfg BaseConfig) ValidateBasic() error {
	if cfg.NodeID == "" {
		return errors.New("node_id can't be empty")
	}
	if _, _, err := net.SplitHostPort(cfg.MulticastAddr); err != nil {
		return errors.Wrapf(err, "invalid multicast_addr %q", cfg.MulticastAddr)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port out of range: %d", cfg.Port)
	}
	return nil
}

//-----------------------------------------------------------------------------
// PheromoneConfig

type PheromoneConfig struct {
	EvaporationRate     float64       `mapstructure:"evaporation_rate"`
	EvaporationInterval time.Duration `mapstructure:"evaporation_interval"`
	Epsilon             float64       `mapstructure:"epsilon"`
	StalenessWindow     time.Duration `mapstructure:"staleness_window"`
}

func DefaultPheromoneConfig() *PheromoneConfig {
	return &PheromoneConfig{
		EvaporationRate:     0.01,
		EvaporationInterval: 1 * time.Second,
		Epsilon:             1e-3,
		StalenessWindow:     3 * time.Second,
	}
}

func TestPheromoneConfig() *PheromoneConfig {
	cfg := DefaultPheromoneConfig()
	cfg.EvaporationInterval = time.Hour
	cfg.StalenessWindow = time.Minute
	return cfg
}

func (cfg *PheromoneConfig) ValidateBasic() error {
	if cfg.EvaporationRate < 0 || cfg.EvaporationRate >= 1 {
		return fmt.Errorf("evaporation_rate must be in [0,1), got %v", cfg.EvaporationRate)
	}
	if cfg.EvaporationInterval <= 0 {
		return errors.New("evaporation_interval must be positive")
	}
	if cfg.Epsilon < 0 {
		return errors.New("epsilon can't be negative")
	}
	if cfg.StalenessWindow < 0 {
		return errors.New("staleness_window can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// AntConfig

type AntConfig struct {
	FanOut              int     `mapstructure:"fan_out"`
	InitialEnergy       float64 `mapstructure:"initial_energy"`
	EnergyDecay         float64 `mapstructure:"energy_decay"`
	ReturnEnergy        float64 `mapstructure:"return_energy"`
	MaxHops             int     `mapstructure:"max_hops"`
	HistorySize         int     `mapstructure:"history_size"`
	Exploration         float64 `mapstructure:"exploration"`
	ReinforcementFactor float64 `mapstructure:"reinforcement_factor"`
	PopularityBoost     float64 `mapstructure:"popularity_boost"`
	PopularityCap       int     `mapstructure:"popularity_cap"`

	MaxLiveAgents int           `mapstructure:"max_live_agents"`
	AgentTTL      time.Duration `mapstructure:"agent_ttl"`
	DedupCapacity int           `mapstructure:"dedup_capacity"`
	SendQueueSize int           `mapstructure:"send_queue_size"`

	// Seed 为0时使用不确定的随机源
	Seed int64 `mapstructure:"seed"`
}

func DefaultAntConfig() *AntConfig {
	return &AntConfig{
		FanOut:              4,
		InitialEnergy:       1.0,
		EnergyDecay:         0.1,
		ReturnEnergy:        0.3,
		MaxHops:             10,
		HistorySize:         4,
		Exploration:         0.1,
		ReinforcementFactor: 0.1,
		PopularityBoost:     0.05,
		PopularityCap:       10,
		MaxLiveAgents:       256,
		AgentTTL:            10 * time.Second,
		DedupCapacity:       4096,
		SendQueueSize:       1024,
	}
}

func TestAntConfig() *AntConfig {
	cfg := DefaultAntConfig()
	cfg.Seed = 42
	return cfg
}

func (cfg *AntConfig) ValidateBasic() error {
	if cfg.FanOut <= 0 {
		return errors.New("fan_out must be positive")
	}
	if cfg.InitialEnergy <= 0 {
		return errors.New("initial_energy must be positive")
	}
	if cfg.EnergyDecay <= 0 {
		return errors.New("energy_decay must be positive")
	}
	if cfg.MaxHops <= 0 {
		return errors.New("max_hops must be positive")
	}
	if cfg.HistorySize < 0 {
		return errors.New("history_size can't be negative")
	}
	if cfg.Exploration < 0 || cfg.Exploration > 1 {
		return fmt.Errorf("exploration must be in [0,1], got %v", cfg.Exploration)
	}
	if cfg.ReinforcementFactor < 0 {
		return errors.New("reinforcement_factor can't be negative")
	}
	if cfg.MaxLiveAgents <= 0 {
		return errors.New("max_live_agents must be positive")
	}
	if cfg.DedupCapacity <= 0 {
		return errors.New("dedup_capacity must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// GossipConfig

type GossipConfig struct {
	MaxPacketSize     int           `mapstructure:"max_packet_size"`
	MulticastTTL      int           `mapstructure:"multicast_ttl"`
	Interface         string        `mapstructure:"interface"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PeerTimeout       time.Duration `mapstructure:"peer_timeout"`
	SignPackets       bool          `mapstructure:"sign_packets"`
	RequireSignatures bool          `mapstructure:"require_signatures"`
}

func DefaultGossipConfig() *GossipConfig {
	return &GossipConfig{
		MaxPacketSize:     60 * 1024,
		MulticastTTL:      1,
		HeartbeatInterval: 1 * time.Second,
		PeerTimeout:       5 * time.Second,
		SignPackets:       false,
	}
}

func (cfg *GossipConfig) ValidateBasic() error {
	if cfg.MaxPacketSize <= 0 || cfg.MaxPacketSize > 65507 {
		return fmt.Errorf("max_packet_size must be in (0, 65507], got %d", cfg.MaxPacketSize)
	}
	if cfg.HeartbeatInterval <= 0 {
		return errors.New("heartbeat_interval must be positive")
	}
	if cfg.PeerTimeout <= cfg.HeartbeatInterval {
		return errors.New("peer_timeout must be longer than heartbeat_interval")
	}
	if cfg.RequireSignatures && !cfg.SignPackets {
		return errors.New("require_signatures needs sign_packets")
	}
	return nil
}

//-----------------------------------------------------------------------------
// ConsensusConfig

type ConsensusConfig struct {
	Threshold         float64       `mapstructure:"threshold"`
	InitialIntensity  float64       `mapstructure:"initial_intensity"`
	RoundTimeout      time.Duration `mapstructure:"round_timeout"`
	ReinforceInterval time.Duration `mapstructure:"reinforce_interval"`
	CancelPolicy      string        `mapstructure:"cancel_policy"`
}

func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		Threshold:         0.8,
		InitialIntensity:  0.3,
		RoundTimeout:      30 * time.Second,
		ReinforceInterval: 2 * time.Second,
		CancelPolicy:      CancelPolicyProposer,
	}
}

func TestConsensusConfig() *ConsensusConfig {
	cfg := DefaultConsensusConfig()
	cfg.RoundTimeout = time.Hour
	cfg.ReinforceInterval = time.Hour
	return cfg
}

func (cfg *ConsensusConfig) ValidateBasic() error {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0,1], got %v", cfg.Threshold)
	}
	if cfg.InitialIntensity < 0 || cfg.InitialIntensity > 1 {
		return fmt.Errorf("initial_intensity must be in [0,1], got %v", cfg.InitialIntensity)
	}
	if cfg.RoundTimeout <= 0 {
		return errors.New("round_timeout must be positive")
	}
	if cfg.ReinforceInterval <= 0 {
		return errors.New("reinforce_interval must be positive")
	}
	switch cfg.CancelPolicy {
	case CancelPolicyProposer, CancelPolicyAny:
	default:
		return fmt.Errorf("unknown cancel_policy %q", cfg.CancelPolicy)
	}
	return nil
}

//-----------------------------------------------------------------------------
// RPCConfig

// RPCConfig ListenAddress为空时不启动rpc服务
type RPCConfig struct {
	ListenAddress      string `mapstructure:"laddr"`
	MaxOpenConnections int    `mapstructure:"max_open_connections"`
}

func DefaultRPCConfig() *RPCConfig {
	return &RPCConfig{
		ListenAddress:      "tcp://127.0.0.1:26657",
		MaxOpenConnections: 900,
	}
}

func TestRPCConfig() *RPCConfig {
	return &RPCConfig{ListenAddress: ""}
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

type InstrumentationConfig struct {
	Prometheus           bool   `mapstructure:"prometheus"`
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr"`
	Namespace            string `mapstructure:"namespace"`
}

func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		Namespace:            "antcolony",
	}
}

//-----------------------------------------------------------------------------

func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
