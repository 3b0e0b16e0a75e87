package config

import (
	"bytes"
	"path/filepath"
	"text/template"

	tmos "github.com/tendermint/tendermint/libs/os"
)

// DefaultDirPerm is the default permissions used when creating directories.
const DefaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

// EnsureRoot creates the root and config directories if they don't exist,
// and writes a default config file when none is found.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, DefaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), DefaultDirPerm); err != nil {
		panic(err.Error())
	}

	configFilePath := filepath.Join(rootDir, defaultConfigDir, defaultConfigName)
	if !tmos.FileExists(configFilePath) {
		WriteConfigFile(configFilePath, DefaultConfig())
	}
}

// WriteConfigFile renders config using the template and writes it to configFilePath.
func WriteConfigFile(configFilePath string, config *Config) {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, config); err != nil {
		panic(err)
	}

	tmos.MustWriteFile(configFilePath, buffer.Bytes(), 0644)
}

const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# 节点标识，集群内唯一
node_id = "{{ .BaseConfig.NodeID }}"

# UDP组播地址
multicast_addr = "{{ .BaseConfig.MulticastAddr }}"

# 本节点的端口，同一台机器上运行多个节点时需要不同
port = {{ .BaseConfig.Port }}

# 启动后立即发起的提案，为空时不发起
initial_proposal = "{{ .BaseConfig.InitialProposal }}"

# 输出debug日志
verbose = {{ .BaseConfig.Verbose }}

# 签名数据包用的密钥文件
node_key_file = "{{ js .BaseConfig.NodeKey }}"

#######################################################################
###                 Advanced Configuration Options                  ###
#######################################################################

[pheromone]

evaporation_rate = {{ .Pheromone.EvaporationRate }}
evaporation_interval = "{{ .Pheromone.EvaporationInterval }}"
epsilon = {{ .Pheromone.Epsilon }}
staleness_window = "{{ .Pheromone.StalenessWindow }}"

[ant]

fan_out = {{ .Ant.FanOut }}
initial_energy = {{ .Ant.InitialEnergy }}
energy_decay = {{ .Ant.EnergyDecay }}
return_energy = {{ .Ant.ReturnEnergy }}
max_hops = {{ .Ant.MaxHops }}
history_size = {{ .Ant.HistorySize }}
exploration = {{ .Ant.Exploration }}
reinforcement_factor = {{ .Ant.ReinforcementFactor }}
popularity_boost = {{ .Ant.PopularityBoost }}
popularity_cap = {{ .Ant.PopularityCap }}
max_live_agents = {{ .Ant.MaxLiveAgents }}
agent_ttl = "{{ .Ant.AgentTTL }}"
dedup_capacity = {{ .Ant.DedupCapacity }}
send_queue_size = {{ .Ant.SendQueueSize }}

# 0表示不固定随机种子
seed = {{ .Ant.Seed }}

[gossip]

max_packet_size = {{ .Gossip.MaxPacketSize }}
multicast_ttl = {{ .Gossip.MulticastTTL }}

# 组播使用的网卡，为空时由系统选择
interface = "{{ .Gossip.Interface }}"
heartbeat_interval = "{{ .Gossip.HeartbeatInterval }}"
peer_timeout = "{{ .Gossip.PeerTimeout }}"
sign_packets = {{ .Gossip.SignPackets }}
require_signatures = {{ .Gossip.RequireSignatures }}

[consensus]

threshold = {{ .Consensus.Threshold }}
initial_intensity = {{ .Consensus.InitialIntensity }}
round_timeout = "{{ .Consensus.RoundTimeout }}"
reinforce_interval = "{{ .Consensus.ReinforceInterval }}"

# proposer: 只接受提案节点的取消; any: 接受任意节点的取消
cancel_policy = "{{ .Consensus.CancelPolicy }}"

[rpc]

# 为空时不启动rpc服务
laddr = "{{ .RPC.ListenAddress }}"
max_open_connections = {{ .RPC.MaxOpenConnections }}

[instrumentation]

prometheus = {{ .Instrumentation.Prometheus }}
prometheus_listen_addr = "{{ .Instrumentation.PrometheusListenAddr }}"
namespace = "{{ .Instrumentation.Namespace }}"
`
