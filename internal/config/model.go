package config

import "time"

type MasterConfig struct {
	RPCAddress     string          `yaml:"rpcAddress"`
	HTTPAddress    string          `yaml:"httpAddress"`
	MetricsAddress string          `yaml:"metricsAddress"`
	DataDir        string          `yaml:"dataDir"`
	ClusterName    string          `yaml:"clusterName"`
	Heartbeat      HeartbeatConfig `yaml:"heartbeat"`
	TSKValidity    time.Duration   `yaml:"tskValidity"`
}

type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
	// StaleIntervals is how many missed intervals mark a server stale.
	StaleIntervals int `yaml:"staleIntervals"`
}

type TabletServerConfig struct {
	MasterAddress     string        `yaml:"masterAddress"`
	DataDir           string        `yaml:"dataDir"`
	RPCAddress        string        `yaml:"rpcAddress"`
	HTTPAddress       string        `yaml:"httpAddress"`
	HTTPSEnabled      bool          `yaml:"httpsEnabled"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeatTimeout"`
}

func (c *MasterConfig) ApplyDefaults() {
	if c.RPCAddress == "" {
		c.RPCAddress = "0.0.0.0:28010"
	}
	if c.HTTPAddress == "" {
		c.HTTPAddress = "0.0.0.0:28011"
	}
	if c.ClusterName == "" {
		c.ClusterName = "default"
	}
	if c.Heartbeat.Interval <= 0 {
		c.Heartbeat.Interval = 2 * time.Second
	}
	if c.Heartbeat.StaleIntervals <= 0 {
		c.Heartbeat.StaleIntervals = 3
	}
	if c.TSKValidity <= 0 {
		c.TSKValidity = 7 * 24 * time.Hour
	}
}

// StaleAfter is the staleness threshold derived from the heartbeat settings.
func (c *MasterConfig) StaleAfter() time.Duration {
	return time.Duration(c.Heartbeat.StaleIntervals) * c.Heartbeat.Interval
}

func (c *TabletServerConfig) ApplyDefaults() {
	if c.MasterAddress == "" {
		c.MasterAddress = "127.0.0.1:28010"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 2 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 5 * time.Second
	}
}
