package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/radman-monitor/pkg/pathing"
)

var (
	ActiveMonitorConfig   *MonitorConfig
	ActiveServerConfig    *ServerConfig
	ActiveCollectorConfig *CollectorConfig
)

func LoadMonitorConfig() error {
	cfg, err := loadMonitorConfigFrom(filepath.Join(pathing.GetConfigDir(), "radman_monitor.toml"))
	if err != nil {
		return err
	}
	ActiveMonitorConfig = cfg
	return nil
}

func LoadServerConfig() error {
	cfg, err := loadServerConfigFrom(filepath.Join(pathing.GetConfigDir(), "radman_server.toml"))
	if err != nil {
		return err
	}
	ActiveServerConfig = cfg
	return nil
}

func LoadCollectorConfig() error {
	cfg, err := loadCollectorConfigFrom(filepath.Join(pathing.GetConfigDir(), "radman_collector.toml"))
	if err != nil {
		return err
	}
	ActiveCollectorConfig = cfg
	return nil
}

func loadMonitorConfigFrom(configPath string) (*MonitorConfig, error) {
	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &MonitorConfig{
			SerialDevice: "/dev/ttyACM0",
			Baudrate:     115200,
			FrequencyMhz: 0,
		}
		if err := writeConfigFile(configPath, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	// Load existing config
	var cfg MonitorConfig
	_, err := toml.DecodeFile(configPath, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadServerConfigFrom(configPath string) (*ServerConfig, error) {
	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &ServerConfig{
			SerialDevice:   "/dev/ttyACM0",
			Baudrate:       115200,
			ListenAddress:  "0.0.0.0",
			ListenPort:     9041,
			MetricsAddress: ":9100",
			FrequencyMhz:   0,
		}
		if err := writeConfigFile(configPath, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	// Load existing config
	var cfg ServerConfig
	_, err := toml.DecodeFile(configPath, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadCollectorConfigFrom(configPath string) (*CollectorConfig, error) {
	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &CollectorConfig{
			ServerHost:   "localhost:9041",
			TLSEnabled:   false,
			RecordingDir: pathing.GetRecordingDir(),
		}
		if err := writeConfigFile(configPath, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	// Load existing config
	var cfg CollectorConfig
	_, err := toml.DecodeFile(configPath, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func writeConfigFile(configPath string, cfg any) error {
	cfgFile, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer cfgFile.Close()
	return toml.NewEncoder(cfgFile).Encode(cfg)
}
