package config

type MonitorConfig struct {
	SerialDevice string  `toml:"serial_device"`
	Baudrate     uint    `toml:"baudrate"`
	// Conversion frequency in MHz. 0 disables E/H-field conversion
	// and the monitor reports raw percentages only.
	FrequencyMhz float64 `toml:"frequency_mhz"`
}

type ServerConfig struct {
	SerialDevice   string  `toml:"serial_device"`
	Baudrate       uint    `toml:"baudrate"`
	ListenAddress  string  `toml:"listen_address"`
	ListenPort     int     `toml:"listen_port"`
	MetricsAddress string  `toml:"metrics_address"`
	FrequencyMhz   float64 `toml:"frequency_mhz"`
}

type CollectorConfig struct {
	ServerHost   string `toml:"server_host"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	RecordingDir string `toml:"recording_dir"`
}
