package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const DefaultConfigPath = "dtrackd.toml"

type Config struct {
	Data       DataConfig     `toml:"data"`
	Command    CommandConfig  `toml:"command"`
	Log        LogConfig      `toml:"log"`
	Record     RecordConfig   `toml:"record"`
	Metrics    MetricsConfig  `toml:"metrics"`
	Foxglove   FoxgloveConfig `toml:"foxglove"`
	Monitor    MonitorConfig  `toml:"monitor"`
	configPath string         `toml:"-"`
	baseDir    string         `toml:"-"`
}

type DataConfig struct {
	Port       int    `toml:"port"`
	Multicast  string `toml:"multicast,omitempty"`
	BufferSize int    `toml:"buffer_size"`
	TimeoutUS  int64  `toml:"timeout_us"`
}

type CommandConfig struct {
	Host string `toml:"host,omitempty"`
	// Remote is auto, dtrack1 or dtrack2.
	Remote       string `toml:"remote"`
	Port         int    `toml:"port"`
	TimeoutUS    int64  `toml:"timeout_us"`
	FeedbackPort int    `toml:"feedback_port"`
	DTrack1Port  int    `toml:"dtrack1_port,omitempty"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	Path       string `toml:"path,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type RecordConfig struct {
	Path string `toml:"path,omitempty"`
	// Raw also stores the datagram each frame was parsed from.
	Raw bool `toml:"raw"`
}

type MetricsConfig struct {
	Listen string `toml:"listen,omitempty"`
}

type FoxgloveConfig struct {
	Enabled     bool   `toml:"enabled"`
	WSAddr      string `toml:"ws_addr"`
	ParentFrame string `toml:"parent_frame"`
	FramePrefix string `toml:"frame_prefix"`
	FrameTopic  string `toml:"frame_topic"`
	MarkerTopic string `toml:"marker_topic"`
	LogTopic    string `toml:"log_topic"`
	LogName     string `toml:"log_name"`
}

type MonitorConfig struct {
	RefreshMS int `toml:"refresh_ms"`
	MaxRows   int `toml:"max_rows"`
}

func Default() Config {
	return Config{
		Data: DataConfig{
			Port:       5000,
			BufferSize: 32768,
			TimeoutUS:  1_000_000,
		},
		Command: CommandConfig{
			Remote:       "auto",
			Port:         50105,
			TimeoutUS:    10_000_000,
			FeedbackPort: 50110,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Foxglove: FoxgloveConfig{
			WSAddr:      "127.0.0.1:8765",
			ParentFrame: "room",
			FramePrefix: "dtrack",
			FrameTopic:  "/dtrack/frame",
			MarkerTopic: "/dtrack/markers",
			LogTopic:    "/dtrack/log",
			LogName:     "dtrack",
		},
		Monitor: MonitorConfig{
			RefreshMS: 100,
			MaxRows:   20,
		},
	}
}

func Load(path string) (Config, error) {
	cfg, exists, err := LoadOrDefault(path)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, os.ErrNotExist
	}
	return cfg, nil
}

func LoadOrDefault(path string) (Config, bool, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.normalize(path)
			return cfg, false, nil
		}
		return Config{}, false, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, true, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize(path)

	if err := cfg.Validate(); err != nil {
		return Config{}, true, err
	}
	return cfg, true, nil
}

func (cfg *Config) Save(path string) error {
	cfg.normalize(path)
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (cfg *Config) ConfigPath() string {
	return cfg.configPath
}

// RecordPath is the recording file resolved against the config file's
// directory, empty when recording is off.
func (cfg *Config) RecordPath() string {
	return cfg.resolve(cfg.Record.Path)
}

// LogPath is the log file resolved like RecordPath, empty for stderr.
func (cfg *Config) LogPath() string {
	return cfg.resolve(cfg.Log.Path)
}

func (cfg *Config) DataTimeout() time.Duration {
	return time.Duration(cfg.Data.TimeoutUS) * time.Microsecond
}

func (cfg *Config) CommandTimeout() time.Duration {
	return time.Duration(cfg.Command.TimeoutUS) * time.Microsecond
}

func (cfg *Config) Validate() error {
	if err := checkPort("data.port", cfg.Data.Port); err != nil {
		return err
	}
	if cfg.Data.Multicast != "" {
		ip := net.ParseIP(cfg.Data.Multicast)
		if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
			return fmt.Errorf("data.multicast is not an IPv4 multicast address: %q", cfg.Data.Multicast)
		}
		if cfg.Command.Host != "" {
			return fmt.Errorf("data.multicast and command.host are exclusive")
		}
	}
	if cfg.Data.BufferSize <= 0 {
		return fmt.Errorf("data.buffer_size must be positive: %d", cfg.Data.BufferSize)
	}
	if cfg.Data.TimeoutUS <= 0 {
		return fmt.Errorf("data.timeout_us must be positive: %d", cfg.Data.TimeoutUS)
	}

	switch cfg.Command.Remote {
	case "auto", "dtrack1", "dtrack2":
	default:
		return fmt.Errorf("command.remote must be auto, dtrack1 or dtrack2: %q", cfg.Command.Remote)
	}
	if err := checkPort("command.port", cfg.Command.Port); err != nil {
		return err
	}
	if err := checkPort("command.feedback_port", cfg.Command.FeedbackPort); err != nil {
		return err
	}
	if cfg.Command.DTrack1Port != 0 {
		if err := checkPort("command.dtrack1_port", cfg.Command.DTrack1Port); err != nil {
			return err
		}
	}
	if cfg.Command.Remote == "dtrack1" && cfg.Command.DTrack1Port == 0 {
		return fmt.Errorf("command.remote dtrack1 needs command.dtrack1_port")
	}
	if cfg.Command.TimeoutUS <= 0 {
		return fmt.Errorf("command.timeout_us must be positive: %d", cfg.Command.TimeoutUS)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error: %q", cfg.Log.Level)
	}
	if cfg.Monitor.RefreshMS <= 0 {
		return fmt.Errorf("monitor.refresh_ms must be positive: %d", cfg.Monitor.RefreshMS)
	}
	return nil
}

func checkPort(name string, port int) error {
	if port < 0 || port > 0xFFFF {
		return fmt.Errorf("%s out of range: %d", name, port)
	}
	return nil
}

func (cfg *Config) normalize(path string) {
	def := Default()

	cfg.Data.Multicast = strings.TrimSpace(cfg.Data.Multicast)
	cfg.Command.Host = strings.TrimSpace(cfg.Command.Host)
	cfg.Command.Remote = strings.ToLower(strings.TrimSpace(cfg.Command.Remote))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))

	if cfg.Data.BufferSize == 0 {
		cfg.Data.BufferSize = def.Data.BufferSize
	}
	if cfg.Data.TimeoutUS == 0 {
		cfg.Data.TimeoutUS = def.Data.TimeoutUS
	}
	if cfg.Command.Remote == "" {
		cfg.Command.Remote = def.Command.Remote
	}
	if cfg.Command.Port == 0 {
		cfg.Command.Port = def.Command.Port
	}
	if cfg.Command.TimeoutUS == 0 {
		cfg.Command.TimeoutUS = def.Command.TimeoutUS
	}
	if cfg.Command.FeedbackPort == 0 {
		cfg.Command.FeedbackPort = def.Command.FeedbackPort
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = def.Log.MaxSizeMB
	}

	if cfg.Foxglove.WSAddr == "" {
		cfg.Foxglove.WSAddr = def.Foxglove.WSAddr
	}
	if cfg.Foxglove.ParentFrame == "" {
		cfg.Foxglove.ParentFrame = def.Foxglove.ParentFrame
	}
	if cfg.Foxglove.FramePrefix == "" {
		cfg.Foxglove.FramePrefix = def.Foxglove.FramePrefix
	}
	if cfg.Foxglove.FrameTopic == "" {
		cfg.Foxglove.FrameTopic = def.Foxglove.FrameTopic
	}
	if cfg.Foxglove.MarkerTopic == "" {
		cfg.Foxglove.MarkerTopic = def.Foxglove.MarkerTopic
	}
	if cfg.Foxglove.LogTopic == "" {
		cfg.Foxglove.LogTopic = def.Foxglove.LogTopic
	}
	if cfg.Foxglove.LogName == "" {
		cfg.Foxglove.LogName = def.Foxglove.LogName
	}

	if cfg.Monitor.RefreshMS == 0 {
		cfg.Monitor.RefreshMS = def.Monitor.RefreshMS
	}
	if cfg.Monitor.MaxRows <= 0 {
		cfg.Monitor.MaxRows = def.Monitor.MaxRows
	}

	if path == "" {
		path = cfg.configPath
	}
	if path == "" {
		path = DefaultConfigPath
	}
	cfg.configPath = path
	baseDir := filepath.Dir(path)
	if abs, err := filepath.Abs(baseDir); err == nil {
		baseDir = abs
	}
	cfg.baseDir = baseDir
}

func (cfg *Config) resolve(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !filepath.IsAbs(p) && cfg.baseDir != "" {
		p = filepath.Join(cfg.baseDir, p)
	}
	return filepath.Clean(p)
}
