// Package config handles loading and managing pushvault configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// HomeEnv overrides the default home directory.
const HomeEnv = "PUSHVAULT_HOME"

// Config represents the pushvault configuration.
type Config struct {
	Data        DataConfig        `toml:"data"`
	Messages    MessagesConfig    `toml:"messages"`
	Observer    ObserverConfig    `toml:"observer"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	Search      SearchConfig      `toml:"search"`
	Server      ServerConfig      `toml:"server"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	ConfigPath string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir  string `toml:"data_dir"`
	CacheDir string `toml:"cache_dir"` // group summary cache; defaults to the user cache dir
}

// MessagesConfig holds defaults applied to incoming messages.
type MessagesConfig struct {
	DefaultGroup string `toml:"default_group"`
	DefaultTTL   int    `toml:"default_ttl"` // days; 999999 keeps messages forever
}

// ObserverConfig tunes change observation.
type ObserverConfig struct {
	PollInterval time.Duration `toml:"poll_interval"` // 0 disables fingerprint polling
}

// MaintenanceConfig holds expiry and compaction settings.
type MaintenanceConfig struct {
	CompactAfterDelete bool   `toml:"compact_after_delete"`
	SweepSchedule      string `toml:"sweep_schedule"`   // cron expression; empty disables
	CompactSchedule    string `toml:"compact_schedule"` // cron expression; empty disables
}

// SearchConfig tunes interactive search.
type SearchConfig struct {
	Debounce time.Duration `toml:"debounce"`
	PageSize int           `toml:"page_size"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	BindAddr        string   `toml:"bind_addr"`        // default 127.0.0.1
	APIPort         int      `toml:"api_port"`         // HTTP server port (default: 8484)
	APIKey          string   `toml:"api_key"`          // API authentication key
	AllowInsecure   bool     `toml:"allow_insecure"`   // permit non-loopback bind without a key
	RateLimitQPS    float64  `toml:"rate_limit_qps"`   // per-client request rate
	CORSOrigins     []string `toml:"cors_origins"`     // empty disables CORS
	CORSCredentials bool     `toml:"cors_credentials"` // Access-Control-Allow-Credentials
	CORSMaxAge      int      `toml:"cors_max_age"`     // preflight cache seconds
}

// ValidateSecure rejects a bind address reachable from other hosts when no
// API key is set, unless AllowInsecure is true.
func (s ServerConfig) ValidateSecure() error {
	if s.APIKey != "" || s.AllowInsecure || isLoopback(s.BindAddr) {
		return nil
	}
	return fmt.Errorf("refusing to bind %s without [server] api_key; set allow_insecure = true to override", s.BindAddr)
}

func isLoopback(addr string) bool {
	if addr == "" || addr == "localhost" {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}

// DefaultHome returns the default pushvault home directory.
// Respects PUSHVAULT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv(HomeEnv); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pushvault"
	}
	return filepath.Join(home, ".pushvault")
}

// NewDefaultConfig returns a Config populated with defaults rooted at homeDir.
func NewDefaultConfig(homeDir string) *Config {
	return &Config{
		HomeDir:    homeDir,
		ConfigPath: filepath.Join(homeDir, "config.toml"),
		Data: DataConfig{
			DataDir: homeDir,
		},
		Messages: MessagesConfig{
			DefaultGroup: "Default",
			DefaultTTL:   999_999,
		},
		Observer: ObserverConfig{
			PollInterval: time.Second,
		},
		Maintenance: MaintenanceConfig{
			SweepSchedule:   "*/15 * * * *",
			CompactSchedule: "30 3 * * *",
		},
		Search: SearchConfig{
			Debounce: 200 * time.Millisecond,
			PageSize: 50,
		},
		Server: ServerConfig{
			BindAddr:     "127.0.0.1",
			APIPort:      8484,
			RateLimitQPS: 20,
		},
	}
}

// Load reads the configuration. homeDir overrides DefaultHome when set.
// With an empty path the file is <home>/config.toml and may be absent; an
// explicit path must exist.
func Load(path, homeDir string) (*Config, error) {
	if homeDir == "" {
		homeDir = DefaultHome()
	} else {
		homeDir = expandPath(homeDir)
	}

	explicit := path != ""
	cfg := NewDefaultConfig(homeDir)
	if explicit {
		cfg.ConfigPath = expandPath(path)
	}

	if _, err := os.Stat(cfg.ConfigPath); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(cfg.ConfigPath, cfg); err != nil {
		return nil, decodeError(err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	cfg.Data.CacheDir = expandPath(cfg.Data.CacheDir)
	if cfg.Messages.DefaultGroup == "" {
		cfg.Messages.DefaultGroup = "Default"
	}
	return cfg, nil
}

// decodeError adds a hint for the most common TOML mistake on Windows:
// backslashes in double-quoted paths are escape sequences.
func decodeError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "invalid escape") || strings.Contains(msg, "hexadecimal digits") {
		return fmt.Errorf("decode config: %w\n"+
			"hint: backslashes in double-quoted strings are escapes; "+
			"use forward slashes (C:/Users/me) or single quotes ('C:\\Users\\me')", err)
	}
	return fmt.Errorf("decode config: %w", err)
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "pushvault.db")
}

// SignalPath returns the cross-process change signal file.
func (c *Config) SignalPath() string {
	return filepath.Join(c.Data.DataDir, "pushvault.signal")
}

// CacheDir returns the directory holding the group summary cache.
func (c *Config) CacheDir() string {
	if c.Data.CacheDir != "" {
		return c.Data.CacheDir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "pushvault")
	}
	return filepath.Join(c.Data.DataDir, "cache")
}

// ServerAddr returns the listen address for the HTTP API.
func (c *Config) ServerAddr() string {
	bind := c.Server.BindAddr
	if bind == "" {
		bind = "127.0.0.1"
	}
	return net.JoinHostPort(bind, strconv.Itoa(c.Server.APIPort))
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
