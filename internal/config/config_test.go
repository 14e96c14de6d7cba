package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HomeDir != tmpDir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, tmpDir)
	}
	if cfg.DatabasePath() != filepath.Join(tmpDir, "pushvault.db") {
		t.Errorf("DatabasePath() = %q", cfg.DatabasePath())
	}
	if cfg.SignalPath() != filepath.Join(tmpDir, "pushvault.signal") {
		t.Errorf("SignalPath() = %q", cfg.SignalPath())
	}
	if cfg.Messages.DefaultGroup != "Default" || cfg.Messages.DefaultTTL != 999_999 {
		t.Errorf("Messages = %+v", cfg.Messages)
	}
	if cfg.Observer.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.Observer.PollInterval)
	}
	if cfg.Search.Debounce != 200*time.Millisecond {
		t.Errorf("Debounce = %v, want 200ms", cfg.Search.Debounce)
	}
	if cfg.Maintenance.CompactAfterDelete {
		t.Error("CompactAfterDelete should default to false")
	}
	if cfg.ServerAddr() != "127.0.0.1:8484" {
		t.Errorf("ServerAddr() = %q", cfg.ServerAddr())
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)
	cacheDir := filepath.Join(tmpDir, "c")

	writeConfig(t, tmpDir, `
[data]
cache_dir = "`+filepath.ToSlash(cacheDir)+`"

[messages]
default_group = "Inbox"
default_ttl = 30

[observer]
poll_interval = "250ms"

[maintenance]
compact_after_delete = true
sweep_schedule = "0 * * * *"

[search]
debounce = "50ms"

[server]
api_port = 9090
api_key = "test-secret-key"
`)

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Messages.DefaultGroup != "Inbox" || cfg.Messages.DefaultTTL != 30 {
		t.Errorf("Messages = %+v", cfg.Messages)
	}
	if cfg.Observer.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Observer.PollInterval)
	}
	if !cfg.Maintenance.CompactAfterDelete || cfg.Maintenance.SweepSchedule != "0 * * * *" {
		t.Errorf("Maintenance = %+v", cfg.Maintenance)
	}
	if cfg.Maintenance.CompactSchedule != "30 3 * * *" {
		t.Errorf("CompactSchedule = %q, want default kept", cfg.Maintenance.CompactSchedule)
	}
	if cfg.Search.Debounce != 50*time.Millisecond {
		t.Errorf("Debounce = %v", cfg.Search.Debounce)
	}
	if cfg.Server.APIPort != 9090 || cfg.Server.APIKey != "test-secret-key" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if filepath.Clean(cfg.CacheDir()) != cacheDir {
		t.Errorf("CacheDir() = %q, want %q", cfg.CacheDir(), cacheDir)
	}
}

func TestLoadEmptyDefaultGroupFallsBack(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)
	writeConfig(t, tmpDir, "[messages]\ndefault_group = \"\"\n")

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Messages.DefaultGroup != "Default" {
		t.Errorf("DefaultGroup = %q, want Default", cfg.Messages.DefaultGroup)
	}
}

func TestLoadExplicitPathNotFound(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), "")
	if err == nil {
		t.Fatal("Load with missing explicit path should fail")
	}
}

func TestLoadWithHomeDir(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	home := t.TempDir()
	writeConfig(t, home, "[server]\napi_port = 7000\n")

	cfg, err := Load("", home)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HomeDir != home || cfg.Data.DataDir != home {
		t.Errorf("HomeDir = %q DataDir = %q, want %q", cfg.HomeDir, cfg.Data.DataDir, home)
	}
	if cfg.Server.APIPort != 7000 {
		t.Errorf("APIPort = %d, want 7000", cfg.Server.APIPort)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)
	writeConfig(t, tmpDir, "[observer]\npoll_interval = \"soon\"\n")

	if _, err := Load("", ""); err == nil {
		t.Fatal("Load should reject an unparseable duration")
	}
}

func TestLoadBackslashErrorHint(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "invalid escape (backslash G)",
			// \G is not a valid TOML escape → "invalid escape" error
			content: "[data]\ndata_dir = \"C:\\Games\\pushvault\"\n",
		},
		{
			name: "unicode escape (backslash U)",
			// \U is a TOML Unicode escape expecting 8 hex digits → "hexadecimal digits" error
			content: "[data]\ndata_dir = \"C:\\Users\\me\\pushvault\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Setenv(HomeEnv, tmpDir)
			writeConfig(t, tmpDir, tt.content)

			_, err := Load("", "")
			if err == nil {
				t.Fatal("Load should fail on TOML backslash error")
			}
			errMsg := err.Error()
			for _, want := range []string{"hint:", "forward slashes", "single quotes"} {
				if !strings.Contains(errMsg, want) {
					t.Errorf("error should contain %q, got: %s", want, errMsg)
				}
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get user home dir: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
		unixOnly bool
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "just tilde", input: "~", expected: home},
		{name: "tilde with slash and path", input: "~/foo", expected: filepath.Join(home, "foo")},
		{name: "tilde with trailing slash only", input: "~/", expected: home},
		{name: "tilde user notation not expanded", input: "~user", expected: "~user"},
		{name: "absolute path unchanged", input: "/var/lib/pushvault", expected: "/var/lib/pushvault", unixOnly: true},
		{name: "relative path unchanged", input: "data", expected: "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.unixOnly && runtime.GOOS == "windows" {
				t.Skip("unix path")
			}
			if got := expandPath(tt.input); got != tt.expected {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDefaultHomeExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	t.Setenv(HomeEnv, "~/pv")
	if got := DefaultHome(); got != filepath.Join(home, "pv") {
		t.Errorf("DefaultHome() = %q", got)
	}
}

func TestServerAddr(t *testing.T) {
	tests := []struct {
		bind string
		want string
	}{
		{"127.0.0.1", "127.0.0.1:8484"},
		{"", "127.0.0.1:8484"},
		{"::1", "[::1]:8484"},
		{"0.0.0.0", "0.0.0.0:8484"},
	}
	for _, tt := range tests {
		cfg := NewDefaultConfig(t.TempDir())
		cfg.Server.BindAddr = tt.bind
		if got := cfg.ServerAddr(); got != tt.want {
			t.Errorf("ServerAddr() with bind %q = %q, want %q", tt.bind, got, tt.want)
		}
	}
}
