// Package config loads and hot-reloads the relay's config.yml, mirroring
// how BedrockBridgeConfig.load() bootstraps a default file on first run.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/Sgsysysgsgsg/bedrockrelay/internal/logger"
)

// defaultConfigYAML is written verbatim the first time the relay starts
// with no config.yml present, matching writeDefaultConfig's banner style.
const defaultConfigYAML = `# Bedrock relay config.yml

# The address/port the relay listens on. Bedrock clients connect here.
proxy:
  bind-address: "0.0.0.0"
  port: 19150

# The real Bedrock server to forward players to.
remote:
  address: "127.0.0.1"
  port: 19132

# LAN broadcast - makes the relay show up as a LAN world
# in the Bedrock client's Play > Worlds tab.
lan:
  enabled: true
  motd: "Bedrock Relay"
  sub-motd: "Powered by bedrockrelay"
  broadcast-interval-ms: 1500

# Max players shown in the server listing.
max-players: 20

# Enable verbose debug logging.
debug-logging: false
`

// ProxySection is the listener the relay accepts clients on.
type ProxySection struct {
	BindAddress string `yaml:"bind-address"`
	Port        int    `yaml:"port"`
}

// RemoteSection is the real Bedrock server the relay forwards to.
type RemoteSection struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LANSection controls the unconnected-ping LAN world advertisement.
type LANSection struct {
	Enabled             bool   `yaml:"enabled"`
	MOTD                string `yaml:"motd"`
	SubMOTD             string `yaml:"sub-motd"`
	BroadcastIntervalMs int    `yaml:"broadcast-interval-ms"`
}

// Config is the relay's complete config.yml schema (spec §6).
type Config struct {
	Proxy        ProxySection  `yaml:"proxy"`
	Remote       RemoteSection `yaml:"remote"`
	LAN          LANSection    `yaml:"lan"`
	MaxPlayers   int           `yaml:"max-players"`
	DebugLogging bool          `yaml:"debug-logging"`
}

// Default returns a Config with the same values writeDefaultConfig writes
// to disk.
func Default() *Config {
	return &Config{
		Proxy:  ProxySection{BindAddress: "0.0.0.0", Port: 19150},
		Remote: RemoteSection{Address: "127.0.0.1", Port: 19132},
		LAN: LANSection{
			Enabled:             true,
			MOTD:                "Bedrock Relay",
			SubMOTD:             "Powered by bedrockrelay",
			BroadcastIntervalMs: 1500,
		},
		MaxPlayers:   20,
		DebugLogging: false,
	}
}

// ProxyAddr returns the address the relay listener binds to.
func (c *Config) ProxyAddr() string {
	return net.JoinHostPort(c.Proxy.BindAddress, strconv.Itoa(c.Proxy.Port))
}

// RemoteAddr returns the address of the real Bedrock server.
func (c *Config) RemoteAddr() string {
	return net.JoinHostPort(c.Remote.Address, strconv.Itoa(c.Remote.Port))
}

// BroadcastInterval returns the LAN broadcast interval as a Duration.
func (c *Config) BroadcastInterval() time.Duration {
	return time.Duration(c.LAN.BroadcastIntervalMs) * time.Millisecond
}

// Validate checks that the loaded config is usable, per spec §6/§8
// invariant 6 (configuration validation).
func (c *Config) Validate() error {
	if c.Proxy.Port <= 0 || c.Proxy.Port > 65535 {
		return fmt.Errorf("proxy.port must be between 1 and 65535, got %d", c.Proxy.Port)
	}
	if c.Remote.Port <= 0 || c.Remote.Port > 65535 {
		return fmt.Errorf("remote.port must be between 1 and 65535, got %d", c.Remote.Port)
	}
	if c.Remote.Address == "" {
		return errors.New("remote.address is required")
	}
	if c.MaxPlayers < 0 {
		return errors.New("max-players cannot be negative")
	}
	if c.LAN.Enabled && c.LAN.BroadcastIntervalMs <= 0 {
		return errors.New("lan.broadcast-interval-ms must be positive when lan.enabled")
	}
	return nil
}

// Manager loads config.yml, serves the current Config to readers under an
// RWMutex, and hot-reloads on file change via fsnotify — the same shape as
// the teacher's ConfigManager, retargeted from a JSON server array to a
// single YAML document.
type Manager struct {
	mu         sync.RWMutex
	current    *Config
	configPath string

	watcherMu sync.Mutex
	watcher   *fsnotify.Watcher

	onChange func(*Config)
}

// NewManager creates a Manager bound to configPath. Call Load to read the
// file (bootstrapping a default one if missing) before using Current.
func NewManager(configPath string) *Manager {
	return &Manager{configPath: configPath, current: Default()}
}

// Load reads config.yml, writing a commented default file first if none
// exists — mirroring BedrockBridgeConfig.load().
func (m *Manager) Load() error {
	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		logger.Info("no config.yml found at %s, writing default", m.configPath)
		if err := m.writeDefault(); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	m.current = cfg
	m.mu.Unlock()

	logger.Info("config loaded: relay %s -> remote %s", cfg.ProxyAddr(), cfg.RemoteAddr())
	return nil
}

func (m *Manager) writeDefault() error {
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(m.configPath, []byte(defaultConfigYAML), 0644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}

// Reload re-reads config.yml from disk and invokes the onChange callback,
// if one was set, with the freshly loaded Config.
func (m *Manager) Reload() error {
	if err := m.Load(); err != nil {
		return err
	}
	if m.onChange != nil {
		m.onChange(m.Current())
	}
	return nil
}

// Current returns a copy of the currently loaded Config.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.current
	return &cfg
}

// SetOnChange sets a callback invoked with the new Config whenever Reload
// picks up a change.
func (m *Manager) SetOnChange(callback func(*Config)) {
	m.onChange = callback
}

// Watch starts watching config.yml for changes, reloading automatically —
// same fsnotify plumbing as the teacher's ConfigManager.Watch.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	m.watcherMu.Lock()
	m.watcher = watcher
	m.watcherMu.Unlock()

	if err := watcher.Add(m.configPath); err != nil {
		m.closeWatcher()
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	go func() {
		defer m.closeWatcher()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write ||
					event.Op&fsnotify.Create == fsnotify.Create {
					time.Sleep(100 * time.Millisecond)
					if err := m.Reload(); err != nil {
						logger.Error("config reload error: %v", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("config watcher error: %v", err)
			}
		}
	}()

	return nil
}

// StopWatch stops watching config.yml.
func (m *Manager) StopWatch() {
	m.closeWatcher()
}

// IsWatching reports whether the config file watcher is active.
func (m *Manager) IsWatching() bool {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()
	return m.watcher != nil
}

func (m *Manager) closeWatcher() {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()
	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
}
