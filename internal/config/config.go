// Package config loads the server's JSON configuration, mirroring the
// teacher pack's moto/config/setting.go: encoding/json plus an
// environment-variable override for the config path, with Default for the
// built-in values and Load for reading a file. There is no package-level
// config value and no Reload; edits take effect only on the next Load.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// EnvConfigPath is the environment variable moto's setting.go checks
// before falling back to the default path.
const EnvConfigPath = "POLICETHIEF_CONFIG"

const defaultConfigPath = "config/server.json"

// Log mirrors moto's log sub-object: which zap level to enable and where
// lumberjack should rotate files.
type Log struct {
	Level string `json:"level"`
	Path  string `json:"path"`
}

// Config is every tunable named in spec.md §6, plus the ambient logging
// section.
type Config struct {
	Log Log `json:"log"`

	BindAddr string `json:"bind_addr"`
	MTU      int    `json:"mtu"`

	HeartbeatIntervalMillis int `json:"heartbeat_interval_millis"`
	ConnectionTimeoutMillis int `json:"connection_timeout_millis"`
	IdleTimeoutMillis       int `json:"idle_timeout_millis"`

	MaxConnections   int `json:"max_connections"`
	MaxUsersPerRoom  int `json:"max_users_per_room"`
	MaxRooms         int `json:"max_rooms"`

	MaxRetries          int `json:"max_retries"`
	MaxHandshakeRetries int `json:"max_handshake_retries"`

	CwndInit     uint32 `json:"cwnd_init"`
	SsthreshInit uint32 `json:"ssthresh_init"`
	CwndMax      uint32 `json:"cwnd_max"`
	RTOMinMillis int    `json:"rto_min_millis"`
	RTOMaxMillis int    `json:"rto_max_millis"`

	// TCPListenAddr, QUICListenAddr and GRPCListenAddr are zero-valued
	// (disabled) unless set; each companion adapter only starts when its
	// address is non-empty.
	TCPListenAddr  string `json:"tcp_listen_addr"`
	QUICListenAddr string `json:"quic_listen_addr"`
	GRPCListenAddr string `json:"grpc_listen_addr"`
	AdminHTTPAddr  string `json:"admin_http_addr"`

	RedisAddr string `json:"redis_addr"`
}

// HeartbeatInterval, ConnectionTimeout, IdleTimeout, RTOMin and RTOMax
// convert the JSON-friendly millisecond fields into time.Duration for
// consumption by the rest of the server.
func (c Config) HeartbeatInterval() time.Duration { return time.Duration(c.HeartbeatIntervalMillis) * time.Millisecond }
func (c Config) ConnectionTimeout() time.Duration { return time.Duration(c.ConnectionTimeoutMillis) * time.Millisecond }
func (c Config) IdleTimeout() time.Duration       { return time.Duration(c.IdleTimeoutMillis) * time.Millisecond }
func (c Config) RTOMin() time.Duration            { return time.Duration(c.RTOMinMillis) * time.Millisecond }
func (c Config) RTOMax() time.Duration            { return time.Duration(c.RTOMaxMillis) * time.Millisecond }

// Default returns a Config with every spec.md §6 default filled in.
func Default() Config {
	return Config{
		Log:                     Log{Level: "info", Path: "log/server.log"},
		BindAddr:                "0.0.0.0:9000",
		MTU:                     1400,
		HeartbeatIntervalMillis: 5000,
		ConnectionTimeoutMillis: 15000,
		IdleTimeoutMillis:       30000,
		MaxConnections:          10000,
		MaxUsersPerRoom:         50,
		MaxRooms:                100,
		MaxRetries:              8,
		MaxHandshakeRetries:     5,
		CwndInit:                2,
		SsthreshInit:            64,
		CwndMax:                 1024,
		RTOMinMillis:            200,
		RTOMaxMillis:            60000,
	}
}

// Load reads and parses the config file at path, falling back to
// Default() for any zero-valued field the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ResolvePath returns the config path to use: the EnvConfigPath
// environment variable if set, otherwise defaultConfigPath.
func ResolvePath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return defaultConfigPath
}
