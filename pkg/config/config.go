// Package config loads the substrate's runtime configuration: server
// mode, transport addresses, database and model-cache paths, and log
// level. Configuration is read from a JSON or YAML file, overridden
// by environment variables, overridden in turn by CLI flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/tabagent/nornicsubstrate/pkg/dberr"
)

// ServerMode selects which transports Serve starts.
type ServerMode string

const (
	ModeNative ServerMode = "native"
	ModeHTTP   ServerMode = "http"
	ModeBoth   ServerMode = "both"
)

// WebRTCConfig groups the optional WebRTC signaling transport's
// settings. The substrate never interprets ICEServers beyond passing
// them through to whatever WebRTC collaborator is wired in; this
// core has no WebRTC implementation of its own.
type WebRTCConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	SignalingPort  int      `json:"signaling_port" yaml:"signaling_port"`
	ICEServers     []string `json:"ice_servers" yaml:"ice_servers"`
}

// Config is the substrate's full runtime configuration, loaded in the
// order file, then environment, then CLI flags, each later source
// overriding the former.
type Config struct {
	Mode           ServerMode   `json:"mode" yaml:"mode"`
	Host           string       `json:"host" yaml:"host"`
	Port           int          `json:"port" yaml:"port"`
	CORSOrigins    []string     `json:"cors_origins" yaml:"cors_origins"`
	MaxBodyBytes   int64        `json:"max_body_bytes" yaml:"max_body_bytes"`
	WebRTC         WebRTCConfig `json:"webrtc" yaml:"webrtc"`
	DatabasePath   string       `json:"database_path" yaml:"database_path"`
	ModelCachePath string       `json:"model_cache_path" yaml:"model_cache_path"`
	LogLevel       string       `json:"log_level" yaml:"log_level"`

	// EncryptionPassphrase enables at-rest encryption of the database
	// when non-empty. The derived key's salt is persisted next to the
	// data; losing the passphrase makes the store unreadable.
	EncryptionPassphrase string `json:"encryption_passphrase" yaml:"encryption_passphrase"`
}

// Default returns the baseline configuration before any file/env/flag
// overrides are applied.
func Default() Config {
	return Config{
		Mode:         ModeHTTP,
		Host:         "127.0.0.1",
		Port:         7420,
		MaxBodyBytes: 10 << 20,
		DatabasePath: DefaultDataDir(),
		LogLevel:     "info",
	}
}

// DefaultDataDir picks the data directory: TABAGENT_TEST_DIR wins
// outright; otherwise the platform's conventional application-data
// directory.
func DefaultDataDir() string {
	if dir := os.Getenv("TABAGENT_TEST_DIR"); dir != "" {
		return dir
	}
	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base, _ = os.UserHomeDir()
		}
		return filepath.Join(base, "TabAgent", "db")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "TabAgent", "db")
	default:
		if base := os.Getenv("XDG_DATA_HOME"); base != "" {
			return filepath.Join(base, "TabAgent", "db")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "TabAgent", "db")
	}
}

// LoadFile reads path as JSON or YAML (by extension: .json vs
// .yaml/.yml) into cfg, overriding only the fields the file sets. A
// missing file is not an error — an absent config file means "use
// defaults plus environment/flags".
func LoadFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: parse yaml %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: parse json %s: %w", path, err)
		}
	}
	return nil
}

// applyEnv overrides cfg with NORNICSUBSTRATE_-prefixed environment
// variables, one env var per field.
func applyEnv(cfg *Config) {
	if v := os.Getenv("NORNICSUBSTRATE_MODE"); v != "" {
		cfg.Mode = ServerMode(v)
	}
	if v := os.Getenv("NORNICSUBSTRATE_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("NORNICSUBSTRATE_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Port)
	}
	if v := os.Getenv("NORNICSUBSTRATE_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("NORNICSUBSTRATE_MODEL_CACHE_PATH"); v != "" {
		cfg.ModelCachePath = v
	}
	if v := os.Getenv("NORNICSUBSTRATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NORNICSUBSTRATE_ENCRYPTION_PASSPHRASE"); v != "" {
		cfg.EncryptionPassphrase = v
	}
}

// Load builds a Config from defaults, then filePath (if non-empty),
// then environment variables. Flags, applied by the CLI layer after
// Load returns, win over everything here.
func Load(filePath string) (Config, error) {
	cfg := Default()
	if err := LoadFile(&cfg, filePath); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// Validate rejects configurations that would fail at startup anyway;
// the CLI exits non-zero on a Validate error before touching the
// database.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeNative, ModeHTTP, ModeBoth:
	default:
		return dberr.NewValidation("mode", "must be native, http, or both")
	}
	if c.Mode != ModeNative && (c.Port <= 0 || c.Port > 65535) {
		return dberr.NewValidation("port", "must be in 1..65535")
	}
	if c.DatabasePath == "" {
		return dberr.NewValidation("database_path", "must not be empty")
	}
	return nil
}
