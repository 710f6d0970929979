package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is built once at process start and passed by pointer; nothing in the
// service reads process environment after Load returns.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Workspace   WorkspaceConfig   `koanf:"workspace"`
	Engine      EngineConfig      `koanf:"engine"`
	Transcoder  TranscoderConfig  `koanf:"transcoder"`
	Credentials CredentialsConfig `koanf:"credentials"`
	Pacing      PacingConfig      `koanf:"pacing"`
	TLS         TLSConfig         `koanf:"tls"`
	Logging     LoggingConfig     `koanf:"logging"`
	Frontend    FrontendConfig    `koanf:"frontend"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	RateLimit       float64       `koanf:"rate_limit"` // requests/sec per client on job routes; 0 disables
	RateBurst       int           `koanf:"rate_burst"`
	UploadMaxBytes  int64         `koanf:"upload_max_bytes"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type WorkspaceConfig struct {
	Dir              string        `koanf:"dir"`
	MinArtifactBytes int64         `koanf:"min_artifact_bytes"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
	OrphanTTL        time.Duration `koanf:"orphan_ttl"`
}

type EngineConfig struct {
	Binary        string        `koanf:"binary"`
	Timeout       time.Duration `koanf:"timeout"`
	ProbeTimeout  time.Duration `koanf:"probe_timeout"`
	Retries       int           `koanf:"retries"`
	ProbeRetries  int           `koanf:"probe_retries"`
	SocketTimeout int           `koanf:"socket_timeout"`
	SleepInterval int           `koanf:"sleep_interval"`
}

type TranscoderConfig struct {
	Binary         string        `koanf:"binary"`
	Timeout        time.Duration `koanf:"timeout"`
	AudioBitrate   string        `koanf:"audio_bitrate"`
	VideoContainer string        `koanf:"video_container"`
}

type CredentialsConfig struct {
	UploadPath   string `koanf:"upload_path"`
	OperatorPath string `koanf:"operator_path"`
}

type PacingConfig struct {
	Enabled bool `koanf:"enabled"`
}

type TLSConfig struct {
	CABundle string `koanf:"ca_bundle"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

type FrontendConfig struct {
	Dir string `koanf:"dir"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads config from TOML file (if provided) then overlays env vars.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	// 2. Load TOML config file if provided
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("read %s: %w", configPath, err)
		}
	}

	// 3. Load env vars: MF_SERVER_PORT -> server.port.
	// Keys are section.field, so only the first underscore separates.
	if err := k.Load(env.ProviderWithValue("MF_", ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		mapped := strings.ToLower(strings.TrimPrefix(key, "MF_"))
		mapped = strings.Replace(mapped, "_", ".", 1)
		return mapped, value
	}), nil); err != nil {
		return nil, err
	}

	// 4. Handle top-level convenience env vars
	if v := os.Getenv("PORT"); v != "" {
		k.Set("server.port", v)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Workspace.Dir == "" {
		return fmt.Errorf("workspace.dir is required")
	}
	if c.Workspace.MinArtifactBytes < 1 {
		return fmt.Errorf("workspace.min_artifact_bytes must be positive")
	}
	switch c.Transcoder.VideoContainer {
	case "webm", "mp4", "mkv":
	default:
		return fmt.Errorf("transcoder.video_container %q not supported (webm, mp4, mkv)", c.Transcoder.VideoContainer)
	}
	if c.Engine.Binary == "" || c.Transcoder.Binary == "" {
		return fmt.Errorf("engine.binary and transcoder.binary are required")
	}
	if c.TLS.CABundle != "" {
		if _, err := os.Stat(c.TLS.CABundle); err != nil {
			return fmt.Errorf("tls.ca_bundle: %w", err)
		}
	}
	return nil
}
