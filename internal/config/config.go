package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AnishMulay/sandkernel/internal/file_table"
	"gopkg.in/yaml.v3"
)

const ListenAddrEnv = "SANDKERNEL_LISTEN_ADDR"

const (
	StorageMemory  = "memory"
	StorageHostFS  = "hostfs"
	StorageChunked = "chunked"

	ChunkStoreLocalDisc = "localdisc"
	ChunkStoreMinIO     = "minio"

	LogBackendZap       = "zap"
	LogBackendLocalDisc = "localdisc"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	NodeID     string `yaml:"node_id"`
	ListenAddr string `yaml:"listen_addr"`

	Log struct {
		Backend string `yaml:"backend"`
		Dir     string `yaml:"dir"`
		Level   string `yaml:"level"`
		JSON    bool   `yaml:"json"`
	} `yaml:"log"`

	Table struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"table"`

	Storage struct {
		Type       string `yaml:"type"`
		Dir        string `yaml:"dir"`
		ChunkSize  int64  `yaml:"chunk_size"`
		ChunkStore string `yaml:"chunk_store"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"storage"`

	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		Prefix    string `yaml:"prefix"`
		Secure    bool   `yaml:"secure"`
	} `yaml:"minio"`

	Server struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"server"`
}

func Default() *Config {
	cfg := &Config{
		NodeID:     "kernel1",
		ListenAddr: "localhost:8080",
	}
	cfg.Log.Backend = LogBackendZap
	cfg.Log.Dir = "./logs"
	cfg.Log.Level = "info"
	cfg.Table.Capacity = file_table.DefaultCapacity
	cfg.Storage.Type = StorageMemory
	cfg.Storage.Dir = "./data"
	cfg.Storage.ChunkSize = 64 * 1024
	cfg.Storage.ChunkStore = ChunkStoreLocalDisc
	cfg.MinIO.Endpoint = "localhost:9000"
	cfg.MinIO.Bucket = "sandkernel"
	cfg.MinIO.Prefix = "chunks"
	cfg.Server.RequestsPerSecond = 1000
	cfg.Server.Burst = 100
	return cfg
}

// LoadConfig reads path, writing the defaults there first if it does not
// exist.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal default config: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}

		cfg.applyEnv()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// unset fields keep their defaults
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if addr := os.Getenv(ListenAddrEnv); addr != "" {
		c.ListenAddr = addr
	}
}

func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("%w: node_id is required", ErrInvalidConfig)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr is required", ErrInvalidConfig)
	}
	if c.Table.Capacity <= file_table.FirstDynamicFD {
		return fmt.Errorf("%w: table capacity %d leaves no room past the console", ErrInvalidConfig, c.Table.Capacity)
	}

	switch c.Log.Backend {
	case LogBackendZap, LogBackendLocalDisc:
	default:
		return fmt.Errorf("%w: unknown log backend %q", ErrInvalidConfig, c.Log.Backend)
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageHostFS:
		if c.Storage.Dir == "" {
			return fmt.Errorf("%w: hostfs storage needs a dir", ErrInvalidConfig)
		}
	case StorageChunked:
		if c.Storage.ChunkSize <= 0 {
			return fmt.Errorf("%w: chunk_size must be positive", ErrInvalidConfig)
		}
		switch c.Storage.ChunkStore {
		case ChunkStoreLocalDisc:
			if c.Storage.Dir == "" {
				return fmt.Errorf("%w: localdisc chunk store needs a dir", ErrInvalidConfig)
			}
		case ChunkStoreMinIO:
			if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
				return fmt.Errorf("%w: minio chunk store needs an endpoint and bucket", ErrInvalidConfig)
			}
		default:
			return fmt.Errorf("%w: unknown chunk store %q", ErrInvalidConfig, c.Storage.ChunkStore)
		}
	default:
		return fmt.Errorf("%w: unknown storage type %q", ErrInvalidConfig, c.Storage.Type)
	}

	if c.Server.RequestsPerSecond <= 0 || c.Server.Burst <= 0 {
		return fmt.Errorf("%w: server rate limit must be positive", ErrInvalidConfig)
	}
	return nil
}
