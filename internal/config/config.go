package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultMaxFileSizeBytes = 100 * 1024 * 1024
	DefaultMemoryReserve    = 0.2
	DefaultWorkers          = 4
	DefaultQueueDepth       = 256
	DefaultMaxAttempts      = 3
	DefaultBackoffMult      = 2.0
	DefaultBaseDelay        = time.Second
	DefaultStorageRegion    = "us-east-1"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Discord  DiscordConfig  `toml:"discord"`
	Storage  StorageConfig  `toml:"storage"`
	Pipeline PipelineConfig `toml:"pipeline"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DiscordConfig struct {
	BotToken string `toml:"bot_token" validate:"required"`
	GuildID  string `toml:"guild_id" validate:"required"`
	// ChannelName is the parent channel whose threads are watched.
	ChannelName   string `toml:"channel_name" validate:"required"`
	ReactionEmoji string `toml:"reaction_emoji"`
}

type StorageConfig struct {
	Bucket string `toml:"bucket" validate:"required"`
	// RootPrefix is the key prefix under which per-thread folders live.
	RootPrefix string `toml:"root_prefix"`
	Region     string `toml:"region"`
	// Endpoint overrides the S3 endpoint, e.g. for MinIO.
	Endpoint string `toml:"endpoint"`
}

type PipelineConfig struct {
	// MaxFileSizeBytes is the admission ceiling; 0 disables the check.
	MaxFileSizeBytes int64 `toml:"max_file_size_bytes" validate:"min=0"`
	// MemoryReserve is the fraction of total memory kept free before
	// a task may be admitted.
	MemoryReserve float64 `toml:"memory_reserve" validate:"gte=0,lt=1"`
	Workers       int      `toml:"workers" validate:"min=1"`
	QueueDepth    int      `toml:"queue_depth" validate:"min=1"`
	MaxAttempts   int      `toml:"max_attempts" validate:"min=1"`
	BackoffMult   float64  `toml:"backoff_multiplier" validate:"gte=1"`
	BaseDelay     duration `toml:"base_delay"`
	VideoInMemory bool     `toml:"video_in_memory"`
}

// BaseDelayDuration returns the configured base retry delay.
func (p PipelineConfig) BaseDelayDuration() time.Duration {
	return time.Duration(p.BaseDelay)
}

// duration lets TOML parse delays like "500ms" or "3s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Discord: DiscordConfig{
			ReactionEmoji: "camera_with_flash",
		},
		Storage: StorageConfig{
			Region: DefaultStorageRegion,
		},
		Pipeline: PipelineConfig{
			MaxFileSizeBytes: DefaultMaxFileSizeBytes,
			MemoryReserve:    DefaultMemoryReserve,
			Workers:          DefaultWorkers,
			QueueDepth:       DefaultQueueDepth,
			MaxAttempts:      DefaultMaxAttempts,
			BackoffMult:      DefaultBackoffMult,
			BaseDelay:        duration(DefaultBaseDelay),
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks that required fields are present and numeric bounds hold.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
