// Package config loads and hot-reloads the bot settings file. JSON is the
// native format; YAML configs are coerced to JSON first so both formats go
// through the same strict decoder. Admin-owned runtime state (prefix, owner,
// blacklist, channel configs) lives in internal/store, not here.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	Discord     DiscordConfig     `json:"discord"`
	Logging     LoggingConfig     `json:"logging"`
	Store       StoreConfig       `json:"store"`
	Fanout      FanoutConfig      `json:"fanout"`
	Attachments AttachmentsConfig `json:"attachments"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token"`
	// QueueSize bounds the inbound update channel. Events beyond it are
	// dropped with a warning. Default: 256.
	QueueSize int `json:"queue_size,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig selects the persistence backend for gift receipts. The state
// document is always a JSON file.
//
// Example:
//
//	"store": { "state_path": "./config.json", "receipts_path": "./dm_sent.json", "driver": "file" }
type StoreConfig struct {
	StatePath    string `json:"state_path"`
	ReceiptsPath string `json:"receipts_path"`
	Driver       string `json:"driver,omitempty"` // "file" (default) or "sqlite"
}

// FanoutConfig controls mass-DM pacing.
//
// SendInterval is a Go duration string (e.g. "1s", "500ms"). The default of
// one second keeps a large fan-out under the platform rate limits.
type FanoutConfig struct {
	SendInterval string `json:"send_interval,omitempty"`
}

type AttachmentsConfig struct {
	// Dir is where admin-uploaded gift images are cached. Default: "./data".
	Dir string `json:"dir,omitempty"`
}

// MaintenanceConfig controls the background cleanup job that removes cached
// attachments no channel config references anymore.
type MaintenanceConfig struct {
	Enabled bool `json:"enabled"`
	// CleanupSchedule is a cron spec. Default: "0 4 * * *" (daily, 04:00).
	CleanupSchedule string `json:"cleanup_schedule,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
}

const (
	DefaultQueueSize       = 256
	DefaultSendInterval    = time.Second
	DefaultAttachmentsDir  = "./data"
	DefaultCleanupSchedule = "0 4 * * *"
)

// Validate checks the config for structural problems. Used both at startup
// and as the hot-reload gate, so a broken edit never reaches the running bot.
func Validate(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Discord.Token) == "" {
		return fmt.Errorf("discord.token is required")
	}
	if cfg.Discord.QueueSize < 0 {
		return fmt.Errorf("discord.queue_size must be >= 0")
	}
	if strings.TrimSpace(cfg.Store.StatePath) == "" {
		return fmt.Errorf("store.state_path is required")
	}
	if _, err := ParseDurationField("fanout.send_interval", cfg.Fanout.SendInterval); err != nil {
		return err
	}
	if spec := strings.TrimSpace(cfg.Maintenance.CleanupSchedule); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("maintenance.cleanup_schedule: %w", err)
		}
	}
	if tz := strings.TrimSpace(cfg.Maintenance.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("maintenance.timezone: %w", err)
		}
	}
	return nil
}

// Interval returns the effective fan-out pacing interval.
func (c FanoutConfig) Interval() time.Duration {
	d, err := ParseDurationOrDefault("fanout.send_interval", c.SendInterval, DefaultSendInterval)
	if err != nil {
		return DefaultSendInterval
	}
	return d
}

func (c DiscordConfig) EffectiveQueueSize() int {
	if c.QueueSize <= 0 {
		return DefaultQueueSize
	}
	return c.QueueSize
}

func (c AttachmentsConfig) EffectiveDir() string {
	if strings.TrimSpace(c.Dir) == "" {
		return DefaultAttachmentsDir
	}
	return c.Dir
}

func (c MaintenanceConfig) EffectiveSchedule() string {
	if strings.TrimSpace(c.CleanupSchedule) == "" {
		return DefaultCleanupSchedule
	}
	return c.CleanupSchedule
}
