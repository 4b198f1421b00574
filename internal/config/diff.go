package config

import (
	"sort"
	"strings"

	logx "fangate/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. The Discord token never appears in either.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Discord.QueueSize != newCfg.Discord.QueueSize ||
		(strings.TrimSpace(oldCfg.Discord.Token) != "") != (strings.TrimSpace(newCfg.Discord.Token) != "") {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.token_set", strings.TrimSpace(newCfg.Discord.Token) != ""),
			logx.Int("discord.queue_size", newCfg.Discord.EffectiveQueueSize()),
		)
	}

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Store.StatePath) != strings.TrimSpace(newCfg.Store.StatePath) ||
		strings.TrimSpace(oldCfg.Store.ReceiptsPath) != strings.TrimSpace(newCfg.Store.ReceiptsPath) ||
		strings.TrimSpace(oldCfg.Store.Driver) != strings.TrimSpace(newCfg.Store.Driver) {
		changed = append(changed, "store")
		attrs = append(attrs,
			logx.String("store.driver", strings.TrimSpace(newCfg.Store.Driver)),
			logx.Bool("store.receipts_path_set", strings.TrimSpace(newCfg.Store.ReceiptsPath) != ""),
		)
	}

	if strings.TrimSpace(oldCfg.Fanout.SendInterval) != strings.TrimSpace(newCfg.Fanout.SendInterval) {
		changed = append(changed, "fanout")
		attrs = append(attrs, logx.Duration("fanout.send_interval", newCfg.Fanout.Interval()))
	}

	if strings.TrimSpace(oldCfg.Attachments.Dir) != strings.TrimSpace(newCfg.Attachments.Dir) {
		changed = append(changed, "attachments")
		attrs = append(attrs, logx.String("attachments.dir", newCfg.Attachments.EffectiveDir()))
	}

	if oldCfg.Maintenance.Enabled != newCfg.Maintenance.Enabled ||
		strings.TrimSpace(oldCfg.Maintenance.CleanupSchedule) != strings.TrimSpace(newCfg.Maintenance.CleanupSchedule) ||
		strings.TrimSpace(oldCfg.Maintenance.Timezone) != strings.TrimSpace(newCfg.Maintenance.Timezone) {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.Bool("maintenance.enabled", newCfg.Maintenance.Enabled),
			logx.String("maintenance.cleanup_schedule", newCfg.Maintenance.EffectiveSchedule()),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
