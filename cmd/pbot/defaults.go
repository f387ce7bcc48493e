package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.owner_id", 0)
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.max_concurrency", 4)
	viper.SetDefault("telegram.rate_limit", 25.0)
	viper.SetDefault("telegram.rate_burst", 5)
	viper.SetDefault("telegram.request_timeout", 60*time.Second)

	// State
	viper.SetDefault("file_state_dir", "~/.pbot")
	viper.SetDefault("store.dir_name", "data")
	viper.SetDefault("journal.enabled", true)
	viper.SetDefault("journal.rotate_max_bytes", int64(10*1024*1024))

	// Limits
	viper.SetDefault("limits.max_duration", 24*time.Hour)
	viper.SetDefault("limits.max_spam", 1000)
	viper.SetDefault("limits.max_mention", 100)
	viper.SetDefault("limits.min_interval", 100*time.Millisecond)

	// Command defaults
	viper.SetDefault("defaults.wake_messages", 10)
	viper.SetDefault("defaults.timer_spam", 1)
	viper.SetDefault("defaults.mention_interval", 500*time.Millisecond)

	viper.SetDefault("pacing.end_message", 100*time.Millisecond)
	viper.SetDefault("pacing.spam", 200*time.Millisecond)

	viper.SetDefault("list.cap.timers", 5)
	viper.SetDefault("list.cap.wake", 6)
	viper.SetDefault("list.cap.mentions", 3)

	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("trace", false)
}
