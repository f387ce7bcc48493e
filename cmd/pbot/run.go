package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quailyquaily/pbot/internal/channelruntime/telegram"
	"github.com/quailyquaily/pbot/internal/commands"
	"github.com/quailyquaily/pbot/internal/fsstore"
	"github.com/quailyquaily/pbot/internal/logutil"
	"github.com/quailyquaily/pbot/internal/outputfmt"
	"github.com/quailyquaily/pbot/internal/statepaths"
	"github.com/quailyquaily/pbot/internal/taskstore"
	"github.com/quailyquaily/pbot/internal/tasks"
	"github.com/quailyquaily/pbot/internal/telegramapi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	runLockWait        = 2 * time.Second
	pollRequestHeadway = 10 * time.Second
)

type botConfig struct {
	Token          string
	OwnerID        int64
	BaseURL        string
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	MaxConcurrency int
	RateLimit      float64
	RateBurst      int

	JournalEnabled  bool
	JournalMaxBytes int64

	Limits   commands.Limits
	Defaults commands.Defaults
	Pacing   tasks.Pacing
	ListCaps map[tasks.Group]int
}

func botConfigFromViper() (botConfig, error) {
	cfg := botConfig{
		Token:          strings.TrimSpace(viper.GetString("telegram.bot_token")),
		OwnerID:        viper.GetInt64("telegram.owner_id"),
		BaseURL:        strings.TrimSpace(viper.GetString("telegram.base_url")),
		PollTimeout:    viper.GetDuration("telegram.poll_timeout"),
		RequestTimeout: viper.GetDuration("telegram.request_timeout"),
		MaxConcurrency: viper.GetInt("telegram.max_concurrency"),
		RateLimit:      viper.GetFloat64("telegram.rate_limit"),
		RateBurst:      viper.GetInt("telegram.rate_burst"),

		JournalEnabled:  viper.GetBool("journal.enabled"),
		JournalMaxBytes: viper.GetInt64("journal.rotate_max_bytes"),

		Limits: commands.Limits{
			MaxDuration: viper.GetDuration("limits.max_duration"),
			MaxSpam:     viper.GetInt("limits.max_spam"),
			MaxMention:  viper.GetInt("limits.max_mention"),
			MinInterval: viper.GetDuration("limits.min_interval"),
		},
		Defaults: commands.Defaults{
			WakeMessages:    viper.GetInt("defaults.wake_messages"),
			TimerSpam:       viper.GetInt("defaults.timer_spam"),
			MentionInterval: viper.GetDuration("defaults.mention_interval"),
		},
		Pacing: tasks.Pacing{
			EndMessage: viper.GetDuration("pacing.end_message"),
			Spam:       viper.GetDuration("pacing.spam"),
		},
		ListCaps: map[tasks.Group]int{
			tasks.GroupTimers:   viper.GetInt("list.cap.timers"),
			tasks.GroupWake:     viper.GetInt("list.cap.wake"),
			tasks.GroupMentions: viper.GetInt("list.cap.mentions"),
		},
	}
	if cfg.Token == "" {
		return botConfig{}, fmt.Errorf("missing telegram.bot_token (set via PBOT_TELEGRAM_BOT_TOKEN or the config file)")
	}
	if cfg.OwnerID == 0 {
		return botConfig{}, fmt.Errorf("missing telegram.owner_id (set via PBOT_TELEGRAM_OWNER_ID or the config file)")
	}
	// Long polls hold the connection open for PollTimeout.
	if floor := cfg.PollTimeout + pollRequestHeadway; cfg.RequestTimeout < floor {
		cfg.RequestTimeout = floor
	}
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := botConfigFromViper()
			if err != nil {
				return err
			}
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lockPath, err := fsstore.LockPathFor(statepaths.FileStateDir(), statepaths.RunLockKey())
			if err != nil {
				return err
			}
			lockCtx, cancelLock := context.WithTimeout(ctx, runLockWait)
			defer cancelLock()
			err = fsstore.WithLock(lockCtx, lockPath, func() error {
				cancelLock()
				return runBot(ctx, cfg, logger)
			})
			if errors.Is(err, fsstore.ErrLockTimeout) {
				return fmt.Errorf("another pbot instance is running: %w", err)
			}
			return err
		},
	}
}

func runBot(ctx context.Context, cfg botConfig, logger *slog.Logger) error {
	startedAt := time.Now()

	store := taskstore.New(statepaths.DataDir(), taskstore.Options{Logger: logger})

	var journal *taskstore.Journal
	if cfg.JournalEnabled {
		j, err := taskstore.OpenJournal(statepaths.JournalPath(), cfg.JournalMaxBytes)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		journal = j
	}

	client := telegramapi.New(telegramapi.Options{
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
		BaseURL:    cfg.BaseURL,
		Token:      cfg.Token,
		Logger:     logger,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
	})

	// botCtx ends on a signal or /stop. Runners see it as suspension and
	// keep their records for the next start.
	botCtx, cancelBot := context.WithCancel(ctx)
	defer cancelBot()

	manager, err := tasks.NewManager(tasks.Options{
		Store:       store,
		Messenger:   client,
		Logger:      logger,
		Journal:     journal,
		BaseContext: botCtx,
		Pacing:      cfg.Pacing,
	})
	if err != nil {
		return err
	}
	defer func() {
		cancelBot()
		manager.Wait()
	}()

	report, err := manager.Restore(botCtx)
	total := report.Total()
	if err != nil {
		logger.Warn("tasks_restore_error", "error", outputfmt.RedactErrorForLog(err))
	}
	logger.Info("tasks_restored",
		"resumed", total.Resumed,
		"expired", total.Expired,
		"orphaned", total.Orphaned,
		"dropped", total.Dropped,
	)

	router, err := commands.New(commands.Options{
		Manager:    manager,
		Store:      store,
		Messenger:  client,
		Logger:     logger,
		OwnerID:    cfg.OwnerID,
		Limits:     cfg.Limits,
		Defaults:   cfg.Defaults,
		ListCaps:   cfg.ListCaps,
		BackupsDir: statepaths.BackupsDir(),
		StartedAt:  startedAt,
		Stop:       cancelBot,
	})
	if err != nil {
		return err
	}

	logger.Info("pbot_start",
		"state_dir", statepaths.FileStateDir(),
		"data_dir", store.Dir(),
		"owner_id", cfg.OwnerID,
		"journal", cfg.JournalEnabled,
	)
	err = telegram.Run(botCtx, telegram.Dependencies{
		API:     client,
		Handler: router,
		Logger:  logger,
	}, telegram.RunOptions{
		PollTimeout:    cfg.PollTimeout,
		MaxConcurrency: cfg.MaxConcurrency,
	})
	cancelBot()
	manager.Wait()
	logger.Info("pbot_stop", "uptime", time.Since(startedAt).Round(time.Second).String())
	return err
}
