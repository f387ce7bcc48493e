package telegram

import (
	"strings"
	"time"
)

type RunOptions struct {
	// BotUsername filters "/cmd@bot" commands aimed at other bots. When
	// empty it is taken from getMe.
	BotUsername    string
	PollTimeout    time.Duration
	MaxConcurrency int
	QueueSize      int
	ErrorBackoff   time.Duration
}

type runtimeLoopOptions struct {
	BotUsername    string
	PollTimeout    time.Duration
	MaxConcurrency int
	QueueSize      int
	ErrorBackoff   time.Duration
}

func resolveRuntimeLoopOptionsFromRunOptions(opts RunOptions) runtimeLoopOptions {
	out := runtimeLoopOptions{
		BotUsername:    opts.BotUsername,
		PollTimeout:    opts.PollTimeout,
		MaxConcurrency: opts.MaxConcurrency,
		QueueSize:      opts.QueueSize,
		ErrorBackoff:   opts.ErrorBackoff,
	}
	return normalizeRuntimeLoopOptions(out)
}

func normalizeRuntimeLoopOptions(opts runtimeLoopOptions) runtimeLoopOptions {
	opts.BotUsername = strings.TrimPrefix(strings.TrimSpace(opts.BotUsername), "@")

	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Second
	}
	return opts
}
