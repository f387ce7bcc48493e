// Package telegram long-polls the Bot API and feeds slash commands to a
// command handler, one sequential queue per chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	runtimeworker "github.com/quailyquaily/pbot/internal/channelruntime/worker"
	"github.com/quailyquaily/pbot/internal/commands"
	"github.com/quailyquaily/pbot/internal/outputfmt"
	"github.com/quailyquaily/pbot/internal/telegramapi"
)

// UpdateSource is the part of the Bot API the loop reads from.
type UpdateSource interface {
	GetMe(ctx context.Context) (*telegramapi.User, error)
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegramapi.Update, int64, error)
}

type CommandHandler interface {
	Handle(ctx context.Context, cmd commands.Command) error
}

type Dependencies struct {
	API     UpdateSource
	Handler CommandHandler
	Logger  *slog.Logger
}

type chatWorker struct {
	Jobs chan commands.Command
}

// Run polls until ctx is cancelled, then waits for in-flight commands to
// return.
func Run(ctx context.Context, d Dependencies, opts RunOptions) error {
	if d.API == nil {
		return fmt.Errorf("telegram: update source is required")
	}
	if d.Handler == nil {
		return fmt.Errorf("telegram: command handler is required")
	}
	return runTelegramLoop(ctx, d, resolveRuntimeLoopOptionsFromRunOptions(opts))
}

func runTelegramLoop(ctx context.Context, d Dependencies, opts runtimeLoopOptions) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pollCtx := ctx
	if pollCtx == nil {
		pollCtx = context.Background()
	}

	botUser := opts.BotUsername
	var botID int64
	for {
		me, err := d.API.GetMe(pollCtx)
		if err == nil {
			botID = me.ID
			if botUser == "" {
				botUser = strings.TrimSpace(me.Username)
			}
			break
		}
		if errors.Is(err, context.Canceled) || pollCtx.Err() != nil {
			logger.Info("telegram_stop", "reason", "context_canceled")
			return nil
		}
		var reqErr *telegramapi.RequestError
		if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("telegram getMe: %w", err)
		}
		logger.Warn("telegram_get_me_error", "error", outputfmt.RedactErrorForLog(err))
		if !sleepCtx(pollCtx, 2*opts.ErrorBackoff) {
			logger.Info("telegram_stop", "reason", "context_canceled")
			return nil
		}
	}

	sem := make(chan struct{}, opts.MaxConcurrency)
	workersCtx, stopWorkers := context.WithCancel(pollCtx)
	var workersWG sync.WaitGroup
	defer func() {
		stopWorkers()
		workersWG.Wait()
	}()

	workers := make(map[int64]*chatWorker)
	getOrStartWorker := func(chatID int64) *chatWorker {
		if w, ok := workers[chatID]; ok && w != nil {
			return w
		}
		w := &chatWorker{Jobs: make(chan commands.Command, opts.QueueSize)}
		workers[chatID] = w
		runtimeworker.Start(runtimeworker.StartOptions[commands.Command]{
			Ctx:    workersCtx,
			Sem:    sem,
			Jobs:   w.Jobs,
			Logger: logger,
			WG:     &workersWG,
			Handle: func(workerCtx context.Context, cmd commands.Command) {
				if err := d.Handler.Handle(workerCtx, cmd); err != nil {
					if workerCtx.Err() != nil {
						return
					}
					logger.Warn("telegram_command_reply_error",
						"chat_id", cmd.ChatID,
						"command", cmd.Name,
						"error", outputfmt.RedactErrorForLog(err),
					)
				}
			},
		})
		return w
	}

	logger.Info("telegram_start",
		"bot_username", botUser,
		"bot_id", botID,
		"poll_timeout", opts.PollTimeout.String(),
		"max_concurrency", opts.MaxConcurrency,
	)

	var offset int64
	for {
		updates, nextOffset, err := d.API.GetUpdates(pollCtx, offset, opts.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || pollCtx.Err() != nil {
				logger.Info("telegram_stop", "reason", "context_canceled")
				return nil
			}
			if telegramapi.IsPollTimeoutError(err) {
				logger.Debug("telegram_get_updates_timeout", "error", err.Error())
			} else {
				logger.Warn("telegram_get_updates_error", "error", outputfmt.RedactErrorForLog(err))
			}
			if !sleepCtx(pollCtx, opts.ErrorBackoff) {
				logger.Info("telegram_stop", "reason", "context_canceled")
				return nil
			}
			continue
		}
		offset = nextOffset

		for _, u := range updates {
			cmd, ok := commandFromUpdate(u, botUser)
			if !ok {
				continue
			}
			w := getOrStartWorker(cmd.ChatID)
			if err := runtimeworker.Enqueue(pollCtx, workersCtx, w.Jobs, cmd); err != nil {
				if pollCtx.Err() != nil {
					logger.Info("telegram_stop", "reason", "context_canceled")
					return nil
				}
				logger.Warn("telegram_enqueue_error", "chat_id", cmd.ChatID, "command", cmd.Name, "error", err.Error())
			}
		}
	}
}

// commandFromUpdate extracts a slash command sent by a human. Edits are
// ignored so that correcting a message does not start a second task.
func commandFromUpdate(u telegramapi.Update, botUser string) (commands.Command, bool) {
	msg := u.Message
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return commands.Command{}, false
	}
	name, args, ok := commands.ParseCommand(msg.Text, botUser)
	if !ok {
		return commands.Command{}, false
	}
	return commands.Command{
		Name:      name,
		Args:      args,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		SenderID:  msg.From.ID,
	}, true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
