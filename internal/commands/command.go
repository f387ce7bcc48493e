package commands

import (
	"strings"

	"github.com/quailyquaily/pbot/internal/messenger"
)

// Command is one slash command addressed to the bot.
type Command struct {
	// Name is lowercase, without the leading slash or an "@bot" suffix.
	Name      string
	Args      string
	ChatID    int64
	MessageID int64
	SenderID  int64
}

// Ref points at the message that carried the command.
func (c Command) Ref() messenger.MessageRef {
	return messenger.MessageRef{ChatID: c.ChatID, MessageID: c.MessageID}
}

// ParseCommand splits a message text into a command name and its arguments.
// Commands addressed to another bot ("/timer@other_bot") are rejected when
// botUsername is set.
func ParseCommand(text, botUsername string) (name string, args string, ok bool) {
	word, rest := splitCommand(text)
	name, target := normalizeSlashCommand(word)
	if name == "" {
		return "", "", false
	}
	botUsername = strings.TrimPrefix(strings.TrimSpace(botUsername), "@")
	if target != "" && botUsername != "" && !strings.EqualFold(target, botUsername) {
		return "", "", false
	}
	return name, rest, true
}

func splitCommand(text string) (cmd string, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	i := strings.IndexAny(text, " \n\t")
	if i == -1 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

// normalizeSlashCommand returns the bare lowercase command and the bot name
// from a "/cmd@BotName" variant.
func normalizeSlashCommand(cmd string) (string, string) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || !strings.HasPrefix(cmd, "/") {
		return "", ""
	}
	target := ""
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		target = cmd[at+1:]
		cmd = cmd[:at]
	}
	cmd = strings.ToLower(strings.TrimPrefix(cmd, "/"))
	return cmd, target
}
