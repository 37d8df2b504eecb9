package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/bnema/spin-accounts-cli/internal/ports"
)

// maxMessageRunes is the Bot API limit for one text message.
const maxMessageRunes = 4096

type Config struct {
	Token  string
	ChatID int64
	// APIServer and HTTPClient override the Bot API endpoint, mainly for tests.
	APIServer  string
	HTTPClient *http.Client
}

// Notifier posts operator messages to a single chat.
type Notifier struct {
	bot    *telego.Bot
	chatID int64
}

var _ ports.Notifier = (*Notifier)(nil)

func New(cfg Config) (*Notifier, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}

	options := []telego.BotOption{telego.WithDiscardLogger()}
	if cfg.APIServer != "" {
		options = append(options, telego.WithAPIServer(cfg.APIServer))
	}
	if cfg.HTTPClient != nil {
		options = append(options, telego.WithHTTPClient(cfg.HTTPClient))
	}

	bot, err := telego.NewBot(cfg.Token, options...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Notifier{bot: bot, chatID: cfg.ChatID}, nil
}

func (n *Notifier) Notify(ctx context.Context, message string) error {
	if message == "" {
		return nil
	}

	if _, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(n.chatID), truncate(message))); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func truncate(message string) string {
	if utf8.RuneCountInString(message) <= maxMessageRunes {
		return message
	}

	runes := []rune(message)
	return string(runes[:maxMessageRunes-1]) + "…"
}
