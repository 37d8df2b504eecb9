package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/bnema/spin-accounts-cli/internal/ports"
)

// Log writes notifications to the structured log. It is used when no chat
// transport is configured.
type Log struct {
	Logger zerolog.Logger
}

var _ ports.Notifier = Log{}

func (n Log) Notify(_ context.Context, message string) error {
	n.Logger.Info().Str("component", "notify").Msg(message)
	return nil
}
