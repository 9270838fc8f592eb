package notify

import (
	"context"
	"fmt"

	"github.com/flowforge/taskctl/internal/log"
)

// ConsoleNotifier writes rendered events to stdout and the structured log,
// the default adapter for a daemon run without a chat transport configured
// (spec §1 Non-goals: "implementing the chat transport" is explicitly out
// of scope — any Notifier satisfying this interface suffices).
type ConsoleNotifier struct{}

func NewConsoleNotifier() ConsoleNotifier { return ConsoleNotifier{} }

func (ConsoleNotifier) Send(_ context.Context, channelID, channel, message string, _ SendOptions) error {
	fmt.Printf("[%s:%s] %s\n", channel, channelID, message)
	log.Info(log.CatNotify, "sent console notification", "channel", channel, "channelId", channelID)
	return nil
}

var _ Notifier = ConsoleNotifier{}
