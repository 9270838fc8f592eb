// Package notify implements the chat/notification contract (spec §4.8,
// §6.3, C8): a typed event is rendered to plain text with a fixed emoji
// prefix per type, routed to a channel, and delivered best-effort.
package notify

import (
	"context"
	"fmt"

	"github.com/flowforge/taskctl/internal/log"
	"github.com/flowforge/taskctl/internal/registry"
)

// EventType enumerates the notification events the core emits.
type EventType string

const (
	EventWorkerStart       EventType = "workerStart"
	EventWorkerComplete    EventType = "workerComplete"
	EventReviewNeeded      EventType = "reviewNeeded"
	EventPRMerged          EventType = "prMerged"
	EventChangesRequested  EventType = "changesRequested"
	EventMergeConflict     EventType = "mergeConflict"
	EventPRClosed          EventType = "prClosed"
)

// emojiFor returns the fixed emoji prefix for an event type (spec §4.8:
// "a small fixed set of emoji prefixes per event type").
func emojiFor(t EventType) string {
	switch t {
	case EventWorkerStart:
		return "🚀"
	case EventWorkerComplete:
		return "✅"
	case EventReviewNeeded:
		return "👀"
	case EventPRMerged:
		return "🔀"
	case EventChangesRequested:
		return "✏️"
	case EventMergeConflict:
		return "⚠️"
	case EventPRClosed:
		return "❌"
	default:
		return "ℹ️"
	}
}

// Event is one notification to render and deliver.
type Event struct {
	Type       EventType
	Project    string
	IssueID    string
	IssueTitle string
	Role       string
	Level      string
	Detail     string // free-form extra context, e.g. a PR url or failure reason
}

// String renders the event as the plain-text message a channel receives.
func (e Event) String() string {
	msg := fmt.Sprintf("%s %s", emojiFor(e.Type), e.headline())
	if e.Detail != "" {
		msg += " — " + e.Detail
	}
	return msg
}

func (e Event) headline() string {
	switch e.Type {
	case EventWorkerStart:
		return fmt.Sprintf("%s/%s picked up #%s %q", e.Role, e.Level, e.IssueID, e.IssueTitle)
	case EventWorkerComplete:
		return fmt.Sprintf("%s finished #%s %q", e.Role, e.IssueID, e.IssueTitle)
	case EventReviewNeeded:
		return fmt.Sprintf("#%s %q needs review", e.IssueID, e.IssueTitle)
	case EventPRMerged:
		return fmt.Sprintf("PR for #%s %q merged", e.IssueID, e.IssueTitle)
	case EventChangesRequested:
		return fmt.Sprintf("changes requested on #%s %q", e.IssueID, e.IssueTitle)
	case EventMergeConflict:
		return fmt.Sprintf("merge conflict on #%s %q", e.IssueID, e.IssueTitle)
	case EventPRClosed:
		return fmt.Sprintf("PR for #%s %q closed without merging", e.IssueID, e.IssueTitle)
	default:
		return fmt.Sprintf("#%s %q", e.IssueID, e.IssueTitle)
	}
}

// SendOptions carries the optional delivery hints from spec §6.3.
type SendOptions struct {
	Silent             bool
	DisableLinkPreview bool
	AccountID          string
}

// Notifier is the abstract chat/notification adapter (spec §6.3). Delivery
// failures are non-fatal by contract; Notifier implementations return an
// error purely for logging, never to be propagated as a pipeline failure.
type Notifier interface {
	Send(ctx context.Context, channelID, channel, message string, opts SendOptions) error
}

// notifyLabelPrefix is the label namespace resolveNotifyChannel inspects
// (spec §4.5 step 18, §3.6's "notify:<channelId>").
const notifyLabelPrefix = "notify:"

// ResolveNotifyChannel picks the channel a notification for an issue routes
// to: the first project channel whose ChannelID matches a `notify:<id>`
// label on the issue, falling back to the project's first channel.
func ResolveNotifyChannel(issueLabels []string, channels []registry.ChannelBinding) (registry.ChannelBinding, bool) {
	if len(channels) == 0 {
		return registry.ChannelBinding{}, false
	}
	for _, l := range issueLabels {
		if len(l) <= len(notifyLabelPrefix) || l[:len(notifyLabelPrefix)] != notifyLabelPrefix {
			continue
		}
		wanted := l[len(notifyLabelPrefix):]
		for _, c := range channels {
			if c.ChannelID == wanted {
				return c, true
			}
		}
	}
	return channels[0], true
}

// Dispatch renders ev and delivers it to the channel resolved from
// issueLabels, logging (never returning) a delivery failure.
func Dispatch(ctx context.Context, notifier Notifier, ev Event, issueLabels []string, channels []registry.ChannelBinding) {
	channel, ok := ResolveNotifyChannel(issueLabels, channels)
	if !ok {
		log.Debug(log.CatNotify, "no channel configured, dropping notification", "project", ev.Project, "issue", ev.IssueID, "type", ev.Type)
		return
	}
	if err := notifier.Send(ctx, channel.ChannelID, channel.Channel, ev.String(), SendOptions{}); err != nil {
		log.Warn(log.CatNotify, "notification delivery failed", "project", ev.Project, "issue", ev.IssueID, "type", ev.Type, "channel", channel.ChannelID, "error", err)
	}
}
