package notify

import (
	"context"
	"sync"
)

// FakeNotifier records every delivered message, for test assertions.
type FakeNotifier struct {
	mu  sync.Mutex
	Out []Delivery
}

// Delivery is one recorded Send call.
type Delivery struct {
	ChannelID string
	Channel   string
	Message   string
	Opts      SendOptions
}

func NewFakeNotifier() *FakeNotifier { return &FakeNotifier{} }

func (f *FakeNotifier) Send(ctx context.Context, channelID, channel, message string, opts SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Out = append(f.Out, Delivery{ChannelID: channelID, Channel: channel, Message: message, Opts: opts})
	return nil
}

var _ Notifier = (*FakeNotifier)(nil)
