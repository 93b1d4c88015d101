package telegram

import (
	"context"
	"time"

	"github.com/inboxvalet/inboxvalet/internal/cleanup"
)

// Notifier adapts Client to the cleanup loop's notification channel.
type Notifier struct {
	Client *Client
}

func (n *Notifier) Send(ctx context.Context, text string, actions []cleanup.Action) error {
	buttons := make([]Button, 0, len(actions))
	for _, a := range actions {
		buttons = append(buttons, Button{Text: a.Label, CallbackData: a.Token})
	}
	return n.Client.SendMessage(ctx, text, buttons)
}

func (n *Notifier) AwaitSelection(ctx context.Context, tokens []string, timeout time.Duration) (string, error) {
	return n.Client.AwaitSelection(ctx, tokens, timeout)
}

var _ cleanup.Notifier = (*Notifier)(nil)

// Alerts adapts Client for plain-text alert delivery without keyboards.
type Alerts struct {
	Client *Client
}

func (a *Alerts) Send(ctx context.Context, text string) error {
	return a.Client.SendMessage(ctx, text, nil)
}
