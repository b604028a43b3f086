package pipeline

import (
	"context"

	kit "newsletterbot/internal/transport"
)

// ChatAlerter sends alerts to one admin chat. A zero ChatID disables it.
type ChatAlerter struct {
	Sender kit.Sender
	ChatID int64
}

func (a ChatAlerter) Alert(ctx context.Context, text string) error {
	if a.Sender == nil || a.ChatID == 0 {
		return nil
	}
	_, err := a.Sender.SendText(ctx, kit.ChatTarget{ChatID: a.ChatID}, text, &kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: true})
	return err
}
