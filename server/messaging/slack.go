// Package messaging wraps the chat-platform client behind the two
// operations the gateway consumes: posting a message to a channel and
// downloading a file behind an attachment locator.
package messaging

import (
	"context"
	"io"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Messenger is the messaging collaborator as seen by the gateway.
type Messenger interface {
	PostMessage(ctx context.Context, channel, text string) error
	DownloadFile(ctx context.Context, url string, w io.Writer) error
}

// SlackMessenger implements Messenger over the Slack Web API.
type SlackMessenger struct {
	api    *slack.Client
	logger *zap.Logger
}

var _ Messenger = (*SlackMessenger)(nil)

// NewSlackMessenger creates a messenger authenticated with the bot token.
func NewSlackMessenger(botToken string, logger *zap.Logger) *SlackMessenger {
	return &SlackMessenger{
		api:    slack.New(botToken),
		logger: logger,
	}
}

// PostMessage posts plain text to a channel.
func (m *SlackMessenger) PostMessage(ctx context.Context, channel, text string) error {
	_, _, err := m.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(text, false),
	)
	return err
}

// DownloadFile streams the file behind a url_private locator into w,
// authenticating with the bot token.
func (m *SlackMessenger) DownloadFile(ctx context.Context, url string, w io.Writer) error {
	return m.api.GetFileContext(ctx, url, w)
}
