package notify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/slack-go/slack"

	"github.com/labwatch/labwatch/internal/models"
)

// SlackSender posts through the Slack Web API. Connection URL form:
// slack://TOKEN@CHANNEL_ID
type SlackSender struct{}

func (s *SlackSender) Send(ctx context.Context, ch *models.NotificationChannel, title, body string) error {
	u, err := url.Parse(ch.URL)
	if err != nil {
		return fmt.Errorf("invalid slack URL: %v", err)
	}
	token := u.User.Username()
	channel := u.Host
	if token == "" || channel == "" {
		return fmt.Errorf("slack URL must be slack://TOKEN@CHANNEL")
	}

	api := slack.New(token)
	_, _, err = api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(title, false),
		slack.MsgOptionAttachments(slack.Attachment{
			Color:  "#ff9900",
			Text:   body,
			Footer: "LabWatch",
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to post slack message: %v", err)
	}
	return nil
}
