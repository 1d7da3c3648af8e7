package notify

import (
	"context"
	"fmt"

	"github.com/containrrr/shoutrrr"
	"github.com/containrrr/shoutrrr/pkg/types"

	"github.com/labwatch/labwatch/internal/models"
)

// ShoutrrrSender handles every service shoutrrr speaks (discord, telegram,
// pushover, gotify, matrix, ...) through a single URL-addressed send. This
// is the generic arm of the channel abstraction: the URL stays opaque here.
type ShoutrrrSender struct{}

func (s *ShoutrrrSender) Send(ctx context.Context, ch *models.NotificationChannel, title, body string) error {
	sender, err := shoutrrr.CreateSender(ch.URL)
	if err != nil {
		return fmt.Errorf("invalid notification URL: %v", err)
	}

	errs := sender.Send(body, &types.Params{"title": title})
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("failed to deliver notification: %v", err)
		}
	}
	return nil
}
