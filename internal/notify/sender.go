package notify

import (
	"context"
	"fmt"

	"github.com/labwatch/labwatch/internal/models"
)

// Sender delivers one message through a channel's opaque connection URL.
// Implementations exist per service type; the dispatcher never inspects
// the URL itself.
type Sender interface {
	Send(ctx context.Context, ch *models.NotificationChannel, title, body string) error
}

// Registry maps a channel's service type to its sender.
type Registry map[string]Sender

// NewRegistry returns the built-in sender set.
func NewRegistry() Registry {
	return Registry{
		"slack":    &SlackSender{},
		"email":    &EmailSender{},
		"webhook":  &WebhookSender{},
		"shoutrrr": &ShoutrrrSender{},
	}
}

func (r Registry) send(ctx context.Context, ch *models.NotificationChannel, title, body string) error {
	s, ok := r[ch.ServiceType]
	if !ok {
		return fmt.Errorf("no sender for service type %q", ch.ServiceType)
	}
	return s.Send(ctx, ch, title, body)
}
