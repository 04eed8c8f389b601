package app

import (
	"context"
	"errors"
	"fmt"

	"broadcast-quiz-service/internal/domain"
	"go.uber.org/zap"
)

// Transport sends messages to participants. Implementations bound every call
// with their own timeout.
type Transport interface {
	SendText(ctx context.Context, participantID, text string) error
	// SendMedia fails with domain.ErrMediaUnavailable when the media itself is the problem.
	SendMedia(ctx context.Context, participantID string, media domain.Media, caption string) error
	SendOptions(ctx context.Context, participantID, prompt string, options []string) (string, error)
	// ClearOptions retracts an option set; clearing twice is not an error.
	ClearOptions(ctx context.Context, participantID, messageRef string) error
}

// Alerter notifies operators out of band.
type Alerter interface {
	BroadcastAdminAlert(ctx context.Context, text string)
}

type nopAlerter struct{}

func (nopAlerter) BroadcastAdminAlert(context.Context, string) {}

// Deliverer renders reply directives onto a Transport.
type Deliverer struct {
	transport Transport
	log       *zap.Logger
}

func NewDeliverer(transport Transport, log *zap.Logger) *Deliverer {
	return &Deliverer{transport: transport, log: log}
}

// Deliver sends every directive in order and stops at the first failure.
// Media failures fall back to the caption as plain text; uncaptioned media
// that cannot be sent does not stop the rest of the reply but is reported
// in the returned error.
func (d *Deliverer) Deliver(ctx context.Context, participantID string, reply domain.Reply) error {
	var mediaErr error
	for _, msg := range reply.Messages {
		var err error
		switch {
		case msg.ClearRef != "":
			err = d.transport.ClearOptions(ctx, participantID, msg.ClearRef)
		case len(msg.Options) > 0:
			_, err = d.transport.SendOptions(ctx, participantID, msg.Text, msg.Options)
		case msg.Media != nil:
			err = d.sendMedia(ctx, participantID, *msg.Media, msg.Text)
			if errors.Is(err, domain.ErrMediaUnavailable) {
				mediaErr = errors.Join(mediaErr, err)
				err = nil
			}
		case msg.Text != "":
			err = d.transport.SendText(ctx, participantID, msg.Text)
		}
		if err != nil {
			return fmt.Errorf("deliver to %s: %w", participantID, err)
		}
	}
	if mediaErr != nil {
		return fmt.Errorf("deliver to %s: %w", participantID, mediaErr)
	}
	return nil
}

func (d *Deliverer) sendMedia(ctx context.Context, participantID string, media domain.Media, caption string) error {
	err := d.transport.SendMedia(ctx, participantID, media, caption)
	if err == nil {
		return nil
	}
	if caption == "" {
		return err
	}
	d.log.Warn("media delivery failed, sending text only",
		zap.String("participant", participantID),
		zap.String("media", media.Ref),
		zap.Error(err),
	)
	return d.transport.SendText(ctx, participantID, caption)
}
