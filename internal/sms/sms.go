package sms

import (
	"context"
	"errors"
	"fmt"

	messagebird "github.com/messagebird/go-rest-api/v9"
	mbsms "github.com/messagebird/go-rest-api/v9/sms"
	"go.uber.org/zap"
)

// MaxRecipients is the provider limit on recipients per message call.
const MaxRecipients = 50

var (
	ErrNoRecipients      = errors.New("no recipients")
	ErrTooManyRecipients = fmt.Errorf("more than %d recipients", MaxRecipients)
)

// Sender delivers one message body to a group of recipients.
type Sender interface {
	Send(ctx context.Context, from string, to []string, body string) error
}

// createFunc matches mbsms.Create so tests can stub the API call.
type createFunc func(c messagebird.Client, originator string, recipients []string, body string, params *mbsms.Params) (*mbsms.Message, error)

// MessageBird sends messages through the MessageBird REST API.
type MessageBird struct {
	client messagebird.Client
	create createFunc
	log    *zap.Logger
}

func NewMessageBird(accessKey string, log *zap.Logger) *MessageBird {
	return &MessageBird{
		client: messagebird.New(accessKey),
		create: mbsms.Create,
		log:    log,
	}
}

func (m *MessageBird) Send(ctx context.Context, from string, to []string, body string) error {
	if err := Validate(to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := m.create(m.client, from, to, body, nil)
	if err != nil {
		return fmt.Errorf("messagebird: failed to create message: %w", err)
	}

	m.log.Debug("message created",
		zap.String("id", msg.ID),
		zap.Int("recipients", len(to)),
	)
	return nil
}

// Validate checks a recipient group against the provider limit.
func Validate(to []string) error {
	switch {
	case len(to) == 0:
		return ErrNoRecipients
	case len(to) > MaxRecipients:
		return ErrTooManyRecipients
	}
	return nil
}
