// Package subscription applies inbound SMS keywords to subscriber state.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"sms-broadcaster/internal/db"
	"sms-broadcaster/internal/models"
	"sms-broadcaster/internal/sms"
)

const (
	KeywordSubscribe = "subscribe"
	KeywordStop      = "stop"
)

const (
	MessageSubscribed   = "Thanks for subscribing to our list! Send STOP anytime if you no longer want to receive messages from us."
	MessageResubscribed = "Thanks for re-subscribing to our list! Send STOP anytime if you no longer want to receive messages from us."
	MessageUnsubscribed = "Sorry to see you go! You will not receive further marketing messages from us."
)

// Transition is the state change selected for one inbound message.
type Transition int

const (
	None Transition = iota
	Create
	Resubscribe
	Unsubscribe
)

func (t Transition) String() string {
	switch t {
	case Create:
		return "create"
	case Resubscribe:
		return "resubscribe"
	case Unsubscribe:
		return "unsubscribe"
	default:
		return "none"
	}
}

// Notification returns the confirmation text sent for t, or "" for None.
func (t Transition) Notification() string {
	switch t {
	case Create:
		return MessageSubscribed
	case Resubscribe:
		return MessageResubscribed
	case Unsubscribe:
		return MessageUnsubscribed
	default:
		return ""
	}
}

// Normalize case-folds the message body. Surrounding whitespace is kept, so
// " stop" is not a keyword.
func Normalize(text string) string {
	return strings.ToLower(text)
}

// Decide maps the current record state and keyword to a transition.
func Decide(present, subscribed bool, keyword string) Transition {
	switch {
	case !present && keyword == KeywordSubscribe:
		return Create
	case present && !subscribed && keyword == KeywordSubscribe:
		return Resubscribe
	case present && subscribed && keyword == KeywordStop:
		return Unsubscribe
	default:
		return None
	}
}

// Store is the persistence the manager needs. *db.Store implements it.
type Store interface {
	GetSubscriber(ctx context.Context, number string) (models.Subscriber, error)
	CreateSubscriber(ctx context.Context, number string) (bool, error)
	SetSubscribed(ctx context.Context, number string, subscribed bool) (bool, error)
}

// Outcome describes what one HandleInbound call did.
type Outcome struct {
	Transition Transition
	// Notified is false when the transition was applied but the
	// confirmation could not be delivered.
	Notified bool
}

type Manager struct {
	store      Store
	sender     sms.Sender
	originator string
	log        *zap.Logger
}

func New(store Store, sender sms.Sender, originator string, log *zap.Logger) *Manager {
	return &Manager{
		store:      store,
		sender:     sender,
		originator: originator,
		log:        log,
	}
}

// HandleInbound applies one received message from number. A persistence
// error is returned; a failed confirmation send is logged and reported in
// the outcome only.
func (m *Manager) HandleInbound(ctx context.Context, number, rawText string) (Outcome, error) {
	keyword := Normalize(rawText)
	log := m.log.With(zap.String("number", number))

	present, subscribed := true, false
	sub, err := m.store.GetSubscriber(ctx, number)
	switch {
	case errors.Is(err, db.ErrNotFound):
		present = false
	case err != nil:
		return Outcome{}, fmt.Errorf("failed to look up subscriber: %w", err)
	default:
		subscribed = sub.Subscribed
	}

	transition := Decide(present, subscribed, keyword)
	if transition == None {
		log.Debug("no transition", zap.Bool("present", present), zap.Bool("subscribed", subscribed))
		return Outcome{Transition: None}, nil
	}

	applied, err := m.apply(ctx, transition, number)
	if err != nil {
		return Outcome{}, err
	}
	if !applied {
		// Another request changed the record between lookup and write.
		log.Info("transition lost race", zap.Stringer("transition", transition))
		return Outcome{Transition: None}, nil
	}

	out := Outcome{Transition: transition}
	if err := m.sender.Send(ctx, m.originator, []string{number}, transition.Notification()); err != nil {
		log.Error("failed to send confirmation", zap.Stringer("transition", transition), zap.Error(err))
		return out, nil
	}
	out.Notified = true

	log.Info("subscription updated", zap.Stringer("transition", transition))
	return out, nil
}

func (m *Manager) apply(ctx context.Context, t Transition, number string) (bool, error) {
	var (
		ok  bool
		err error
	)
	switch t {
	case Create:
		ok, err = m.store.CreateSubscriber(ctx, number)
	case Resubscribe:
		ok, err = m.store.SetSubscribed(ctx, number, true)
	case Unsubscribe:
		ok, err = m.store.SetSubscribed(ctx, number, false)
	default:
		return false, fmt.Errorf("unexpected transition %s", t)
	}
	if err != nil {
		return false, fmt.Errorf("failed to apply %s: %w", t, err)
	}
	return ok, nil
}
