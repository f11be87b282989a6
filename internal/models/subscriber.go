package models

import "time"

// Subscriber is a phone number with its broadcast opt-in flag.
// Number is the key; records are never deleted.
type Subscriber struct {
	Number     string    `db:"number"`
	Subscribed bool      `db:"subscribed"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
