// Package email defines outbound mail delivery. A Sender either delivers
// directly (SendGrid) or hands the message to the message broker for a
// worker to deliver later; in both cases a returned error means the message
// is not considered sent.
package email

import "context"

// Message is a plain-text outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a message. Implementations must return a non-nil error
// whenever delivery (or enqueueing) did not happen, so callers can run their
// compensating actions.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
