package models

import (
	"strconv"
	"strings"
)

// Messenger webhook payload shapes. Only the fields the pipeline reads are kept.

// Participant identifies the sender or recipient of an event.
type Participant struct {
	ID string `json:"id"`
}

// EventMessage is the message part of a messaging event.
type EventMessage struct {
	MID    string `json:"mid,omitempty"`
	Text   string `json:"text,omitempty"`
	IsEcho bool   `json:"is_echo,omitempty"`
	AppID  int64  `json:"app_id,omitempty"`
}

// EventPostback is the postback part of a messaging event.
type EventPostback struct {
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// InboundEvent is one entry of a webhook "messaging" array.
type InboundEvent struct {
	Sender    Participant    `json:"sender"`
	Recipient Participant    `json:"recipient"`
	Message   *EventMessage  `json:"message,omitempty"`
	Postback  *EventPostback `json:"postback,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// WebhookEntry is one page entry of a webhook delivery.
type WebhookEntry struct {
	ID        string         `json:"id"`
	Time      int64          `json:"time"`
	Messaging []InboundEvent `json:"messaging"`
}

// WebhookPayload is the body Facebook posts to the webhook.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// Text returns the trimmed message text, or "" when the event carries none.
func (e InboundEvent) Text() string {
	if e.Message == nil {
		return ""
	}
	return strings.TrimSpace(e.Message.Text)
}

// HasText reports whether the event carries non-blank message text.
func (e InboundEvent) HasText() bool {
	return e.Text() != ""
}

// IsEcho reports whether the event is an echo of a page-sent message.
func (e InboundEvent) IsEcho() bool {
	return e.Message != nil && e.Message.IsEcho
}

// MessageID returns the Messenger message id, if any.
func (e InboundEvent) MessageID() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.MID
}

// DedupKey identifies a delivery for redelivery detection: the mid for
// messages, sender and timestamp for postbacks (which carry no mid). Events
// with neither yield "".
func (e InboundEvent) DedupKey() string {
	if mid := e.MessageID(); mid != "" {
		return mid
	}
	if e.Postback != nil && e.Timestamp != 0 {
		return "postback:" + e.Sender.ID + ":" + strconv.FormatInt(e.Timestamp, 10)
	}
	return ""
}

// UserID returns the id of the conversation's end user. For echoes the page is
// the sender, so the user is the recipient.
func (e InboundEvent) UserID() string {
	if e.IsEcho() {
		return e.Recipient.ID
	}
	return e.Sender.ID
}
