package models

import (
	"fmt"
	"strings"
	"time"
)

// SenderType identifies who authored a chat log entry.
type SenderType string

const (
	SenderUser        SenderType = "USER"
	SenderSystemAI    SenderType = "SYSTEM_AI"
	SenderAdminManual SenderType = "ADMIN_MANUAL"
)

// ChatLog is an append-only conversation event. Timestamp is assigned by the store.
type ChatLog struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	SenderType SenderType `json:"sender_type"`
	Content    string     `json:"message_content"`
	Timestamp  time.Time  `json:"timestamp"`
}

// String renders the entry the way conversation chunks are fed to the model.
func (c ChatLog) String() string {
	return fmt.Sprintf("%s: %s", c.SenderType, c.Content)
}

// RenderHistory joins entries as "{SENDER}: {content}" lines in the given order.
func RenderHistory(logs []ChatLog) string {
	lines := make([]string, 0, len(logs))
	for _, l := range logs {
		lines = append(lines, l.String())
	}
	return strings.Join(lines, "\n")
}
