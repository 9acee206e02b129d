// Package messaging delivers outbound messages to Facebook Messenger users.
package messaging

import (
	"context"

	"github.com/premierreview/reviewbot/internal/models"
)

// Gateway is the outbound transport used by the pipeline and the sweep.
// Both calls are best effort and report success as a bool.
type Gateway interface {
	// SendMessage sends a text message to recipientID.
	SendMessage(ctx context.Context, recipientID, text string) bool

	// SendTypingIndicator turns the typing indicator on or off.
	SendTypingIndicator(ctx context.Context, recipientID string, on bool) bool
}

// ReachabilityStore records which users can no longer be messaged.
type ReachabilityStore interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	SetReachable(ctx context.Context, id string, reachable bool) error
}
