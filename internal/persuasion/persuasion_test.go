package persuasion

import (
	"slices"
	"strings"
	"testing"

	"github.com/premierreview/reviewbot/internal/models"
)

func TestMessagesCountByRegistration(t *testing.T) {
	g := New("")
	for _, key := range []ContextKey{ExamFinished, ExamOptOut, GeneralChat} {
		registered := g.Messages(models.User{FirstName: "Maria", IsRegisteredWebsiteUser: true}, key)
		if len(registered) != 1 {
			t.Errorf("%s: expected 1 message for registered user, got %d", key, len(registered))
		}
		unregistered := g.Messages(models.User{FirstName: "Maria"}, key)
		if len(unregistered) != 2 {
			t.Errorf("%s: expected 2 messages for unregistered user, got %d", key, len(unregistered))
		}
		if !strings.Contains(unregistered[0], "Maria") || !strings.Contains(unregistered[0], DefaultWebsiteURL) {
			t.Errorf("%s: expected name and link in pitch, got %q", key, unregistered[0])
		}
	}
}

func TestMessagesCustomURLAndUnknownKey(t *testing.T) {
	g := New("https://example.test/review")
	msgs := g.Messages(models.User{FirstName: "Jo", IsRegisteredWebsiteUser: true}, ExamOptOut)
	if !strings.Contains(msgs[0], "https://example.test/review") {
		t.Errorf("expected custom URL, got %q", msgs[0])
	}
	if got := g.Messages(models.User{}, ContextKey("unknown")); got != nil {
		t.Errorf("expected no messages for unknown key, got %v", got)
	}
	if !strings.Contains(g.Messages(models.User{}, ExamFinished)[0], "there") {
		t.Error("expected generic greeting when first name is missing")
	}
}

func TestLoadingMessage(t *testing.T) {
	for i := 0; i < 20; i++ {
		if m := LoadingMessage(); !slices.Contains(loadingMessages, m) {
			t.Fatalf("unexpected loading message %q", m)
		}
	}
}
