// Package testutil provides fakes and helpers shared by reviewbot tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/premierreview/reviewbot/internal/models"
	"github.com/premierreview/reviewbot/internal/store"
)

// FakeBackend is a scriptable AI backend. Zero values produce the same
// fallbacks the real backend uses on failure.
type FakeBackend struct {
	mu sync.Mutex

	Name         string
	NameFound    bool
	Feedback     models.GradeFeedback
	Assessment   string
	Summary      string
	ChatReply    string
	ReEngagement string

	Calls         []string
	ChatVars      []map[string]string
	SummaryChunks []string
	ReEngageReqs  []models.ReEngagementRequest
}

func (f *FakeBackend) record(call string) {
	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	f.mu.Unlock()
}

// CallCount returns how many times method was invoked.
func (f *FakeBackend) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *FakeBackend) ExtractName(ctx context.Context, text string) (string, bool) {
	f.record("ExtractName")
	return f.Name, f.NameFound
}

func (f *FakeBackend) GradeExam(ctx context.Context, question, answer, expected string) models.GradeFeedback {
	f.record("GradeExam")
	return f.Feedback
}

func (f *FakeBackend) GenerateStrengthAssessment(ctx context.Context, userID string) string {
	f.record("GenerateStrengthAssessment")
	return f.Assessment
}

func (f *FakeBackend) SummarizeConversation(ctx context.Context, userID, chunk, existingSummary string) string {
	f.record("SummarizeConversation")
	f.mu.Lock()
	f.SummaryChunks = append(f.SummaryChunks, chunk)
	f.mu.Unlock()
	return f.Summary
}

func (f *FakeBackend) GenerateChatResponse(ctx context.Context, systemKey, userKey string, category models.Stage, vars map[string]string) string {
	f.record("GenerateChatResponse")
	f.mu.Lock()
	f.ChatVars = append(f.ChatVars, vars)
	f.mu.Unlock()
	return f.ChatReply
}

func (f *FakeBackend) GenerateReEngagementMessage(ctx context.Context, req models.ReEngagementRequest) string {
	f.record("GenerateReEngagementMessage")
	f.mu.Lock()
	f.ReEngageReqs = append(f.ReEngageReqs, req)
	f.mu.Unlock()
	return f.ReEngagement
}

// SentMessage is one message recorded by FakeGateway.
type SentMessage struct {
	To   string
	Text string
}

// FakeGateway records outbound traffic. Fail makes every SendMessage report
// failure after recording it.
type FakeGateway struct {
	mu     sync.Mutex
	Fail   bool
	Sent   []SentMessage
	Typing []bool
}

func (g *FakeGateway) SendMessage(ctx context.Context, recipientID, text string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Sent = append(g.Sent, SentMessage{To: recipientID, Text: text})
	return !g.Fail
}

func (g *FakeGateway) SendTypingIndicator(ctx context.Context, recipientID string, on bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Typing = append(g.Typing, on)
	return true
}

// Texts returns the text of every recorded message in order.
func (g *FakeGateway) Texts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.Sent))
	for _, m := range g.Sent {
		out = append(out, m.Text)
	}
	return out
}

// GraphStub is an httptest stand-in for the Messenger Send API that answers
// every request with the same status and body.
type GraphStub struct {
	URL   string
	calls atomic.Int64
}

// Calls returns the number of requests served so far.
func (g *GraphStub) Calls() int { return int(g.calls.Load()) }

// NewGraphStub starts a stub closed at test cleanup.
func NewGraphStub(t *testing.T, status int, body string) *GraphStub {
	t.Helper()
	stub := &GraphStub{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	stub.URL = srv.URL + "/me/messages"
	return stub
}

// UserUnavailableBody is the Graph API error for a user who blocked the page.
const UserUnavailableBody = `{"error":{"message":"This person isn't available right now.","type":"OAuthException","code":551}}`

// SeedQuestions adds n gradable questions to st and returns them.
func SeedQuestions(t *testing.T, st store.Store, n int) []models.Question {
	t.Helper()
	out := make([]models.Question, 0, n)
	for i := 0; i < n; i++ {
		q, err := st.CreateQuestion(context.Background(), models.Question{
			Category:       models.CategoryCriminalLaw,
			QuestionText:   "What are the elements of theft?",
			ExpectedAnswer: "Taking of personal property belonging to another with intent to gain.",
		})
		if err != nil {
			t.Fatalf("failed to seed question: %v", err)
		}
		out = append(out, q)
	}
	return out
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if status, ok := response["status"].(string); !ok || status != expectedStatus {
		t.Errorf("expected status %q, got %v", expectedStatus, response["status"])
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// TextEvent builds a plain inbound text message from userID.
func TextEvent(userID, mid, text string) models.InboundEvent {
	return models.InboundEvent{
		Sender:    models.Participant{ID: userID},
		Recipient: models.Participant{ID: "page"},
		Message:   &models.EventMessage{MID: mid, Text: text},
	}
}
