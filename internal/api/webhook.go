package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/premierreview/reviewbot/internal/models"
)

const signatureHeader = "X-Hub-Signature-256"

// verifyWebhookHandler answers Facebook's subscription handshake.
func (s *Server) verifyWebhookHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || s.opts.VerifyToken == "" ||
		!hmac.Equal([]byte(token), []byte(s.opts.VerifyToken)) {
		slog.Warn("verifyWebhookHandler: verification failed", "mode", mode)
		http.Error(w, "Error, wrong validation token", http.StatusForbidden)
		return
	}
	slog.Info("verifyWebhookHandler: webhook verified")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// receiveWebhookHandler queues every messaging event of a delivery and
// acknowledges it. Processing happens asynchronously.
func (s *Server) receiveWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		slog.Warn("receiveWebhookHandler: failed to read body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid request body"))
		return
	}

	if s.opts.AppSecret != "" && !validSignature(body, r.Header.Get(signatureHeader), s.opts.AppSecret) {
		slog.Warn("receiveWebhookHandler: invalid signature")
		writeJSONResponse(w, http.StatusForbidden, errorResponse("Invalid signature"))
		return
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Warn("receiveWebhookHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid JSON"))
		return
	}

	queued, full := 0, false
	for _, entry := range payload.Entry {
		for _, ev := range entry.Messaging {
			if err := s.events.Submit(ev); err != nil {
				slog.Error("receiveWebhookHandler: failed to queue event", "sender_id", ev.Sender.ID, "error", err)
				full = true
				continue
			}
			queued++
		}
	}
	slog.Debug("receiveWebhookHandler: delivery queued", "object", payload.Object, "events", queued)

	if full {
		// Facebook redelivers on non-2xx; already queued events are deduplicated
		// by mid, or by sender and timestamp for postbacks.
		writeJSONResponse(w, http.StatusServiceUnavailable, errorResponse("Event queue unavailable"))
		return
	}
	writeJSONResponse(w, http.StatusOK, apiResponse{Status: statusReceived})
}

// validSignature checks a "sha256=<hex>" HMAC of body keyed with secret.
func validSignature(body []byte, header, secret string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
