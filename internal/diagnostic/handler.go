// Package diagnostic serves endpoints for manual verification of a
// deployment. They have no durable side effects.
package diagnostic

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/scanner-portal/internal/apperr"
	"github.com/ovaphlow/scanner-portal/internal/auth"
	"github.com/ovaphlow/scanner-portal/internal/clerk"
	"github.com/ovaphlow/scanner-portal/pkg/utilities"
)

// maxEchoBody bounds what POST /api/test will read.
const maxEchoBody = 1 << 20

// timestampLayout matches JavaScript's Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type Handler struct {
	emails clerk.EmailLookup
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewHandler builds the handler. emails may be nil.
func NewHandler(emails clerk.EmailLookup, logger *zap.SugaredLogger) *Handler {
	return &Handler{emails: emails, logger: logger, now: time.Now}
}

// MeResponse describes the caller as the identity provider sees it.
type MeResponse struct {
	ClerkUserID  string   `json:"clerkUserId"`
	Email        string   `json:"email,omitempty"`
	PrimaryEmail string   `json:"primaryEmail,omitempty"`
	AllEmails    []string `json:"allEmails"`
}

// Me handles GET /api/debug/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := clerk.Enrich(r.Context(), h.emails, p.Identity())
	if err != nil {
		apperr.Write(w, h.logger, apperr.New(apperr.KindInternal, err))
		return
	}
	resp := MeResponse{
		ClerkUserID:  id.UserID,
		PrimaryEmail: id.PrimaryEmail,
		AllEmails:    id.Emails,
	}
	if len(id.Emails) > 0 {
		resp.Email = id.Emails[0]
	}
	if resp.AllEmails == nil {
		resp.AllEmails = []string{}
	}
	utilities.WriteJSON(w, http.StatusOK, resp)
}

// PingResponse is returned by GET /api/test.
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// EchoResponse is returned by POST /api/test.
type EchoResponse struct {
	Message      string          `json:"message"`
	ReceivedData json.RawMessage `json:"receivedData"`
	Timestamp    string          `json:"timestamp"`
}

// Ping handles GET /api/test.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	utilities.WriteJSON(w, http.StatusOK, PingResponse{
		Message:   "API is working!",
		Timestamp: h.timestamp(),
	})
}

// Echo handles POST /api/test and returns the submitted JSON verbatim.
func (h *Handler) Echo(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEchoBody))
	if err := dec.Decode(&body); err != nil {
		apperr.Write(w, h.logger, apperr.WithMessage(apperr.KindBadRequest, "Invalid JSON body", err))
		return
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		apperr.Write(w, h.logger, apperr.WithMessage(apperr.KindBadRequest, "Invalid JSON body", errors.New("trailing data after JSON value")))
		return
	}
	utilities.WriteJSON(w, http.StatusOK, EchoResponse{
		Message:      "POST request received!",
		ReceivedData: body,
		Timestamp:    h.timestamp(),
	})
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(timestampLayout)
}
