// Package apperr maps internal failures onto the closed set of error kinds
// that may be shown to API callers.
package apperr

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/scanner-portal/pkg/utilities"
)

// Kind is a client-visible error category.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindBadRequest      Kind = "bad_request"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

var kindStatus = map[Kind]int{
	KindUnauthenticated: http.StatusUnauthorized,
	KindBadRequest:      http.StatusBadRequest,
	KindNotFound:        http.StatusNotFound,
	KindInternal:        http.StatusInternalServerError,
}

var kindMessage = map[Kind]string{
	KindUnauthenticated: "Not logged in",
	KindBadRequest:      "Bad request",
	KindNotFound:        "Not found",
	KindInternal:        "Internal server error",
}

// Error attaches a Kind to an underlying cause. Message overrides the kind's
// default client message and must never contain internal detail.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = kindMessage[e.Kind]
	}
	if e.Cause != nil {
		return string(e.Kind) + ": " + msg + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause with kind.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// WithMessage wraps cause with kind and a fixed client message.
func WithMessage(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		if _, ok := kindStatus[ae.Kind]; ok {
			return ae.Kind
		}
	}
	return KindInternal
}

// Status returns the HTTP status for kind.
func Status(kind Kind) int {
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Body is the JSON shape of every API error response. The kind itself only
// selects status and message.
type Body struct {
	Error string `json:"error"`
}

// Write serializes err as its kind's status and message. The cause is logged,
// never sent.
func Write(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	kind := KindOf(err)
	msg := kindMessage[kind]
	var ae *Error
	if errors.As(err, &ae) && ae.Message != "" && ae.Kind == kind {
		msg = ae.Message
	}
	if logger != nil {
		if kind == KindInternal {
			logger.Errorw("request failed", "kind", kind, "err", err)
		} else {
			logger.Debugw("request rejected", "kind", kind, "err", err)
		}
	}
	utilities.WriteJSON(w, Status(kind), Body{Error: msg})
}
