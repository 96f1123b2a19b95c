package helpers

import (
	"fmt"
	"net/http"
	"strings"

	"aarath-auction/internal/biddingerrors"
	bidhelpers "aarath-auction/services/bidding/helpers"
)

// TokenFromRequest reads the bearer token from the token query parameter or the
// Authorization header. Browsers cannot set headers on a websocket handshake.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("Authorization"))
}

// Ack builds the success reply for request id
func Ack(id string, data any) ServerFrame {
	return ServerFrame{Type: TypeAck, ID: id, Data: data}
}

// Event builds a subscription event
func Event(subID, topic string, data any) ServerFrame {
	return ServerFrame{Type: TypeEvent, SubID: subID, Topic: topic, Data: data}
}

// ErrorFrame maps err to the HTTP style code used by the REST surface
func ErrorFrame(id string, err error) ServerFrame {
	code, message := bidhelpers.MapErrorToHTTP(err)
	return ServerFrame{Type: TypeError, ID: id, Code: code, Error: message}
}

// BadFrame reports a malformed client frame
func BadFrame(format string, args ...any) error {
	return fmt.Errorf("%w - %s", biddingerrors.ErrValidation, fmt.Sprintf(format, args...))
}
