// internal/app/system/apperr/render.go
package apperr

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// payload is the stable wire shape for every error response:
//
//	{ "error": { "kind": "not_found", "message": "bug not found" } }
type payload struct {
	Error body `json:"error"`
}

type body struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// StatusFor maps an error kind to its HTTP status code.
func StatusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Write renders err as the JSON error payload with the mapped status.
// Unclassified errors are treated as internal: the cause is logged and
// the client sees only the generic message.
func Write(w http.ResponseWriter, log *zap.Logger, err error) {
	var ae *Error
	if !errors.As(err, &ae) {
		ae = Internal(err)
	}

	if ae.Kind == KindInternal && log != nil {
		log.Error("internal error", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(ae.Kind))
	_ = json.NewEncoder(w).Encode(payload{Error: body{Kind: ae.Kind, Message: ae.Message}})
}

// WriteJSON renders v as JSON with the given status. Shared by
// handlers so success responses set headers consistently.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodes a request body into dst, returning a validation
// error on malformed input. Unknown fields are rejected so typos in
// client payloads fail loudly instead of silently no-oping.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return Validation("malformed JSON body")
	}
	return nil
}
