// Package gateway implements the HTTP / Duplex Gateway (spec §4.7): request
// routing, capability-token extraction, cookie handling, and the wire
// error mapping of spec §7. Grounded on cmd/gateway/main.go's gorilla/mux
// router-plus-middleware-chain wiring and applications/httpapi/handler.go's
// per-endpoint auth/validation shape.
package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

type errorBody struct {
	Error struct {
		Kind    apierrors.Kind         `json:"kind"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error"`
}

// writeError maps any error to the wire shape of spec §7, defaulting to an
// opaque internal error rather than leaking store/provider error strings.
func writeError(w http.ResponseWriter, err error) {
	se := apierrors.As(err)
	if se == nil {
		se = apierrors.Internal("unexpected error", err)
	}
	var body errorBody
	body.Error.Kind = se.Kind
	body.Error.Message = se.Message
	body.Error.Details = se.Details
	writeJSON(w, se.HTTPStatus, body)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierrors.ValidationFailed("body", "malformed JSON: "+err.Error())
	}
	return nil
}
