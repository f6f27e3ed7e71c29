package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"wayfarer/pkg/fault"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps a fault kind onto an HTTP status and emits the envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fault.KindOf(err) {
	case fault.NotFound:
		status = http.StatusNotFound
	case fault.Invalid:
		status = http.StatusBadRequest
	case fault.Infeasible:
		status = http.StatusUnprocessableEntity
	case fault.Conflict:
		status = http.StatusConflict
	case fault.ExternalTransient, fault.ExternalUnavailable:
		status = http.StatusServiceUnavailable
	case fault.ExternalPermanent:
		status = http.StatusBadGateway
	}

	var body errorBody
	body.Error.Message = err.Error()
	body.Error.Code = fault.CodeOf(err)
	if body.Error.Code == "" {
		body.Error.Code = "INTERNAL"
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		body.Error.Message = fe.Message
	}
	if status >= 500 {
		slog.Error("request failed", "code", body.Error.Code, "error", err)
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fault.Wrap(fault.Invalid, fault.CodeInvalidArgument, err, "invalid request body")
	}
	return nil
}
