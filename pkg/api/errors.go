package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/vcp/pkg/apperr"
)

// errorBody is the wire shape of every non-2xx REST response, per
// SPEC_FULL.md §7: {error:{code,message,details?}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    apperr.Code   `json:"code"`
	Message string        `json:"message"`
	Details *errorDetails `json:"details,omitempty"`
}

// errorDetails carries retryable:true for transient failures.
type errorDetails struct {
	Retryable bool `json:"retryable"`
}

// httpStatus maps an *apperr.Error onto the HTTP status its Code/Kind
// implies, per the status notes already recorded on apperr.Kind: a
// transport failure is a 202 because the intent and its Task are
// already committed by the time the agent proved unreachable.
func httpStatus(e *apperr.Error) int {
	switch e.Code {
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.VMNotFound, apperr.VolumeNotFound, apperr.NetworkNotFound, apperr.NodeNotFound:
		return http.StatusNotFound
	case apperr.PreconditionFailed, apperr.IPExhausted:
		return http.StatusConflict
	case apperr.InvalidRequest, apperr.MethodNotFound:
		return http.StatusBadRequest
	}
	switch e.Kind {
	case apperr.KindTransport:
		return http.StatusAccepted
	case apperr.KindDriver:
		return http.StatusBadGateway
	case apperr.KindPrecondition:
		return http.StatusConflict
	case apperr.KindInfra:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	ae := apperr.AsAppError(err)
	body := errorBody{Error: errorDetail{Code: ae.Code, Message: ae.Message}}
	if ae.Retryable {
		body.Error.Details = &errorDetails{Retryable: true}
	}
	writeJSON(w, httpStatus(ae), body)
}
