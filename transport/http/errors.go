package http

import (
	"encoding/json"
	"net/http"

	"github.com/agentgraph/engine/apierror"
)

// statusFor maps an apierror.Kind to the HTTP status §7 implies.
func statusFor(kind apierror.Kind) int {
	switch kind {
	case apierror.KindUnauthorized:
		return http.StatusUnauthorized
	case apierror.KindForbidden:
		return http.StatusForbidden
	case apierror.KindNotFound:
		return http.StatusNotFound
	case apierror.KindValidation:
		return http.StatusBadRequest
	case apierror.KindConflict:
		return http.StatusConflict
	case apierror.KindClientClosed:
		return 499 // nginx convention for client closed request; no stdlib constant exists.
	default:
		return http.StatusInternalServerError
	}
}

type errorDetail struct {
	Kind    apierror.Kind `json:"kind"`
	Message string        `json:"message"`
}

type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := apierror.KindOf(err)
	status := statusFor(kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Kind: kind, Message: err.Error()}})
}
