package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/stock-ledger/ledger"
)

// ErrorResponse represents an error in API responses. Field and Rule are
// set when a write rule rejected the request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger errors onto HTTP statuses:
//
//	validation, insufficient stock, forbidden delete, transfer  400
//	not found                                                   404
//	duplicate, still referenced                                 409
//	anything else                                               500
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case ledger.IsClientError(err):
		resp := ErrorResponse{Error: clientMessage(err), Details: err.Error()}
		var verr *ledger.ValidationError
		if errors.As(err, &verr) {
			resp.Field = verr.Field
			resp.Rule = string(verr.Rule)
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", err)
	default:
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrTransferFailed):
		return "transfer failed"
	case errors.Is(err, ledger.ErrInsufficientStock):
		return "insufficient stock"
	case errors.Is(err, ledger.ErrDeleteForbidden):
		return "delete forbidden"
	default:
		return "validation failed"
	}
}
