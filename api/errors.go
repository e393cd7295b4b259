package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/course-ledger/ledger"
)

// statusFor maps a ledger error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInternal):
		return http.StatusInternalServerError
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, ledger.ErrInvalidArgument):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeLedgerError renders err. Internal causes are replaced by a generic
// message; the engine has already logged them.
func writeLedgerError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Message: err.Error()}
	if status == http.StatusInternalServerError {
		resp.Message = "Internal server error"
	}

	var funds *ledger.InsufficientFundsError
	if errors.As(err, &funds) {
		required, available := int64(funds.Required), int64(funds.Available)
		resp.Required = &required
		resp.Available = &available
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
