package api

import (
	"net/http"

	"github.com/warp/course-ledger/ledger"
)

// GrantBonus handles POST /api/admin/users/{userID}/bonus.
func (h *Handler) GrantBonus(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req BonusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	balance, err := h.Engine.GrantBonus(r.Context(), ledger.UserID(userID), ledger.Points(req.Amount), req.Description)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PointsResponse{Success: true, Points: int64(balance)})
}
