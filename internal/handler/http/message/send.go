// Package message exposes the send endpoints, message queries, and batch
// task progress.
package message

import (
	"encoding/json"
	"net/http"

	"msghub/internal/handler/http/respond"
	"msghub/internal/usecase/dispatch"
)

type SendHandler struct{ Svc *dispatch.Service }

func (h SendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		dispatch.SendRequest
		Async bool `json:"async"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	msg, err := h.Svc.SendMessage(r.Context(), req.SendRequest, req.Async)
	if err != nil {
		respondDispatchError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(msg))
}
