package message

import (
	"errors"
	"net/http"

	"msghub/internal/handler/http/respond"
	"msghub/internal/repository"
)

type GetHandler struct{ Repo repository.MessageRepository }

func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	no := r.PathValue("no")
	if no == "" {
		respond.SafeError(w, http.StatusBadRequest, errors.New("message number required"))
		return
	}
	msg, err := h.Repo.GetByMessageNo(r.Context(), no)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	if msg == nil {
		respond.SafeError(w, http.StatusNotFound, errors.New("message not found"))
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(msg))
}
