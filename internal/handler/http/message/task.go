package message

import (
	"errors"
	"net/http"

	"msghub/internal/handler/http/respond"
	"msghub/internal/repository"
)

type TaskHandler struct{ Repo repository.TaskRepository }

func (h TaskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		respond.SafeError(w, http.StatusBadRequest, errors.New("task id required"))
		return
	}
	task, err := h.Repo.GetByTaskID(r.Context(), taskID)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	if task == nil {
		respond.SafeError(w, http.StatusNotFound, errors.New("task not found"))
		return
	}
	respond.JSON(w, http.StatusOK, task)
}
