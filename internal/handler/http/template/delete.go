package template

import (
	"errors"
	"net/http"

	"msghub/internal/handler/http/respond"
	"msghub/internal/repository"
)

type DeleteHandler struct{ Repo repository.TemplateRepository }

func (h DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		respond.SafeError(w, http.StatusBadRequest, errors.New("template code required"))
		return
	}
	existing, err := h.Repo.GetByCode(r.Context(), code)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	if existing == nil {
		respond.SafeError(w, http.StatusNotFound, errors.New("template not found"))
		return
	}
	if err := h.Repo.Delete(r.Context(), existing.ID); err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
