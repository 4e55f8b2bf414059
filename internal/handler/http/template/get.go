package template

import (
	"errors"
	"net/http"

	"msghub/internal/handler/http/respond"
	"msghub/internal/repository"
)

type GetHandler struct{ Repo repository.TemplateRepository }

func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		respond.SafeError(w, http.StatusBadRequest, errors.New("template code required"))
		return
	}
	tmpl, err := h.Repo.GetByCode(r.Context(), code)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	if tmpl == nil {
		respond.SafeError(w, http.StatusNotFound, errors.New("template not found"))
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(tmpl))
}
