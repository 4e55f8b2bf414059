package template

import (
	"encoding/json"
	"errors"
	"net/http"

	"msghub/internal/handler/http/respond"
	"msghub/internal/render"
	"msghub/internal/repository"
)

type UpdateHandler struct{ Repo repository.TemplateRepository }

func (h UpdateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	req.Code = code
	tmpl := req.toEntity()
	tmpl.ID = existing.ID
	tmpl.Variables = render.ExtractVariables(tmpl.Content)
	if err := tmpl.Validate(); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.Repo.Update(r.Context(), tmpl); err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(tmpl))
}
