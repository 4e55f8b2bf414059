// Package template exposes CRUD endpoints for message templates.
package template

import (
	"encoding/json"
	"net/http"

	"msghub/internal/handler/http/respond"
	"msghub/internal/render"
	"msghub/internal/repository"
)

type CreateHandler struct{ Repo repository.TemplateRepository }

func (h CreateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	tmpl := req.toEntity()
	tmpl.Variables = render.ExtractVariables(tmpl.Content)
	if err := tmpl.Validate(); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.Repo.Create(r.Context(), tmpl); err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusCreated, toDTO(tmpl))
}
