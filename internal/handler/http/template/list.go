package template

import (
	"net/http"

	"msghub/internal/handler/http/respond"
	"msghub/internal/repository"
)

type ListHandler struct{ Repo repository.TemplateRepository }

func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	list, err := h.Repo.List(r.Context())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]DTO, 0, len(list))
	for _, t := range list {
		out = append(out, toDTO(t))
	}
	respond.JSON(w, http.StatusOK, out)
}
