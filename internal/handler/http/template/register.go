package template

import (
	"net/http"

	"msghub/internal/repository"
)

// Register registers the template CRUD routes with the given mux.
func Register(mux *http.ServeMux, repo repository.TemplateRepository) {
	mux.Handle("GET /templates", ListHandler{repo})
	mux.Handle("POST /templates", CreateHandler{repo})
	mux.Handle("GET /templates/{code}", GetHandler{repo})
	mux.Handle("PUT /templates/{code}", UpdateHandler{repo})
	mux.Handle("DELETE /templates/{code}", DeleteHandler{repo})
}
