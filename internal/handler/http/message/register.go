package message

import (
	"net/http"

	"msghub/internal/repository"
	"msghub/internal/usecase/dispatch"
)

// Register registers the message routes with the given mux. The send
// endpoints are wrapped with the supplied rate limit middleware.
func Register(mux *http.ServeMux, svc *dispatch.Service, messages repository.MessageRepository, tasks repository.TaskRepository, sendLimit func(http.Handler) http.Handler) {
	if sendLimit == nil {
		sendLimit = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /messages/send", sendLimit(SendHandler{svc}))
	mux.Handle("POST /messages/batch", sendLimit(BatchHandler{svc}))
	mux.Handle("GET /messages", ListHandler{messages})
	mux.Handle("GET /messages/{no}", GetHandler{messages})
	mux.Handle("GET /tasks/{id}", TaskHandler{tasks})
}
