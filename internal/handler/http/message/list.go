package message

import (
	"net/http"
	"strconv"
	"time"

	"msghub/internal/domain/entity"
	"msghub/internal/handler/http/respond"
	"msghub/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ListHandler struct{ Repo repository.MessageRepository }

func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := repository.MessageFilters{
		TaskID:  q.Get("task_id"),
		Channel: entity.ChannelType(q.Get("channel_type")),
		Status:  entity.MessageStatus(q.Get("status")),
	}
	if customerID, err := strconv.ParseInt(q.Get("customer_id"), 10, 64); err == nil {
		filters.CustomerID = &customerID
	}
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filters.From = &from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filters.To = &to
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total, err := h.Repo.Count(r.Context(), filters)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	list, err := h.Repo.List(r.Context(), filters, (page-1)*pageSize, pageSize)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]DTO, 0, len(list))
	for _, m := range list {
		out = append(out, toDTO(m))
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"items":     out,
	})
}
