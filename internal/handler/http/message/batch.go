package message

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"msghub/internal/domain/entity"
	"msghub/internal/handler/http/respond"
	"msghub/internal/usecase/dispatch"
)

type BatchHandler struct{ Svc *dispatch.Service }

func (h BatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateCode string                    `json:"template_code"`
		Recipients   []dispatch.BatchRecipient `json:"recipients"`
		SendMode     entity.SendMode           `json:"send_mode,omitempty"`
		ScheduledAt  *time.Time                `json:"scheduled_time,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	if req.TemplateCode == "" {
		respond.SafeError(w, http.StatusBadRequest, errors.New("template_code is required"))
		return
	}
	if len(req.Recipients) == 0 {
		respond.SafeError(w, http.StatusBadRequest, errors.New("recipients are required"))
		return
	}
	mode := req.SendMode
	if mode == "" && req.ScheduledAt != nil {
		mode = entity.ModeScheduled
	}
	if mode == entity.ModeScheduled && req.ScheduledAt == nil {
		respond.SafeError(w, http.StatusBadRequest, errors.New("scheduled_time is required for scheduled batches"))
		return
	}
	result, err := h.Svc.SendFromTemplate(r.Context(), req.TemplateCode, req.Recipients, mode, req.ScheduledAt)
	if err != nil {
		respondDispatchError(w, err)
		return
	}
	respond.JSON(w, http.StatusAccepted, result)
}
