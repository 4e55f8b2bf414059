// Package channelcfg exposes endpoints for managing per-channel provider
// configuration.
package channelcfg

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"msghub/internal/domain/entity"
	"msghub/internal/handler/http/respond"
	"msghub/internal/repository"
)

// secretKeys are config keys whose values are masked in list responses.
var secretKeys = map[string]bool{
	"api_key":       true,
	"smtp_password": true,
	"corp_secret":   true,
	"app_secret":    true,
}

// DTO is the wire representation of a channel configuration.
type DTO struct {
	ID        int64          `json:"id"`
	Channel   string         `json:"channel_type"`
	Data      map[string]any `json:"config_data"`
	Enabled   bool           `json:"is_enabled"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toDTO(cfg *entity.ChannelConfig) DTO {
	data := make(map[string]any, len(cfg.Data))
	for k, v := range cfg.Data {
		if secretKeys[k] {
			data[k] = "******"
			continue
		}
		data[k] = v
	}
	return DTO{
		ID:        cfg.ID,
		Channel:   string(cfg.Channel),
		Data:      data,
		Enabled:   cfg.Enabled,
		UpdatedAt: cfg.UpdatedAt,
	}
}

type ListHandler struct{ Repo repository.ChannelConfigRepository }

func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	list, err := h.Repo.List(r.Context())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]DTO, 0, len(list))
	for _, cfg := range list {
		out = append(out, toDTO(cfg))
	}
	respond.JSON(w, http.StatusOK, out)
}

type UpsertHandler struct{ Repo repository.ChannelConfigRepository }

func (h UpsertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channel := entity.ChannelType(r.PathValue("channel"))
	if !channel.IsValid() {
		respond.SafeError(w, http.StatusBadRequest, entity.ErrUnknownChannel)
		return
	}
	var req struct {
		Data    map[string]any `json:"config_data"`
		Enabled *bool          `json:"is_enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Data) == 0 {
		respond.SafeError(w, http.StatusBadRequest, errors.New("config_data is required"))
		return
	}
	cfg := &entity.ChannelConfig{
		Channel: channel,
		Data:    req.Data,
		Enabled: req.Enabled == nil || *req.Enabled,
	}
	if err := h.Repo.Upsert(r.Context(), cfg); err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(cfg))
}

type EnableHandler struct{ Repo repository.ChannelConfigRepository }

func (h EnableHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channel := entity.ChannelType(r.PathValue("channel"))
	if !channel.IsValid() {
		respond.SafeError(w, http.StatusBadRequest, entity.ErrUnknownChannel)
		return
	}
	var req struct {
		Enabled *bool `json:"is_enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Enabled == nil {
		respond.SafeError(w, http.StatusBadRequest, errors.New("is_enabled is required"))
		return
	}
	if err := h.Repo.SetEnabled(r.Context(), channel, *req.Enabled); err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"channel_type": string(channel),
		"is_enabled":   *req.Enabled,
	})
}

// Register registers the channel configuration routes with the given mux.
func Register(mux *http.ServeMux, repo repository.ChannelConfigRepository) {
	mux.Handle("GET /channels", ListHandler{repo})
	mux.Handle("PUT /channels/{channel}", UpsertHandler{repo})
	mux.Handle("PATCH /channels/{channel}/enabled", EnableHandler{repo})
}
