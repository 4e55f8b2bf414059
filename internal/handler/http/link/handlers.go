// Package link exposes secure link generation and resolution. Links carry a
// signed token granting time-limited access to one project detail view.
package link

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"msghub/internal/handler/http/respond"
	"msghub/internal/usecase/securelink"
)

type GenerateHandler struct {
	Issuer *securelink.Issuer
	// Domain is the public base URL links are built on, without a
	// trailing slash.
	Domain string
}

func (h GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       int64  `json:"user_id"`
		ProjectID    int64  `json:"project_id"`
		WechatUserID string `json:"wechat_user_id"`
		LongLived    bool   `json:"long_lived"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == 0 || req.ProjectID == 0 {
		respond.SafeError(w, http.StatusBadRequest, errors.New("user_id and project_id are required"))
		return
	}
	token, err := h.Issuer.Generate(req.UserID, req.ProjectID, req.WechatUserID, req.LongLived)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{
		"token": token,
		"url":   h.Domain + "/view/project-detail?token=" + url.QueryEscape(token),
	})
}

type ResolveHandler struct{ Issuer *securelink.Issuer }

func (h ResolveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respond.SafeError(w, http.StatusForbidden, errors.New("link token expired or invalid"))
		return
	}
	claims, err := h.Issuer.Verify(token)
	if err != nil {
		respond.SafeError(w, http.StatusForbidden, errors.New("link token expired or invalid"))
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"user_id":        claims.UserID,
		"project_id":     claims.ProjectID,
		"wechat_user_id": claims.WechatUserID,
	})
}

// Register registers the secure link routes with the given mux.
func Register(mux *http.ServeMux, issuer *securelink.Issuer, domain string) {
	mux.Handle("POST /links/project-detail", GenerateHandler{Issuer: issuer, Domain: domain})
	mux.Handle("GET /view/project-detail", ResolveHandler{Issuer: issuer})
}
