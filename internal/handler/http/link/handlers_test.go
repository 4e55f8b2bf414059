package link_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"msghub/internal/handler/http/link"
	"msghub/internal/usecase/securelink"
)

func newIssuer(t *testing.T) *securelink.Issuer {
	t.Helper()
	issuer, err := securelink.NewIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return issuer
}

func TestGenerateAndResolveRoundTrip(t *testing.T) {
	issuer := newIssuer(t)
	mux := http.NewServeMux()
	link.Register(mux, issuer, "https://crm.example.com")

	req := httptest.NewRequest(http.MethodPost, "/links/project-detail",
		strings.NewReader(`{"user_id":7,"project_id":12,"wechat_user_id":"wx_1"}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("generate status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var generated struct {
		Token string `json:"token"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &generated); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.HasPrefix(generated.URL, "https://crm.example.com/view/project-detail?token=") {
		t.Errorf("url = %q", generated.URL)
	}

	resolveReq := httptest.NewRequest(http.MethodGet, "/view/project-detail?token="+generated.Token, nil)
	resolveRR := httptest.NewRecorder()
	mux.ServeHTTP(resolveRR, resolveReq)

	if resolveRR.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, body = %s", resolveRR.Code, resolveRR.Body.String())
	}
	var claims struct {
		UserID    int64 `json:"user_id"`
		ProjectID int64 `json:"project_id"`
	}
	if err := json.Unmarshal(resolveRR.Body.Bytes(), &claims); err != nil {
		t.Fatalf("decode claims: %v", err)
	}
	if claims.UserID != 7 || claims.ProjectID != 12 {
		t.Errorf("claims = %+v", claims)
	}
}

func TestGenerateRequiresIDs(t *testing.T) {
	mux := http.NewServeMux()
	link.Register(mux, newIssuer(t), "https://crm.example.com")

	req := httptest.NewRequest(http.MethodPost, "/links/project-detail",
		strings.NewReader(`{"user_id":7}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestResolveRejectsBadToken(t *testing.T) {
	mux := http.NewServeMux()
	link.Register(mux, newIssuer(t), "https://crm.example.com")

	cases := []struct {
		name string
		path string
	}{
		{name: "missing token", path: "/view/project-detail"},
		{name: "garbage token", path: "/view/project-detail?token=not.a.jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rr.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", rr.Code)
			}
		})
	}
}
