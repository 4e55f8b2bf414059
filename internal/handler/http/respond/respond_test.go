package respond_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"msghub/internal/handler/http/respond"
)

func TestJSONWritesBodyAndContentType(t *testing.T) {
	rr := httptest.NewRecorder()
	respond.JSON(rr, http.StatusCreated, map[string]string{"message_no": "MSG1"})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusCreated)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["message_no"] != "MSG1" {
		t.Errorf("body = %v", body)
	}
}

func TestSafeErrorPassesValidationMessages(t *testing.T) {
	rr := httptest.NewRecorder()
	respond.SafeError(rr, http.StatusBadRequest, errors.New("template_code is required"))

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "template_code is required" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestSafeErrorMasksInternalMessages(t *testing.T) {
	cases := []struct {
		name string
		code int
		err  error
	}{
		{name: "opaque 400", code: http.StatusBadRequest, err: errors.New("pq: connection refused")},
		{name: "any 500", code: http.StatusInternalServerError, err: errors.New("value is invalid")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			respond.SafeError(rr, tc.code, tc.err)

			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != "internal server error" {
				t.Errorf("error = %q, want masked", body["error"])
			}
		})
	}
}

func TestSafeErrorNilIsNoop(t *testing.T) {
	rr := httptest.NewRecorder()
	respond.SafeError(rr, http.StatusInternalServerError, nil)
	if rr.Body.Len() != 0 {
		t.Errorf("body written for nil error: %q", rr.Body.String())
	}
}
