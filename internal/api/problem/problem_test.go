package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetails {
	t.Helper()
	var p ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode problem body: %v", err)
	}
	return p
}

func TestWriteExposesDetailInDevelopment(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/pop", nil)

	Write(rec, req, http.StatusBadRequest, "https://popfoundry.io/problems/validation-error",
		"Invalid request", errors.New("end_time is required"), "development")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/problem+json" {
		t.Fatalf("unexpected content type %q", got)
	}

	p := decodeProblem(t, rec)
	if p.Detail != "end_time is required" {
		t.Errorf("expected raw error detail in development, got %q", p.Detail)
	}
	if p.Instance != "/v1/pop" {
		t.Errorf("expected instance from request path, got %q", p.Instance)
	}
}

func TestWriteSanitizesDetailInProduction(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/pop", nil)

	Write(rec, req, http.StatusInternalServerError, "https://popfoundry.io/problems/server-error",
		"Storage failure", errors.New("pq: connection refused at 10.0.0.5"), "production")

	p := decodeProblem(t, rec)
	if p.Detail != http.StatusText(http.StatusInternalServerError) {
		t.Errorf("expected sanitized detail in production, got %q", p.Detail)
	}
}

func TestWriteOptionsOverrideDefaults(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/pop", nil)

	Write(rec, req, http.StatusUnauthorized, "https://popfoundry.io/problems/unauthorized",
		"Unauthorized", errors.New("api key not registered"), "production",
		WithDetail("The supplied API key is not registered."),
		WithInstance("/pop"))

	p := decodeProblem(t, rec)
	if p.Detail != "The supplied API key is not registered." {
		t.Errorf("explicit detail was overridden: %q", p.Detail)
	}
	if p.Instance != "/pop" {
		t.Errorf("explicit instance was overridden: %q", p.Instance)
	}
}
