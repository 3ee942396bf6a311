package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMethodMuxDispatchesKnownMethod(t *testing.T) {
	var called bool
	handler := methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}),
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/pop", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, called)
}

func TestMethodMuxRejectsOtherMethods(t *testing.T) {
	handler := methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	})

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/v1/pop", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, "POST", rec.Header().Get("Allow"))
	}
}
