package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSizeAllowsSmallBody(t *testing.T) {
	var body []byte
	handler := RequestSize(64)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		body, err = io.ReadAll(r.Body)
		require.NoError(t, err)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/pop", strings.NewReader(`{"pop":[]}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, `{"pop":[]}`, string(body))
}

func TestRequestSizeCutsOffOversizedBody(t *testing.T) {
	var readErr error
	handler := RequestSize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/pop", strings.NewReader(strings.Repeat("x", 64)))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Error(t, readErr)
	var maxBytesErr *http.MaxBytesError
	assert.True(t, errors.As(readErr, &maxBytesErr))
}
