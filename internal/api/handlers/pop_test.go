package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popfoundry/popserver/internal/domain/pop"
	"github.com/popfoundry/popserver/internal/ingest"
	"github.com/popfoundry/popserver/internal/storage"
)

type stubTenants struct {
	known map[string]bool
}

func (s *stubTenants) Exists(_ context.Context, apiKey string) bool { return s.known[apiKey] }
func (s *stubTenants) Register(_ context.Context, apiKey string) error {
	s.known[apiKey] = true
	return nil
}

type stubPlayEvents struct {
	persisted int
	err       error
}

func (s *stubPlayEvents) Persist(_ context.Context, sub *pop.Submission) error {
	if s.err != nil {
		return s.err
	}
	s.persisted += len(sub.Events)
	return nil
}

type stubRepository struct {
	tenants *stubTenants
	events  *stubPlayEvents
}

func (s *stubRepository) Tenants() storage.TenantRepository       { return s.tenants }
func (s *stubRepository) PlayEvents() storage.PlayEventRepository { return s.events }

func newPopHandler(persistErr error) (*PopHandler, *stubRepository) {
	repo := &stubRepository{
		tenants: &stubTenants{known: map[string]bool{"some_secure_api_key": true}},
		events:  &stubPlayEvents{err: persistErr},
	}
	svc := ingest.NewService(repo, zerolog.Nop())
	return NewPopHandler(svc, "test"), repo
}

const validBody = `
{
    "api_key": "some_secure_api_key",
    "player_id": 12345,
    "pop": [
        [4456, 4457, 1, 5001, 5002, 5003, 2, 0, "2016-05-31T10:14:50.200", 5000, "bmb", "3451", ""]
    ]
}`

func postPop(handler *PopHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/pop", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.Submit(rec, req)
	return rec
}

func TestSubmitStoresValidBatch(t *testing.T) {
	handler, repo := newPopHandler(nil)

	rec := postPop(handler, validBody)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Status  string `json:"status"`
		Events  int    `json:"events"`
		Receipt string `json:"receipt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "stored", resp.Status)
	assert.Equal(t, 1, resp.Events)
	assert.NotEmpty(t, resp.Receipt)
	assert.Equal(t, 1, repo.events.persisted)
}

func TestSubmitUnknownKeyIsUnauthorized(t *testing.T) {
	handler, repo := newPopHandler(nil)

	body := strings.Replace(validBody, "some_secure_api_key", "wrong_key", 1)
	rec := postPop(handler, body)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 0, repo.events.persisted)
}

func TestSubmitStorageFailureIsServerError(t *testing.T) {
	handler, _ := newPopHandler(errors.New("connection reset"))

	rec := postPop(handler, validBody)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestSubmitRejectsMalformedJSON(t *testing.T) {
	handler, repo := newPopHandler(nil)

	rec := postPop(handler, `{"api_key": "some_secure_api_key", "pop": [[1, 2]]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, repo.events.persisted)
}

func TestSubmitRejectsEmptyBatch(t *testing.T) {
	handler, _ := newPopHandler(nil)

	rec := postPop(handler, `{"api_key": "some_secure_api_key", "player_id": 12345, "pop": []}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRejectsMissingAPIKey(t *testing.T) {
	handler, _ := newPopHandler(nil)

	rec := postPop(handler, `{"player_id": 12345, "pop": [[4456, 4457, 1, 5001, 5002, 5003, 2, 0, "2016-05-31T10:14:50.200", 5000, "bmb", "3451", ""]]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitOversizedBodyIsRejected(t *testing.T) {
	handler, _ := newPopHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/pop", strings.NewReader(validBody))
	req.Body = http.MaxBytesReader(nil, req.Body, 16)
	rec := httptest.NewRecorder()
	handler.Submit(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
