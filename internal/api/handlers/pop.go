package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/popfoundry/popserver/internal/api/problem"
	"github.com/popfoundry/popserver/internal/domain/pop"
	"github.com/popfoundry/popserver/internal/ingest"
)

const (
	problemTypeValidation   = "https://popfoundry.io/problems/validation-error"
	problemTypeUnauthorized = "https://popfoundry.io/problems/unauthorized"
	problemTypeServerError  = "https://popfoundry.io/problems/server-error"
	problemTypeTooLarge     = "https://popfoundry.io/problems/payload-too-large"
)

// PopHandler accepts proof-of-play submissions from players.
type PopHandler struct {
	Service *ingest.Service
	Env     string
}

func NewPopHandler(service *ingest.Service, env string) *PopHandler {
	return &PopHandler{Service: service, Env: env}
}

type submitResponse struct {
	Status  string `json:"status"`
	Events  int    `json:"events"`
	Receipt string `json:"receipt"`
}

// Submit handles POST /v1/pop (and the legacy POST /pop alias). Both wire
// forms of the batch decode to the same submission; a rejected key maps to
// 401 and a storage failure to 500. A multi-event batch never yields a
// partial-success response.
func (h *PopHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problemTypeServerError, "Server error", nil, h.Env)
		return
	}

	var sub pop.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			problem.Write(w, r, http.StatusRequestEntityTooLarge, problemTypeTooLarge, "Payload too large", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusBadRequest, problemTypeValidation, "Invalid request", err, h.Env)
		return
	}

	if err := sub.Validate(); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problemTypeValidation, "Invalid request", err, h.Env)
		return
	}

	receipt, result := h.Service.AuthenticateAndStore(r.Context(), &sub)
	switch result {
	case ingest.ResultUnauthorized:
		problem.Write(w, r, http.StatusUnauthorized, problemTypeUnauthorized, "Unauthorized", errors.New("api key not registered"), h.Env)
	case ingest.ResultFailed:
		// A rolled-back batch is a server-side failure, never a 200.
		problem.Write(w, r, http.StatusInternalServerError, problemTypeServerError, "Storage failure", errors.New("submission batch was not stored"), h.Env)
	default:
		writeJSON(w, http.StatusOK, submitResponse{
			Status:  string(result),
			Events:  receipt.Events,
			Receipt: receipt.ID,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
