package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
)

type settingResponse struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ListSettings handles GET /settings.
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	list, err := h.settings.List(r.Context())
	if err != nil {
		writeDomainError(w, r, errors.Wrap(err, "list settings"))
		return
	}
	data := make([]settingResponse, len(list))
	for i, s := range list {
		data[i] = settingResponse{Key: s.Key, Value: s.Value, UpdatedAt: s.UpdatedAt}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// PutSetting handles PUT /settings/{key}. The body is the raw JSON value;
// the next config snapshot picks it up.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "cannot read body")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be valid JSON")
		return
	}

	key := chi.URLParam(r, "key")
	if err := h.settings.Put(r.Context(), key, body); err != nil {
		writeDomainError(w, r, errors.Wrap(err, "put setting"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": json.RawMessage(body)})
}
