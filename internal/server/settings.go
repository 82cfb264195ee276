package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rowanlight/dramatis/internal/config"
	"github.com/rowanlight/dramatis/internal/svcctx"
)

// SettingResponse is one settings key/value pair.
type SettingResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// SettingsListResponse wraps all stored settings.
type SettingsListResponse struct {
	Settings map[string]any `json:"settings"`
}

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	settings := svcctx.SettingsFrom(r.Context())
	if settings == nil {
		writeError(w, http.StatusServiceUnavailable, "settings store not available")
		return
	}
	all, err := settings.All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if all == nil {
		all = map[string]any{}
	}
	writeJSON(w, http.StatusOK, SettingsListResponse{Settings: all})
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	settings := svcctx.SettingsFrom(r.Context())
	if settings == nil {
		writeError(w, http.StatusServiceUnavailable, "settings store not available")
		return
	}
	key := r.PathValue("key")
	v, ok, err := settings.Get(key)
	if errors.Is(err, config.ErrInvalidKey) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}
	writeJSON(w, http.StatusOK, SettingResponse{Key: key, Value: v})
}

type settingUpdateRequest struct {
	Value any `json:"value"`
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	settings := svcctx.SettingsFrom(r.Context())
	if settings == nil {
		writeError(w, http.StatusServiceUnavailable, "settings store not available")
		return
	}
	key := r.PathValue("key")

	var req settingUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request body: "+err.Error())
		return
	}
	if err := settings.Set(key, req.Value); err != nil {
		if errors.Is(err, config.ErrInvalidKey) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SettingResponse{Key: key, Value: req.Value})
}

func (s *Server) handleDeleteSetting(w http.ResponseWriter, r *http.Request) {
	settings := svcctx.SettingsFrom(r.Context())
	if settings == nil {
		writeError(w, http.StatusServiceUnavailable, "settings store not available")
		return
	}
	key := r.PathValue("key")
	if err := settings.Delete(key); err != nil {
		if errors.Is(err, config.ErrInvalidKey) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
