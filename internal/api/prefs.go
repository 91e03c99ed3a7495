package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/tunnelprefs/internal/prefs"
)

const maxRequestBodySize = 1 << 20 // 1MB

// PrefsTable is the name-keyed view of the preferences the API works against.
// Implemented by *prefs.Preferences.
type PrefsTable interface {
	Settings() []prefs.Setting
	Lookup(name string) (prefs.Setting, bool)
	Notify(key string) bool
	Keys() []string
}

type AppDeps struct {
	Prefs PrefsTable
	Token string
}

// SettingView is the JSON shape of a single setting.
type SettingView struct {
	Name       string `json:"name"`
	Key        string `json:"key"`
	Type       string `json:"type"`
	SideEffect string `json:"side_effect"`
	Value      any    `json:"value"`
	Default    any    `json:"default"`
}

// SetRequest carries a new value either as JSON of the setting's type or as
// text parsed the way the CLI does.
type SetRequest struct {
	Value json.RawMessage `json:"value,omitempty"`
	Text  *string         `json:"text,omitempty"`
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/prefs", handleListPrefs(deps))
		r.Get("/prefs/{name}", handleGetPref(deps))
		r.Put("/prefs/{name}", handlePutPref(deps))
		r.Get("/keys", handleListKeys(deps))
		r.Post("/keys/{key}/invalidate", handleInvalidateKey(deps))
	})

	return r
}

func viewOf(s prefs.Setting) SettingView {
	return SettingView{
		Name:       s.Name(),
		Key:        s.Key(),
		Type:       s.Type().String(),
		SideEffect: s.SideEffect().String(),
		Value:      s.Value(),
		Default:    s.Default(),
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListPrefs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings := deps.Prefs.Settings()
		views := make([]SettingView, len(settings))
		for i, s := range settings {
			views[i] = viewOf(s)
		}

		writeJSON(w, views)
	}
}

func handleGetPref(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		s, ok := deps.Prefs.Lookup(name)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "unknown setting %q", name)
			return
		}

		writeJSON(w, viewOf(s))
	}
}

func handlePutPref(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		s, ok := deps.Prefs.Lookup(name)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "unknown setting %q", name)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req SetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		var err error
		switch {
		case req.Text != nil:
			err = s.SetText(*req.Text)
		case len(req.Value) > 0:
			err = s.SetJSON(req.Value)
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of value or text is required")
			return
		}
		if err != nil {
			writeSetError(w, err)
			return
		}

		writeJSON(w, viewOf(s))
	}
}

func handleListKeys(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Prefs.Keys())
	}
}

func handleInvalidateKey(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if !deps.Prefs.Notify(key) {
			httpError(w, http.StatusNotFound, "not_found", "no setting owns key %q", key)
			return
		}

		writeJSON(w, map[string]string{"status": "invalidated", "key": key})
	}
}

func writeSetError(w http.ResponseWriter, err error) {
	if errors.Is(err, prefs.ErrInvalidValue) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "failed to save setting: %v", err)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
