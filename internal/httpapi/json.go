package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/divinus-go/camerad/internal/config"
)

// writeJSON encodes v as the response body with the given status code
// (§6: "All routes return application/json unless stated").
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeConfigError maps a *config.Error to the {"code": N, "message": ...}
// shape §7 prescribes, choosing the HTTP status by kind.
func writeConfigError(w http.ResponseWriter, err error) {
	cfgErr, ok := err.(*config.Error)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": 0, "message": err.Error()})
		return
	}
	status := http.StatusBadRequest
	switch cfgErr.Kind {
	case config.ErrNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]any{"code": int(cfgErr.Kind), "message": cfgErr.Error()})
}

// queryInt parses query parameter key as an int, falling back to def when
// absent or unparsable (reconfiguration routes treat a missing numeric
// query parameter as "leave unchanged", per §6's GET/POST reconfiguration
// semantics).
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := config.ParseIntKey(key, raw)
	if err != nil {
		return def
	}
	return n
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	f, err := config.ParseFloatKey(key, raw)
	if err != nil {
		return def
	}
	return f
}

func queryBool(r *http.Request, key string, def bool) bool {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	b, err := config.CanonicalizeBool(raw)
	if err != nil {
		return def
	}
	return b
}
