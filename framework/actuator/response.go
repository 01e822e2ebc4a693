package actuator

import (
	"encoding/json"
	"net/http"
)

// ── Response ─────────────────────────────────────────────────────────────────

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// success sends 200 JSON: {"data": v}
func success(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, envelope{"data": v})
}

// fail sends {"message": message} with the given status.
func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{"message": message})
}

func notFound(w http.ResponseWriter, message ...string) {
	msg := "Not found."
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	fail(w, http.StatusNotFound, msg)
}
