package health

import (
	"encoding/json"
	"net/http"
)

// LivenessHandler serves Liveness. It always answers 200.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, r, http.StatusOK, c.Liveness())
	}
}

// ReadinessHandler serves Readiness: 200 when ready, 503 otherwise.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Readiness(r.Context())
		code := http.StatusOK
		if !report.Ready() {
			code = http.StatusServiceUnavailable
		}
		writeReport(w, r, code, report)
	}
}

func writeReport(w http.ResponseWriter, r *http.Request, code int, report Report) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(report)
	}
}
