// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"net/http"
)

// recordNotFound is the failure body existing voice callers match on.
const recordNotFound = "Record not found"

type valueResponse struct {
	Value any `json:"value"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValue(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, valueResponse{Value: v})
}

// writeRecordNotFound answers a failed command.
func writeRecordNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(recordNotFound))
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// requestValue returns the command argument and whether the call is a
// read. Callers send the literal "{value}" placeholder for reads.
func requestValue(r *http.Request) (string, bool) {
	v := r.URL.Query().Get("request")
	if v == "" || v == "{value}" {
		return "", true
	}
	return v, false
}
