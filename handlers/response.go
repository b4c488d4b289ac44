// handlers/response.go
package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		zap.S().Errorf("Handler: marshalling JSON response: %v", err)
		http.Error(w, `{"error":"Failed to marshal JSON response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	if code >= http.StatusInternalServerError {
		zap.S().Errorf("API Error %d: %s", code, message)
	} else {
		zap.S().Infof("API Error %d: %s", code, message)
	}
	respondWithJSON(w, code, map[string]string{"error": message})
}
