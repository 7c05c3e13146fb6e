package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the envelope of every status API reply.
//
//   - Status is "healthy", "unhealthy" or "ok"
//   - Timestamp is the server time of the reply
//   - Data carries the payload, Error the failure reason
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing else can be reported.
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func healthyResponse(data any) Response {
	return Response{Status: "healthy", Timestamp: time.Now().UTC(), Data: data}
}

func unhealthyResponse(errMsg string) Response {
	return Response{Status: "unhealthy", Timestamp: time.Now().UTC(), Error: errMsg}
}

func okResponse(data any) Response {
	return Response{Status: "ok", Timestamp: time.Now().UTC(), Data: data}
}
