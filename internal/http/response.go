package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"kvview/pkg/protocol"
)

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusError marks requests rejected before they reach the protocol.
	StatusError Status = "error"
)

// Response is the plain JSON body of the health route and of requests that
// are not protocol messages.
type Response struct {
	Status   Status `json:"status,omitempty"`
	Database string `json:"database,omitempty"`
	Error    string `json:"error,omitempty"`
}

func NewOKResponse(database string) Response {
	return Response{Status: StatusOK, Database: database}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

// writeProtocol encodes resp with the wire encoding.
func writeProtocol(w http.ResponseWriter, status int, resp protocol.Response) {
	body, err := protocol.EncodeResponse(resp)
	if err != nil {
		slog.Error("Error encoding protocol response", "id", resp.ID, "kind", resp.Kind, "error", err)
		body, _ = protocol.EncodeResponse(protocol.Fail(protocol.Request{ID: resp.ID, Kind: resp.Kind}, "failed to encode response: "+err.Error()))
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Warn("Error writing response", "error", err)
	}
}
