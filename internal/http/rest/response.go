package rest

import (
	"encoding/json"
	"net/http"

	"github.com/bwise1/voteledger/util"
	"github.com/bwise1/voteledger/util/tracing"
	"github.com/rs/zerolog/log"
)

// ServerResponse is the envelope of every JSON response.
type ServerResponse struct {
	Err        error       `json:"-"`
	Message    string      `json:"message"`
	Status     string      `json:"status"`
	StatusCode int         `json:"-"`
	Data       interface{} `json:"data,omitempty"`
}

func respondWithError(err error, message, status string, tc *tracing.Context) *ServerResponse {
	ev := log.Warn()
	if util.StatusCode(status) >= http.StatusInternalServerError {
		ev = log.Error()
	}
	if tc != nil {
		ev = ev.Str("request_id", tc.RequestID).Str("request_source", tc.RequestSource)
	}
	ev.Err(err).Str("status", status).Msg(message)

	return &ServerResponse{
		Err:        err,
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
	}
}

func writeErrorResponse(w http.ResponseWriter, err error, status, message string) {
	log.Warn().Err(err).Str("status", status).Msg(message)

	resp := ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
	}
	data, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		data = []byte(`{"message":"internal error","status":"error"}`)
	}
	writeJSONResponse(w, data, resp.StatusCode)
}

func writeJSONResponse(w http.ResponseWriter, data []byte, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(data)
}
