package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/joseph-ayodele/cbam-tracker/internal/common"
)

const (
	maxJSONBody = 1 << 20
	maxNameLen  = 200
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status and a {code, message} body. Internal
// causes are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := common.HTTPStatus(err)
	body := errorBody{
		Code:      common.ErrorCode(err),
		Message:   http.StatusText(status),
		RequestID: common.RequestIDFromContext(r.Context()),
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) && (status < 500 || status == http.StatusServiceUnavailable) {
		body.Message = appErr.Message
	}
	if status >= 500 {
		common.LoggerFromContext(r.Context(), nil).Error("http.error", "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return common.InvalidArgumentErrorf("invalid JSON body: %v", err)
	}
	return nil
}
