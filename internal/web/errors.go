package web

// errors.go provides unified error response handling for the API.
//
// Every error is logged with its technical detail and the request ID, then
// returned to the client as a core.UserMessage: a plain message, a
// suggested action and a stable code.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/tableimport/internal/core"
	"github.com/JonMunkholm/tableimport/internal/logging"
	"github.com/JonMunkholm/tableimport/internal/reader"
)

var (
	errNoFile        = errors.New("no file provided")
	errTableForBatch = errors.New("table can only be set when importing a single file")
	errInvalidForm   = errors.New("invalid multipart form")
	errInvalidLimit  = errors.New("limit must be a positive integer")
	errMissingTable  = errors.New("missing table name")
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// badRequest errors are the handlers' own validation failures; their text
// is already safe to show.
var badRequest = []error{errNoFile, errTableForBatch, errInvalidForm, errInvalidLimit, errMissingTable}

// badRequestCode replaces ERR000 for validation failures.
const badRequestCode = "REQ001"

func isBadRequest(err error) bool {
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// statusFor picks the HTTP status for an error returned by the service.
func statusFor(err error) int {
	if isBadRequest(err) {
		return http.StatusBadRequest
	}

	switch {
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, reader.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, reader.ErrUnsupportedJSONShape):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrInvalidTableName):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyImports),
		errors.Is(err, core.ErrConnection):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user-facing form with statusCode.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	msg := core.MapError(err)
	if isBadRequest(err) {
		msg.Message = err.Error()
		msg.Action = ""
		if !core.IsUserFacing(err) {
			msg.Code = badRequestCode
		}
	}

	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", msg.Code,
	)

	writeJSON(w, statusCode, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
