package reply

import (
	"context"
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"trade_engine/pkg/contextx"
	"trade_engine/pkg/errcodes"
	"trade_engine/pkg/logx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // skip

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	SupportID string `json:"supportId"`
}

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

func OK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
}

func Accepted(w http.ResponseWriter) {
	w.WriteHeader(http.StatusAccepted)
}

func JSON(ctx context.Context, w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger(ctx).Error("json.Encode", logx.Error(err))
	}
}

func Error(ctx context.Context, w http.ResponseWriter, err error) {
	logger(ctx).Error("error", logx.Error(err))

	code, ok := errcodes.Of(err)
	if !ok {
		code = errcodes.InternalServerError
	}

	response := errorResponse{
		Code:      code.String(),
		Message:   message(err, code),
		SupportID: supportID(ctx),
	}

	JSON(ctx, w, statusCode(code), response)
}

func statusCode(code errcodes.Code) int {
	switch code {
	case errcodes.ValidationError, errcodes.InvalidTemplate, errcodes.InvalidSecret:
		return http.StatusBadRequest
	case errcodes.NotFound, errcodes.TemplateNotFound, errcodes.SecretNotFound:
		return http.StatusNotFound
	case errcodes.Unauthorized, errcodes.InvalidPassword, errcodes.PasswordRequired:
		return http.StatusUnauthorized
	case errcodes.Forbidden:
		return http.StatusForbidden
	case errcodes.Conflict, errcodes.AlreadyRunning:
		return http.StatusConflict
	case errcodes.RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func message(err error, code errcodes.Code) string {
	if code == errcodes.InternalServerError {
		return "internal error"
	}

	var coded *errcodes.Error
	if errors.As(err, &coded) {
		return coded.Description
	}

	return err.Error()
}

func supportID(ctx context.Context) string {
	traceID, err := contextx.TraceIDFromContext(ctx)
	if err != nil {
		return "unsupported"
	}

	return traceID.String()
}
