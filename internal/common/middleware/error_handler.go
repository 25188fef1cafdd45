package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"barn-economy-backend/internal/common/errors"
	"barn-economy-backend/internal/common/logger"
	"barn-economy-backend/internal/common/response"

	"github.com/gin-gonic/gin"
)

// Recovery turns panics into INTERNAL_ERROR envelopes.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error().
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("panic", fmt.Sprintf("%v", recovered)).
			Str("stack", string(debug.Stack())).
			Msg("Panic recovered")

		appErr := errors.New(errors.ErrCodeInternal, "internal server error")
		sendErrorResponse(c, appErr)
	})
}

// ErrorHandler renders the last error attached with c.Error. Handlers push
// errors and return; this middleware owns the error envelope.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr, ok := errors.AsAppError(err)
		if !ok {
			appErr = errors.NewInternalError(err)
		}
		sendErrorResponse(c, appErr)
	}
}

func sendErrorResponse(c *gin.Context, appErr *errors.AppError) {
	appErr.WithRequestID(GetRequestID(c)).
		WithUserID(UserID(c)).
		WithContext("path", c.Request.URL.Path).
		WithContext("method", c.Request.Method)

	logError(appErr)

	status := HTTPStatus(appErr.Code)
	message := appErr.Message
	var data interface{}
	if appErr.IsInternal() {
		message = "internal server error"
	} else if len(appErr.Details) > 0 {
		data = appErr.Details
	}

	response.Error(c, status, message, string(appErr.Code), data)
}

// HTTPStatus maps error codes to response status codes.
func HTTPStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeValidation, errors.ErrCodeInvalidTiming,
		errors.ErrCodeAlreadyClaimed, errors.ErrCodeCooldownActive,
		errors.ErrCodeDuplicateSubmission, errors.ErrCodeNoLivesRemaining,
		errors.ErrCodeScoreRejected:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidClaimState:
		return http.StatusConflict
	case errors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case errors.ErrCodeGatewayUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func logError(appErr *errors.AppError) {
	event := logger.Info()
	switch {
	case appErr.IsInternal():
		event = logger.Error()
	case appErr.IsUnauthorized():
		event = logger.Warn()
	}

	event = event.
		Str("request_id", appErr.RequestID).
		Str("error_code", string(appErr.Code)).
		Str("error_message", appErr.Message).
		Interface("context", appErr.Context)
	if appErr.UserID != "" {
		event = event.Str("user_id", appErr.UserID)
	}
	if len(appErr.Details) > 0 {
		event = event.Interface("details", appErr.Details)
	}
	if appErr.Cause != nil {
		event = event.Err(appErr.Cause)
	}
	if appErr.IsInternal() && len(appErr.Stack) > 0 {
		event = event.Strs("stack", appErr.Stack)
	}
	event.Msg("Request failed")
}
