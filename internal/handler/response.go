package handler

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/deepmed-api/internal/middleware"
	"github.com/jwalitptl/deepmed-api/pkg/errors"
)

// NewErrorResponse builds the error body for the current request.
func NewErrorResponse(c *gin.Context, message string) middleware.ErrorResponse {
	return middleware.ErrorResponse{
		Error:   message,
		TraceID: c.GetString(middleware.ContextRequestID),
	}
}

// RespondWithError writes message under status and attaches err for logging.
func RespondWithError(c *gin.Context, status int, message string, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, NewErrorResponse(c, message))
}

// RespondWithAppError uses the client-facing status and message of an
// AppError. Anything else, and any server error, is answered with status and
// message instead.
func RespondWithAppError(c *gin.Context, err error, status int, message string) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && appErr.StatusCode() < http.StatusInternalServerError {
		status, message = appErr.StatusCode(), appErr.Message
	}
	RespondWithError(c, status, message, err)
}

// MsgBodyTooLarge answers requests whose body exceeded the size limit.
const MsgBodyTooLarge = "Request size exceeds limit"

// RespondWithBindError answers a failed body bind. A body cut off by the size
// limit gets 413; anything else gets 400 with message.
func RespondWithBindError(c *gin.Context, err error, message string) {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		RespondWithError(c, http.StatusRequestEntityTooLarge, MsgBodyTooLarge, err)
		return
	}
	RespondWithError(c, http.StatusBadRequest, message, err)
}
