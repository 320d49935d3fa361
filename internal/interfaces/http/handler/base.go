package handler

import (
	"errors"
	"net/http"

	"github.com/erp/marketsync/internal/domain/marketplace"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// errorMapping binds a sentinel error to an API error code
type errorMapping struct {
	target error
	code   string
}

// domainErrorCodes is checked in order; the first errors.Is match wins
var domainErrorCodes = []errorMapping{
	{scheduler.ErrSyncInProgress, dto.ErrCodeSyncInProgress},
	{marketplace.ErrChannelNotFound, dto.ErrCodeNotFound},
	{marketplace.ErrOrderNotFound, dto.ErrCodeNotFound},
	{marketplace.ErrChannelInactive, dto.ErrCodeInvalidState},
	{marketplace.ErrUnsupportedChannelType, dto.ErrCodeUnsupportedChannel},
	{scheduler.ErrChannelListFailed, dto.ErrCodeUnavailable},
	{scheduler.ErrChannelLoadFailed, dto.ErrCodeUnavailable},
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessList sends a success response with the item count in meta
func (h *BaseHandler) SuccessList(c *gin.Context, data any, total int) {
	c.JSON(http.StatusOK, dto.NewListResponse(data, int64(total)))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ServiceUnavailable sends a 503 response
func (h *BaseHandler) ServiceUnavailable(c *gin.Context, message string) {
	h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, message)
}

// HandleError converts sync and domain errors to HTTP responses.
// Known errors answer with message; unknown errors never leak their text.
func (h *BaseHandler) HandleError(c *gin.Context, err error, message string) {
	if err == nil {
		return
	}

	if code, ok := errorCode(err); ok {
		if message == "" {
			message = err.Error()
		}
		h.ErrorWithCode(c, code, message)
		return
	}

	h.InternalError(c, "An unexpected error occurred")
}

// errorCode returns the API error code for a known error
func errorCode(err error) (string, bool) {
	for _, m := range domainErrorCodes {
		if errors.Is(err, m.target) {
			return m.code, true
		}
	}
	return "", false
}
