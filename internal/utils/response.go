package utils

import (
	"errors"
	"net/http"

	"payrank-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// Response represents a standardized response structure.
// It includes a status code, a message, and data.
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"` // Always present, null when empty
}

// NewResponse creates a new Response instance.
func NewResponse(status int, message string, data interface{}) Response {
	return Response{
		Status:  status,
		Message: message,
		Data:    data,
	}
}

// NewSuccessResponse creates a new success Response instance.
// Defaults status to 200 (OK).
func NewSuccessResponse(message string, data interface{}) Response {
	return NewResponse(http.StatusOK, message, data)
}

// NewErrorResponse creates a new error Response instance.
// Data is explicitly set to nil.
func NewErrorResponse(status int, message string) Response {
	return NewResponse(status, message, nil)
}

// StatusFor maps a service error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, services.ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, services.ErrStorageFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err in the standard envelope. Internal failures are reported with a
// generic message and attached to the context for the logger middleware.
func RespondError(c *gin.Context, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		if status == http.StatusServiceUnavailable {
			message = services.ErrStorageFailure.Error()
		} else {
			message = "Internal server error"
		}
	}
	c.AbortWithStatusJSON(status, NewErrorResponse(status, message))
}
