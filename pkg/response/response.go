package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teampulse/insight/pkg/logger"
)

// Stable machine-readable error codes.
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

// Response is the unified API response format.
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	ErrorCode string      `json:"error_code,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// AppError represents a structured application error with HTTP status and error code.
type AppError struct {
	HTTPStatus int    // HTTP status code (e.g. 400, 404, 500)
	Code       int    // Application-level error code
	ErrorCode  string // Stable string code, e.g. NOT_FOUND
	Message    string // Human-readable error message
	Retryable  bool   // Caller may retry the same request later
}

func (e *AppError) Error() string {
	return e.Message
}

// Is matches any *AppError carrying the same ErrorCode, so callers can use
// errors.Is(err, response.ErrForbidden).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.ErrorCode != "" && t.ErrorCode == e.ErrorCode
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidInput        = &AppError{ErrorCode: CodeInvalidInput}
	ErrForbidden           = &AppError{ErrorCode: CodeForbidden}
	ErrNotFound            = &AppError{ErrorCode: CodeNotFound}
	ErrUpstreamUnavailable = &AppError{ErrorCode: CodeUpstreamUnavailable}
)

// Pre-defined error constructors

func NewBadRequest(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusBadRequest, Code: 400, ErrorCode: CodeInvalidInput, Message: msg}
}

func NewUnauthorized(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusUnauthorized, Code: 401, ErrorCode: CodeUnauthorized, Message: msg}
}

func NewForbidden(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusForbidden, Code: 403, ErrorCode: CodeForbidden, Message: msg}
}

func NewNotFound(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusNotFound, Code: 404, ErrorCode: CodeNotFound, Message: msg}
}

func NewConflict(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusConflict, Code: 409, ErrorCode: CodeConflict, Message: msg}
}

func NewTooManyRequests(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusTooManyRequests, Code: 429, ErrorCode: CodeRateLimited, Message: msg, Retryable: true}
}

func NewServerError(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusInternalServerError, Code: 500, ErrorCode: CodeInternal, Message: msg}
}

// NewUpstreamUnavailable reports a failed downstream dependency. The request
// may succeed if retried.
func NewUpstreamUnavailable(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusServiceUnavailable, Code: 503, ErrorCode: CodeUpstreamUnavailable, Message: msg, Retryable: true}
}

// --- Gin response helpers ---

// Success sends a 200 OK response with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "ok",
		Data:    data,
	})
}

// Created sends a 201 Created response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    0,
		Message: "created",
		Data:    data,
	})
}

// Error sends an error response. If err is an *AppError, its code and status
// are used; otherwise the error is logged and a generic 500 is returned.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		c.JSON(appErr.HTTPStatus, Response{
			Code:      appErr.Code,
			Message:   appErr.Message,
			ErrorCode: appErr.ErrorCode,
			Retryable: appErr.Retryable,
		})
		return
	}
	// details stay in the log, never in the response body
	logger.Error().Err(err).Str("method", c.Request.Method).Str("path", c.Request.URL.Path).Msg("[Response] Internal error")
	c.JSON(http.StatusInternalServerError, Response{
		Code:      500,
		Message:   "internal server error",
		ErrorCode: CodeInternal,
	})
}

// AbortWithError writes the error response and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// Convenience error response functions

func BadRequest(c *gin.Context, msg string) {
	Error(c, NewBadRequest(msg))
}

func Unauthorized(c *gin.Context, msg string) {
	Error(c, NewUnauthorized(msg))
}

func Forbidden(c *gin.Context, msg string) {
	Error(c, NewForbidden(msg))
}

func NotFound(c *gin.Context, msg string) {
	Error(c, NewNotFound(msg))
}

func ServerError(c *gin.Context, msg string) {
	Error(c, NewServerError(msg))
}
