package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/grantflow/backend/pkg/contract"
	"github.com/grantflow/backend/pkg/logger"
)

// Response is the unified API response format.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"` // machine-readable error kind
	Data    interface{} `json:"data,omitempty"`
}

// Error kinds reported in Response.Kind.
const (
	KindValidation        = "validation"
	KindForbidden         = "forbidden"
	KindNotFound          = "not_found"
	KindConflict          = "conflict"
	KindInvalidTransition = "invalid_transition"
)

// AppError represents a structured application error with HTTP status and error code.
type AppError struct {
	HTTPStatus int    // HTTP status code (e.g. 400, 404, 500)
	Code       int    // Application-level error code
	Message    string // Human-readable error message
}

func (e *AppError) Error() string {
	return e.Message
}

func NewBadRequest(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusBadRequest, Code: 400, Message: msg}
}

func NewUnauthorized(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusUnauthorized, Code: 401, Message: msg}
}

func NewServerError(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusInternalServerError, Code: 500, Message: msg}
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

// Status returns the HTTP status and kind err maps to.
func Status(err error) (int, string) {
	var (
		validationErr *contract.ValidationError
		forbiddenErr  *contract.ForbiddenError
		notFoundErr   *contract.NotFoundError
		conflictErr   *contract.ConflictError
		transitionErr *contract.InvalidTransitionError
		appErr        *AppError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, KindValidation
	case errors.As(err, &forbiddenErr):
		return http.StatusForbidden, KindForbidden
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, KindNotFound
	case errors.As(err, &conflictErr):
		return http.StatusConflict, KindConflict
	case errors.As(err, &transitionErr):
		return http.StatusConflict, KindInvalidTransition
	case errors.As(err, &appErr):
		return appErr.HTTPStatus, ""
	}
	return http.StatusInternalServerError, ""
}

// Error sends an error response. Domain errors map onto 400/403/404/409 and a
// ValidationError carries its field list in data. Anything unrecognised is
// logged and reported as a bare 500.
func Error(c *gin.Context, err error) {
	status, kind := Status(err)
	if status == http.StatusInternalServerError {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("[API] unhandled error")
			c.Error(err)
			c.JSON(status, Response{Code: 500, Message: "internal server error"})
			return
		}
	}

	resp := Response{Code: status, Message: err.Error(), Kind: kind}
	var validationErr *contract.ValidationError
	if errors.As(err, &validationErr) {
		resp.Data = validationErr.Fields
	}
	c.JSON(status, resp)
}

// Convenience error response functions

func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Code: 400, Message: msg})
}

func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, Response{Code: 401, Message: msg})
}

func Forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, Response{Code: 403, Message: msg, Kind: KindForbidden})
}

func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Response{Code: 404, Message: msg, Kind: KindNotFound})
}

func TooManyRequests(c *gin.Context, msg string) {
	c.JSON(http.StatusTooManyRequests, Response{Code: 429, Message: msg})
}

func ServerError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, Response{Code: 500, Message: msg})
}
