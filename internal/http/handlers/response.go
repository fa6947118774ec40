// Package handlers provides the HTTP handlers of the book API.
//
// This file defines the error envelope and the small helpers every handler
// uses to write responses, so that failures share one shape:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "Not Found",
//	  "detail": "Book not found id : 10"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-books-api/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message
	Message string `json:"message" example:"Not Found"`
	// Detail explains a not-found error, e.g. which id was missing
	Detail string `json:"detail,omitempty" example:"Book not found id : 10"`
	// Details lists binding problems for malformed requests
	Details []string `json:"details,omitempty"`
}

// fail aborts with an ErrorResponse built from code and msg.
func fail(c *gin.Context, status int, code, msg string) {
	abortWith(c, status, ErrorResponse{Code: code, Message: msg}, nil)
}

// abortWith stamps the request id on resp, logs server errors (with cause
// when known) through the request-scoped logger and aborts the chain.
func abortWith(c *gin.Context, status int, resp ErrorResponse, cause error) {
	resp.RequestID = c.Writer.Header().Get("X-Request-ID")

	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Message)
		if cause != nil {
			ev = ev.Err(cause)
		}
		ev.Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail, used by the router for 404/405.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// RouteNotFound and MethodNotAllowed render the router fallbacks in the
// standard envelope.
func RouteNotFound(c *gin.Context) {
	fail(c, http.StatusNotFound, ErrCodeNotFound, msgRouteNotFound)
}

func MethodNotAllowed(c *gin.Context) {
	fail(c, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, msgMethodNotAllowed)
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
