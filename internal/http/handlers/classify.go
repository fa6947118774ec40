package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-books-api/internal/services"
)

// classify maps a service error to its HTTP status and envelope:
//
//	ErrInvalidInput  -> 400 bad_request, message = service message
//	ErrAlreadyExists -> 409 conflict,    message = service message
//	ErrNotFound      -> 404 not_found,   message "Not Found", detail = service message
//	anything else    -> 500 internal_error
func classify(err error) (int, ErrorResponse) {
	msg := err.Error()
	var be *services.BookError
	if errors.As(err, &be) {
		msg = be.Message
	}

	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: msg}
	case errors.Is(err, services.ErrAlreadyExists):
		return http.StatusConflict, ErrorResponse{Code: ErrCodeConflict, Message: msg}
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Code: ErrCodeNotFound, Message: msgNotFound, Detail: msg}
	default:
		return http.StatusInternalServerError, ErrorResponse{Code: ErrCodeInternal, Message: msgInternal}
	}
}

// failWith writes the classified response for err. Internal errors keep
// their cause in the log only.
func failWith(c *gin.Context, err error) {
	status, resp := classify(err)
	abortWith(c, status, resp, err)
}
