// Package handlers defines the stable error codes returned in the code field
// of every ErrorResponse. Clients branch on these values; messages are for
// humans.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "Book with title Dune already exists"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodePayloadTooLarge  = "payload_too_large"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
)

// Fixed messages for responses whose text does not come from the service.
const (
	msgNotFound         = "Not Found"
	msgInternal         = "internal server error"
	msgInvalidBody      = "invalid JSON body"
	msgInvalidID        = "invalid book id"
	msgBodyTooLarge     = "request body too large"
	msgRouteNotFound    = "route not found"
	msgMethodNotAllowed = "method not allowed"
)
