// Book HTTP handlers.
//
// This file exposes the REST endpoints for book records:
//   - GET    /book        (list, weak ETag support)
//   - GET    /book/{id}   (fetch)
//   - POST   /book        (create, Idempotency-Key support)
//   - PUT    /book/{id}   (upsert)
//   - DELETE /book/{id}   (remove)
//
// Handlers are transport-thin: they parse ids and bodies, call BookService
// and hand any error to the classifier.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-books-api/internal/domain"
	"github.com/tbourn/go-books-api/internal/http/middleware"
	"github.com/tbourn/go-books-api/internal/repo"
	"github.com/tbourn/go-books-api/internal/services"
)

// BookService defines the book operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type BookService interface {
	// List returns every stored book.
	List(ctx context.Context) ([]domain.Book, error)
	// GetByID returns one book or a not-found error.
	GetByID(ctx context.Context, id uint64) (*domain.Book, error)
	// Create validates and stores a new book.
	Create(ctx context.Context, in domain.Book) (*domain.Book, error)
	// Update overwrites the book with id, or stores in as a new book.
	Update(ctx context.Context, id uint64, in domain.Book) (*domain.Book, error)
	// Remove deletes the book with id or returns a not-found error.
	Remove(ctx context.Context, id uint64) error
}

// DefaultIdempotencyTTL applies when Handlers is built with a zero TTL.
const DefaultIdempotencyTTL = 24 * time.Hour

// Handlers groups the book endpoints.
type Handlers struct {
	bookSvc BookService
	idemTTL time.Duration
}

// New constructs Handlers bound to bookSvc. idemTTL bounds how long an
// Idempotency-Key replays the book it created.
func New(bookSvc BookService, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = DefaultIdempotencyTTL
	}
	return &Handlers{bookSvc: bookSvc, idemTTL: idemTTL}
}

// db returns the GORM handle behind the concrete service, if any. ETags and
// idempotency records are best effort and skipped without one.
func (h *Handlers) db() *gorm.DB {
	if svc, ok := h.bookSvc.(*services.BookService); ok {
		return svc.DB
	}
	return nil
}

//
// DTOs
//

// BookRequest is the JSON payload for create and update. An id in the body
// is ignored; the path decides which record an update targets.
type BookRequest struct {
	Title         string     `json:"title" example:"The Left Hand of Darkness"`
	Author        string     `json:"author" example:"Ursula K. Le Guin"`
	NumberOfPages int        `json:"numberOfPages" example:"304"`
	PublishedDate *time.Time `json:"publishedDate" example:"1969-03-01T00:00:00Z"`
}

// toBook copies the payload as sent; titles are compared byte for byte.
func (r BookRequest) toBook() domain.Book {
	return domain.Book{
		Title:         r.Title,
		Author:        r.Author,
		NumberOfPages: r.NumberOfPages,
		PublishedDate: r.PublishedDate,
	}
}

//
// Helpers
//

// bookID parses the :id path parameter; on failure it writes a 400 and
// returns false.
func bookID(c *gin.Context) (uint64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		abortWith(c, http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeBadRequest,
			Message: msgInvalidID,
			Details: []string{fmt.Sprintf("id %q must be a non-negative integer", raw)},
		}, nil)
		return 0, false
	}
	return id, true
}

// bindBook decodes the request body; on failure it writes 400 (or 413 for an
// oversized body) and returns false.
func bindBook(c *gin.Context) (BookRequest, bool) {
	var req BookRequest
	err := c.ShouldBindJSON(&req)
	if err == nil {
		return req, true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		abortWith(c, http.StatusRequestEntityTooLarge, ErrorResponse{
			Code:    ErrCodePayloadTooLarge,
			Message: msgBodyTooLarge,
			Details: []string{fmt.Sprintf("limit is %d bytes", tooLarge.Limit)},
		}, nil)
		return req, false
	}
	abortWith(c, http.StatusBadRequest, ErrorResponse{
		Code:    ErrCodeBadRequest,
		Message: msgInvalidBody,
		Details: []string{err.Error()},
	}, nil)
	return req, false
}

// idempotencyKey prefers the key validated by middleware and falls back to
// the raw header when the middleware is not installed.
func idempotencyKey(c *gin.Context) string {
	if k, ok := middleware.GetIdempotencyKey(c); ok {
		return k
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
}

//
// Handlers
//

// ListBooks godoc
// @ID          listBooks
// @Summary     List books
// @Description Returns every book. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Books
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"books:3:1700000000\")
//
// @Success     200  {array}  domain.Book
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /book [get]
func (h *Handlers) ListBooks(c *gin.Context) {
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if db := h.db(); db != nil {
		count, maxTS, err := repo.BooksStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"books:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	books, err := h.bookSvc.List(ctx)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, books)
}

// GetBook godoc
// @ID          getBook
// @Summary     Fetch a book
// @Description Returns the book with the given id.
// @Tags        Books
// @Produce     json
//
// @Param       id  path  int  true  "Book ID"  minimum(1) example(1)
//
// @Success     200  {object} domain.Book
// @Failure     400  {object} handlers.ErrorResponse "Malformed id"
// @Failure     404  {object} handlers.ErrorResponse "Book not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /book/{id} [get]
func (h *Handlers) GetBook(c *gin.Context) {
	id, valid := bookID(c)
	if !valid {
		return
	}
	b, err := h.bookSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// CreateBook godoc
// @ID          createBook
// @Summary     Create a book
// @Description Stores a new book. Title and author are required and the title must not be taken.
// @Description Supports idempotency via the Idempotency-Key header (same key, same book).
// @Tags        Books
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.BookRequest  true  "Book payload"
//
// @Success     201  {object} domain.Book
// @Header      201  {string} Idempotent-Replay  "true when served from a previous request"
// @Failure     400  {object} handlers.ErrorResponse "Invalid input"
// @Failure     409  {object} handlers.ErrorResponse "Title already exists"
// @Failure     413  {object} handlers.ErrorResponse "Body too large"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /book [post]
func (h *Handlers) CreateBook(c *gin.Context) {
	ctx := c.Request.Context()
	req, valid := bindBook(c)
	if !valid {
		return
	}

	idemKey := idempotencyKey(c)
	db := h.db()

	// Replay path.
	if idemKey != "" && db != nil {
		if rec, err := repo.GetIdempotency(ctx, db, idemKey, time.Now().UTC()); err == nil {
			if prev, err := h.bookSvc.GetByID(ctx, rec.BookID); err == nil {
				c.Header(middleware.HeaderIdempotentReplay, "true")
				ok(c, http.StatusCreated, prev)
				return
			}
		}
	}

	b, err := h.bookSvc.Create(ctx, req.toBook())
	if err != nil {
		failWith(c, err)
		return
	}

	// Store path (best effort).
	if idemKey != "" && db != nil {
		if _, err := repo.CreateIdempotency(ctx, db, idemKey, b.ID, http.StatusCreated, h.idemTTL); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("idempotency_key", idemKey).Msg("store idempotency record")
		}
	}

	ok(c, http.StatusCreated, b)
}

// UpdateBook godoc
// @ID          updateBook
// @Summary     Update or create a book
// @Description Overwrites title, author and page count of the book with the given id and stamps
// @Description publishedDate with the current time. When no such book exists the payload is stored
// @Description as a new book with a fresh id. The payload is not validated.
// @Tags        Books
// @Accept      json
// @Produce     json
//
// @Param       id    path  int                   true  "Book ID"  minimum(1) example(1)
// @Param       body  body  handlers.BookRequest  true  "Book payload"
//
// @Success     200  {object} domain.Book
// @Failure     400  {object} handlers.ErrorResponse "Malformed id or body"
// @Failure     413  {object} handlers.ErrorResponse "Body too large"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /book/{id} [put]
func (h *Handlers) UpdateBook(c *gin.Context) {
	id, valid := bookID(c)
	if !valid {
		return
	}
	req, valid := bindBook(c)
	if !valid {
		return
	}
	b, err := h.bookSvc.Update(c.Request.Context(), id, req.toBook())
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// DeleteBook godoc
// @ID          deleteBook
// @Summary     Delete a book
// @Tags        Books
// @Produce     json
//
// @Param       id  path  int  true  "Book ID"  minimum(1) example(1)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Malformed id"
// @Failure     404  {object} handlers.ErrorResponse "Book not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /book/{id} [delete]
func (h *Handlers) DeleteBook(c *gin.Context) {
	id, valid := bookID(c)
	if !valid {
		return
	}
	if err := h.bookSvc.Remove(c.Request.Context(), id); err != nil {
		failWith(c, err)
		return
	}
	noContent(c)
}
