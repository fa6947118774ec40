// Package services – BookService
//
// This file implements BookService, which owns the rules around book records:
// creation is validated and checked for title uniqueness, updates behave as
// upserts, and lookups/deletes of unknown ids report ErrNotFound. Persistence
// is delegated to a BookRepo; an optional cache and event publisher are
// notified of changes but never decide the outcome of an operation.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-books-api/internal/domain"
	"github.com/tbourn/go-books-api/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Lifecycle event subjects (relative to the publisher's prefix).
const (
	EventBookCreated = "books.created"
	EventBookUpdated = "books.updated"
	EventBookDeleted = "books.deleted"
)

// BookRepo defines the repository contract required by BookService.
type BookRepo interface {
	// ListBooks returns all stored books.
	ListBooks(ctx context.Context, db *gorm.DB) ([]domain.Book, error)

	// GetBook returns the book with id or gorm.ErrRecordNotFound.
	GetBook(ctx context.Context, db *gorm.DB, id uint64) (*domain.Book, error)

	// FindBookByTitle returns a book whose title matches exactly or gorm.ErrRecordNotFound.
	FindBookByTitle(ctx context.Context, db *gorm.DB, title string) (*domain.Book, error)

	// SaveBook inserts when ID is zero, otherwise replaces.
	SaveBook(ctx context.Context, db *gorm.DB, b *domain.Book) (*domain.Book, error)

	// DeleteBook removes the row for b.ID.
	DeleteBook(ctx context.Context, db *gorm.DB, b *domain.Book) error
}

// BookCache is an optional read-through cache for single-book lookups.
// Implementations report misses with ok=false; errors are treated as misses.
type BookCache interface {
	Get(ctx context.Context, id uint64) (b *domain.Book, ok bool, err error)
	Set(ctx context.Context, b *domain.Book) error
	Delete(ctx context.Context, id uint64) error
}

// EventPublisher is an optional sink for book lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// BookService provides list, fetch, create, upsert and remove operations.
type BookService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the book repository used by this service.
	Repo BookRepo
	// Cache, when set, serves GetByID and is invalidated on writes.
	Cache BookCache
	// Events, when set, receives created/updated/deleted notifications.
	Events EventPublisher
	// Now returns the current time; it stamps publishedDate on update.
	Now func() time.Time
}

// NewBookService constructs a BookService with a UTC wall clock and no
// cache or publisher.
func NewBookService(db *gorm.DB, r BookRepo) *BookService {
	return &BookService{
		DB:   db,
		Repo: r,
		Now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *BookService) tracer() trace.Tracer { return observability.Tracer("services/BookService") }

// List returns every book. It never fails on an empty store.
func (s *BookService) List(ctx context.Context) ([]domain.Book, error) {
	ctx, span := s.tracer().Start(ctx, "List")
	defer span.End()

	books, err := s.Repo.ListBooks(ctx, s.DB)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}
	if books == nil {
		books = []domain.Book{}
	}
	observe("list", nil)
	return books, nil
}

// GetByID returns the book with id or a NotFound error.
func (s *BookService) GetByID(ctx context.Context, id uint64) (*domain.Book, error) {
	ctx, span := s.tracer().Start(ctx, "GetByID", trace.WithAttributes(attribute.Int64("book.id", int64(id))))
	defer span.End()

	if s.Cache != nil {
		if b, ok, err := s.Cache.Get(ctx, id); err == nil && ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			observe("get", nil)
			return b, nil
		} else if err != nil {
			log.Warn().Err(err).Uint64("book_id", id).Msg("book cache read failed")
		}
	}

	b, err := s.Repo.GetBook(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = notFound("Book", "id", id)
		}
		recordErr(span, err)
		observe("get", err)
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, b); err != nil {
			log.Warn().Err(err).Uint64("book_id", id).Msg("book cache write failed")
		}
	}
	observe("get", nil)
	return b, nil
}

// Create validates input, rejects duplicate titles and stores a new book.
//
// Validation: title and author must be non-empty; numberOfPages and
// publishedDate are accepted as-is. Any id on the input is ignored.
// The title lookup and insert share one transaction.
func (s *BookService) Create(ctx context.Context, in domain.Book) (*domain.Book, error) {
	ctx, span := s.tracer().Start(ctx, "Create", trace.WithAttributes(attribute.String("book.title", in.Title)))
	defer span.End()

	if !validForCreate(in) {
		err := invalidInput("Adding Book input is not valid")
		recordErr(span, err)
		observe("create", err)
		return nil, err
	}

	in.ID = 0
	var out *domain.Book
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.Repo.FindBookByTitle(ctx, tx, in.Title); err == nil {
			return alreadyExists("Book with title " + in.Title + " already exists")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		saved, err := s.Repo.SaveBook(ctx, tx, &in)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	if err != nil {
		recordErr(span, err)
		observe("create", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("book.id", int64(out.ID)))
	observe("create", nil)
	s.publish(ctx, EventBookCreated, out)
	return out, nil
}

// Update overwrites title, author and numberOfPages of the book with id and
// stamps publishedDate with the current time. When id does not exist the
// input is stored as a brand-new book instead (upsert); Update never returns
// a NotFound error and performs no validation.
func (s *BookService) Update(ctx context.Context, id uint64, in domain.Book) (*domain.Book, error) {
	ctx, span := s.tracer().Start(ctx, "Update", trace.WithAttributes(attribute.Int64("book.id", int64(id))))
	defer span.End()

	existing, err := s.Repo.GetBook(ctx, s.DB, id)
	switch {
	case err == nil:
		existing.Title = in.Title
		existing.Author = in.Author
		existing.NumberOfPages = in.NumberOfPages
		now := s.now()
		existing.PublishedDate = &now
	case errors.Is(err, gorm.ErrRecordNotFound):
		span.SetAttributes(attribute.Bool("book.upsert_created", true))
		fresh := in
		fresh.ID = 0
		existing = &fresh
	default:
		recordErr(span, err)
		observe("update", err)
		return nil, err
	}

	saved, err := s.Repo.SaveBook(ctx, s.DB, existing)
	if err != nil {
		recordErr(span, err)
		observe("update", err)
		return nil, err
	}

	s.invalidate(ctx, id)
	observe("update", nil)
	s.publish(ctx, EventBookUpdated, saved)
	return saved, nil
}

// Remove deletes the book with id, or returns a NotFound error when absent.
func (s *BookService) Remove(ctx context.Context, id uint64) error {
	ctx, span := s.tracer().Start(ctx, "Remove", trace.WithAttributes(attribute.Int64("book.id", int64(id))))
	defer span.End()

	b, err := s.Repo.GetBook(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = notFound("Book id", "for delete", id)
		}
		recordErr(span, err)
		observe("delete", err)
		return err
	}
	if err := s.Repo.DeleteBook(ctx, s.DB, b); err != nil {
		recordErr(span, err)
		observe("delete", err)
		return err
	}

	s.invalidate(ctx, id)
	observe("delete", nil)
	s.publish(ctx, EventBookDeleted, map[string]uint64{"id": id})
	return nil
}

func (s *BookService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *BookService) invalidate(ctx context.Context, id uint64) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Delete(ctx, id); err != nil {
		log.Warn().Err(err).Uint64("book_id", id).Msg("book cache invalidation failed")
	}
}

func (s *BookService) publish(ctx context.Context, subject string, payload any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, subject, payload); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("book event publish failed")
	}
}

// validForCreate reports whether title and author are both non-empty.
// Whitespace is content.
func validForCreate(b domain.Book) bool {
	return b.Title != "" && b.Author != ""
}

// recordErr marks span as failed for unexpected errors only; business-rule
// rejections are recorded as events.
func recordErr(span trace.Span, err error) {
	var be *BookError
	if errors.As(err, &be) {
		span.AddEvent("rejected", trace.WithAttributes(attribute.String("reason", be.Message)))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
