package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-books-api/internal/domain"
	"github.com/tbourn/go-books-api/internal/http/middleware"
	"github.com/tbourn/go-books-api/internal/repo"
	"github.com/tbourn/go-books-api/internal/services"
)

// ---------- test DB + repo shim ----------

func newBookDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:book_handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Minimal shim implementing services.BookRepo using the repo package (like router.go)
type testBookRepo struct{}

func (testBookRepo) ListBooks(ctx context.Context, db *gorm.DB) ([]domain.Book, error) {
	return repo.ListBooks(ctx, db)
}

func (testBookRepo) GetBook(ctx context.Context, db *gorm.DB, id uint64) (*domain.Book, error) {
	return repo.GetBook(ctx, db, id)
}

func (testBookRepo) FindBookByTitle(ctx context.Context, db *gorm.DB, title string) (*domain.Book, error) {
	return repo.FindBookByTitle(ctx, db, title)
}

func (testBookRepo) SaveBook(ctx context.Context, db *gorm.DB, b *domain.Book) (*domain.Book, error) {
	return repo.SaveBook(ctx, db, b)
}

func (testBookRepo) DeleteBook(ctx context.Context, db *gorm.DB, b *domain.Book) error {
	return repo.DeleteBook(ctx, db, b)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newBookRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newBookDB(t)
	svc := services.NewBookService(db, testBookRepo{})
	svc.Now = func() time.Time { return fixedNow }

	r := gin.New()
	r.Use(middleware.RequestID())
	mountBooks(r, New(svc, time.Hour))
	return r, db
}

func mountBooks(r *gin.Engine, h *Handlers) {
	r.GET("/book", h.ListBooks)
	r.GET("/book/:id", h.GetBook)
	r.POST("/book", h.CreateBook)
	r.PUT("/book/:id", h.UpdateBook)
	r.DELETE("/book/:id", h.DeleteBook)
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		if err := json.NewEncoder(&buf).Encode(v); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBook(t *testing.T, w *httptest.ResponseRecorder) domain.Book {
	t.Helper()
	var b domain.Book
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode book: %v (body=%s)", err, w.Body.String())
	}
	return b
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error: %v (body=%s)", err, w.Body.String())
	}
	return er
}

// ---------- tests ----------

func TestBooks_EndToEndScenario(t *testing.T) {
	r, _ := newBookRouter(t)

	// Empty store lists an empty array, not null.
	w := doJSON(t, r, http.MethodGet, "/book", nil, nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("empty list: code=%d body=%s", w.Code, w.Body.String())
	}

	// Create.
	w = doJSON(t, r, http.MethodPost, "/book", map[string]any{"title": "Dune", "author": "Herbert", "numberOfPages": 412}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: code=%d body=%s", w.Code, w.Body.String())
	}
	dune := decodeBook(t, w)
	if dune.ID == 0 || dune.Title != "Dune" || dune.Author != "Herbert" || dune.NumberOfPages != 412 {
		t.Fatalf("unexpected created book: %+v", dune)
	}

	// Duplicate title.
	w = doJSON(t, r, http.MethodPost, "/book", map[string]any{"title": "Dune", "author": "Someone"}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate: code=%d", w.Code)
	}
	if er := decodeErr(t, w); er.Code != ErrCodeConflict || er.Message != "Book with title Dune already exists" {
		t.Fatalf("duplicate body: %+v", er)
	}

	// Fetch.
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/book/%d", dune.ID), nil, nil)
	if w.Code != http.StatusOK || decodeBook(t, w).Title != "Dune" {
		t.Fatalf("get: code=%d body=%s", w.Code, w.Body.String())
	}

	// Missing id.
	w = doJSON(t, r, http.MethodGet, "/book/10", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get missing: code=%d", w.Code)
	}
	if er := decodeErr(t, w); er.Code != ErrCodeNotFound || er.Message != "Not Found" || er.Detail != "Book not found id : 10" {
		t.Fatalf("get missing body: %+v", er)
	}

	// Update existing: fields overwritten, publishedDate stamped from the clock.
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/book/%d", dune.ID), map[string]any{"title": "Dune Messiah", "author": "Herbert", "numberOfPages": 256}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("update: code=%d body=%s", w.Code, w.Body.String())
	}
	upd := decodeBook(t, w)
	if upd.ID != dune.ID || upd.Title != "Dune Messiah" || upd.NumberOfPages != 256 {
		t.Fatalf("unexpected updated book: %+v", upd)
	}
	if upd.PublishedDate == nil || !upd.PublishedDate.Equal(fixedNow) {
		t.Fatalf("publishedDate = %v, want %v", upd.PublishedDate, fixedNow)
	}

	// Update missing id: stored as a new record with a fresh id.
	w = doJSON(t, r, http.MethodPut, "/book/999", map[string]any{"title": "Emma", "author": "Austen"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("upsert: code=%d body=%s", w.Code, w.Body.String())
	}
	emma := decodeBook(t, w)
	if emma.ID == 0 || emma.ID == 999 || emma.ID == dune.ID || emma.Title != "Emma" {
		t.Fatalf("unexpected upserted book: %+v", emma)
	}

	// List has both.
	w = doJSON(t, r, http.MethodGet, "/book", nil, nil)
	var all []domain.Book
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil || len(all) != 2 {
		t.Fatalf("list: err=%v body=%s", err, w.Body.String())
	}

	// Delete, then delete again.
	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/book/%d", dune.ID), nil, nil)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("delete: code=%d body=%s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/book/%d", dune.ID), nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: code=%d", w.Code)
	}
	want := fmt.Sprintf("Book id not found for delete : %d", dune.ID)
	if er := decodeErr(t, w); er.Detail != want || er.Message != "Not Found" {
		t.Fatalf("second delete body: %+v", er)
	}
}

func TestCreateBook_InvalidInput(t *testing.T) {
	r, _ := newBookRouter(t)

	cases := []map[string]any{
		{"author": "Nobody"},
		{"title": "No Author"},
		{"title": "", "author": "Empty"},
		{},
	}
	for _, body := range cases {
		w := doJSON(t, r, http.MethodPost, "/book", body, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%v: code=%d", body, w.Code)
		}
		if er := decodeErr(t, w); er.Code != ErrCodeBadRequest || er.Message != "Adding Book input is not valid" {
			t.Fatalf("%v: body=%+v", body, er)
		}
	}
}

func TestCreateBook_WhitespaceTitleIsAccepted(t *testing.T) {
	r, _ := newBookRouter(t)

	w := doJSON(t, r, http.MethodPost, "/book", map[string]any{"title": " ", "author": "Y"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("whitespace title: code=%d body=%s", w.Code, w.Body.String())
	}
	if b := decodeBook(t, w); b.Title != " " || b.Author != "Y" {
		t.Fatalf("returned %+v", b)
	}
}

func TestCreateBook_TitleIsStoredAsSent(t *testing.T) {
	r, _ := newBookRouter(t)

	// "é" precomposed vs "e" + combining acute: distinct titles.
	precomposed, decomposed := "Caf\u00e9", "Cafe\u0301"
	w := doJSON(t, r, http.MethodPost, "/book", map[string]any{"title": precomposed, "author": "A"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("first create: %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPost, "/book", map[string]any{"title": decomposed, "author": "Be\u0301a"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("decomposed title is a different title, got %d %s", w.Code, w.Body.String())
	}
	b := decodeBook(t, w)
	if b.Title != decomposed || b.Author != "Be\u0301a" {
		t.Fatalf("returned %q/%q, want bytes as sent", b.Title, b.Author)
	}

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/book/%d", b.ID), nil, nil)
	if got := decodeBook(t, w); got.Title != decomposed {
		t.Fatalf("stored title %q, want %q", got.Title, decomposed)
	}
}

func TestBookEndpoints_TransportErrors(t *testing.T) {
	r, _ := newBookRouter(t)

	w := doJSON(t, r, http.MethodPost, "/book", `{"title":`, map[string]string{"X-Request-ID": "rid-bad"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: code=%d", w.Code)
	}
	er := decodeErr(t, w)
	if er.Code != ErrCodeBadRequest || er.Message != "invalid JSON body" || len(er.Details) == 0 || er.RequestID != "rid-bad" {
		t.Fatalf("bad json body: %+v", er)
	}

	w = doJSON(t, r, http.MethodPost, "/book", `{"title":"T","author":"A","numberOfPages":"many"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("wrong type: code=%d", w.Code)
	}

	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w = doJSON(t, r, m, "/book/abc", map[string]any{"title": "x"}, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s non-numeric id: code=%d", m, w.Code)
		}
		if er := decodeErr(t, w); er.Message != "invalid book id" || len(er.Details) != 1 {
			t.Fatalf("%s non-numeric id body: %+v", m, er)
		}
	}

	// PUT never validates the payload itself.
	w = doJSON(t, r, http.MethodPut, "/book/1", map[string]any{}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("put with empty payload: code=%d", w.Code)
	}
}

func TestCreateBook_BodyTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newBookDB(t)
	r := gin.New()
	r.Use(middleware.LimitBody(16))
	mountBooks(r, New(services.NewBookService(db, testBookRepo{}), 0))

	w := doJSON(t, r, http.MethodPost, "/book", map[string]any{"title": strings.Repeat("x", 64), "author": "A"}, nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
	if er := decodeErr(t, w); er.Code != ErrCodePayloadTooLarge {
		t.Fatalf("unexpected body: %+v", er)
	}
}

func TestListBooks_ETag(t *testing.T) {
	r, _ := newBookRouter(t)
	_ = doJSON(t, r, http.MethodPost, "/book", map[string]any{"title": "One", "author": "A"}, nil)

	w := doJSON(t, r, http.MethodGet, "/book", nil, nil)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || !strings.HasPrefix(etag, `W/"books:1:`) {
		t.Fatalf("code=%d etag=%q", w.Code, etag)
	}

	w = doJSON(t, r, http.MethodGet, "/book", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	_ = doJSON(t, r, http.MethodPost, "/book", map[string]any{"title": "Two", "author": "B"}, nil)
	w = doJSON(t, r, http.MethodGet, "/book", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("etag must change after a write: code=%d etag=%q", w.Code, w.Header().Get("ETag"))
	}
}

func TestCreateBook_IdempotentReplay(t *testing.T) {
	r, db := newBookRouter(t)
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "k-123"}

	w := doJSON(t, r, http.MethodPost, "/book", map[string]any{"title": "Once", "author": "A"}, hdr)
	if w.Code != http.StatusCreated || w.Header().Get(middleware.HeaderIdempotentReplay) != "" {
		t.Fatalf("first: code=%d replay=%q", w.Code, w.Header().Get(middleware.HeaderIdempotentReplay))
	}
	first := decodeBook(t, w)

	w = doJSON(t, r, http.MethodPost, "/book", map[string]any{"title": "Once", "author": "A"}, hdr)
	if w.Code != http.StatusCreated || w.Header().Get(middleware.HeaderIdempotentReplay) != "true" {
		t.Fatalf("replay: code=%d replay=%q", w.Code, w.Header().Get(middleware.HeaderIdempotentReplay))
	}
	if again := decodeBook(t, w); again.ID != first.ID {
		t.Fatalf("replay returned a different book: %+v vs %+v", again, first)
	}

	var n int64
	db.Model(&domain.Book{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected exactly one stored book, got %d", n)
	}

	// Without the key the duplicate title is a conflict.
	w = doJSON(t, r, http.MethodPost, "/book", map[string]any{"title": "Once", "author": "A"}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("no key: code=%d", w.Code)
	}
}

// stubBookSvc lets tests force service errors.
type stubBookSvc struct{ err error }

func (s stubBookSvc) List(context.Context) ([]domain.Book, error) { return nil, s.err }
func (s stubBookSvc) GetByID(context.Context, uint64) (*domain.Book, error) {
	return nil, s.err
}
func (s stubBookSvc) Create(context.Context, domain.Book) (*domain.Book, error) {
	return nil, s.err
}
func (s stubBookSvc) Update(context.Context, uint64, domain.Book) (*domain.Book, error) {
	return nil, s.err
}
func (s stubBookSvc) Remove(context.Context, uint64) error { return s.err }

func TestBookEndpoints_StoreFailureIs500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	mountBooks(r, New(stubBookSvc{err: errors.New("disk on fire")}, 0))

	reqs := []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/book", nil},
		{http.MethodGet, "/book/1", nil},
		{http.MethodPost, "/book", map[string]any{"title": "T", "author": "A"}},
		{http.MethodPut, "/book/1", map[string]any{"title": "T"}},
		{http.MethodDelete, "/book/1", nil},
	}
	for _, rq := range reqs {
		w := doJSON(t, r, rq.method, rq.path, rq.body, nil)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%s %s: code=%d", rq.method, rq.path, w.Code)
		}
		er := decodeErr(t, w)
		if er.Code != ErrCodeInternal || er.Message != "internal server error" || strings.Contains(w.Body.String(), "disk on fire") {
			t.Fatalf("%s %s: body=%s", rq.method, rq.path, w.Body.String())
		}
	}
}
