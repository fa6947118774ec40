// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Book model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a book is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - ListBooks(ctx, db) -> []domain.Book, error
//   - GetBook(ctx, db, id) -> *domain.Book, error
//   - FindBookByTitle(ctx, db, title) -> *domain.Book, error
//   - SaveBook(ctx, db, book) -> *domain.Book, error
//     Inserts when book.ID is zero, otherwise replaces the row.
//   - DeleteBook(ctx, db, book) -> error
//
// This repository is wrapped by services.BookService, which enforces the
// validation, uniqueness and upsert rules.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-books-api/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ListBooks returns every stored book ordered by id. It returns an empty
// slice when the table is empty.
func ListBooks(ctx context.Context, db *gorm.DB) ([]domain.Book, error) {
	out := []domain.Book{}
	err := db.WithContext(ctx).Order("id asc").Find(&out).Error
	return out, err
}

// GetBook fetches a single book by primary key, or ErrNotFound.
func GetBook(ctx context.Context, db *gorm.DB, id uint64) (*domain.Book, error) {
	var b domain.Book
	if err := db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// FindBookByTitle returns the first book whose title matches exactly, or
// ErrNotFound.
func FindBookByTitle(ctx context.Context, db *gorm.DB, title string) (*domain.Book, error) {
	var b domain.Book
	if err := db.WithContext(ctx).Where("title = ?", title).Order("id asc").First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveBook inserts b when b.ID is zero and replaces the stored row otherwise.
// The passed value is updated in place (ID, timestamps) and returned.
func SaveBook(ctx context.Context, db *gorm.DB, b *domain.Book) (*domain.Book, error) {
	if err := db.WithContext(ctx).Save(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// DeleteBook hard-deletes the row identified by b.ID.
func DeleteBook(ctx context.Context, db *gorm.DB, b *domain.Book) error {
	return db.WithContext(ctx).Delete(&domain.Book{}, b.ID).Error
}
